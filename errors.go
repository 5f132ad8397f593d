package swrcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/swrcache/errclass"
)

var (
	// ErrDisabledKey is returned when an operation needs a real key but got DisabledKey.
	ErrDisabledKey = errors.New("swrcache: key is disabled")
	ErrClosed      = errors.New("swrcache: client closed")
	// ErrNoFetcher means a revalidation was requested for a key nobody registered a fetcher for.
	ErrNoFetcher = errors.New("swrcache: no fetcher registered for key")
)

// FetchError is the terminal outcome of an attempt chain.
type FetchError struct {
	Key      string
	Kind     errclass.Kind
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q failed (%s) after %d attempt(s): %v", e.Key, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError is returned by a rolled back optimistic mutation.
type MutationError struct {
	Keys []string
	Kind errclass.Kind
	Err  error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation on [%s] rolled back (%s): %v", strings.Join(e.Keys, ", "), e.Kind, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
