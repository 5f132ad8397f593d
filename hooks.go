package swrcache

import (
	"time"

	"github.com/unkn0wn-root/swrcache/errclass"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them from fetch goroutines and timer callbacks.
type Hooks interface {
	// An attempt started. attempt is 1 for the first try of a chain.
	FetchStarted(key string, gen uint64, attempt int)

	// An attempt returned and its result was written. err is nil on success.
	FetchSettled(key string, gen uint64, kind errclass.Kind, err error, took time.Duration)

	// A result arrived for a generation that is no longer current and was dropped.
	FetchDiscarded(key string, gen uint64)

	// A failed attempt will be retried after delay.
	RetryScheduled(key string, retry int, delay time.Duration, kind errclass.Kind)

	// A fetch or an optimistic mutation failed with an auth error. Not retried
	// and not shown to the user; the session layer is expected to react.
	AuthFailure(key string, err error)

	// An optimistic mutation failed and all targets were restored.
	MutationRolledBack(keys []string, kind errclass.Kind, err error)

	// An unsubscribed entry outlived its grace period. spilled reports a cold tier copy.
	EntryEvicted(key string, spilled bool)

	// A cold tier copy was refused or dropped.
	// reason ∈ {"provider_rejected", "provider_error", "encode_error", "corrupt", "gen_mismatch", "decode_error"}
	ColdRejected(key, reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) FetchStarted(string, uint64, int)                                {}
func (NopHooks) FetchSettled(string, uint64, errclass.Kind, error, time.Duration) {}
func (NopHooks) FetchDiscarded(string, uint64)                                   {}
func (NopHooks) RetryScheduled(string, int, time.Duration, errclass.Kind)        {}
func (NopHooks) AuthFailure(string, error)                                       {}
func (NopHooks) MutationRolledBack([]string, errclass.Kind, error)               {}
func (NopHooks) EntryEvicted(string, bool)                                       {}
func (NopHooks) ColdRejected(string, string)                                     {}
