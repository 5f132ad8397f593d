// Package errclass sorts fetch and mutation failures into the small taxonomy the
// cache reacts to: Network, Abort, Auth, NotFound, Server and Unknown.
//
// Classification is pure and total. It never panics, whatever the error value does
// when inspected, and every input maps to exactly one Kind.
//
// Recognized shapes, in order:
//   - context.Canceled and ErrAborted                        => Abort
//   - PostgREST/Supabase style codes (Code() string)          => Auth / NotFound
//   - jmgilman/go/errors PlatformError codes                  => mapped per code
//   - HTTP status carriers (StatusCode() int, HTTPStatus() int)
//   - transport failures (net.Error, url.Error, syscall, EOF) => Network
//   - message markers ("permission denied", "no rows", ...)
package errclass

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	perrors "github.com/jmgilman/go/errors"
)

// Kind is the failure category.
type Kind uint8

const (
	Unknown Kind = iota
	Network
	Abort
	Auth
	NotFound
	Server
)

var kindNames = [...]string{
	Unknown:  "unknown",
	Network:  "network",
	Abort:    "abort",
	Auth:     "auth",
	NotFound: "not_found",
	Server:   "server",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds lists every Kind in declaration order.
func Kinds() []Kind { return []Kind{Unknown, Network, Abort, Auth, NotFound, Server} }

// ErrAborted marks an operation that was cancelled on purpose.
var ErrAborted = stderrors.New("errclass: aborted")

type statusCoder interface{ StatusCode() int }

type httpStatuser interface{ HTTPStatus() int }

// backendCoder matches errors carrying a backend specific string code, e.g. a
// PostgREST error with Code "PGRST116".
type backendCoder interface{ Code() string }

var authCodes = map[string]struct{}{
	"42501":    {}, // insufficient_privilege / RLS
	"PGRST301": {}, // JWT expired or invalid
	"PGRST302": {}, // anonymous access disabled
	"28000":    {}, // invalid_authorization_specification
}

var notFoundCodes = map[string]struct{}{
	"PGRST116": {}, // single() matched zero rows
}

var authMarkers = []string{
	"permission denied",
	"invalid session",
	"jwt expired",
	"invalid jwt",
	"row-level security",
	"not authenticated",
}

var notFoundMarkers = []string{
	"no rows",
	"0 rows",
	"pgrst116",
}

var networkMarkers = []string{
	"failed to fetch",
	"network error",
	"connection refused",
	"connection reset",
	"no such host",
}

// Classify returns the Kind for err. A nil error is Unknown.
func Classify(err error) (k Kind) {
	if err == nil {
		return Unknown
	}
	defer func() {
		if recover() != nil {
			k = Unknown
		}
	}()
	return classify(err)
}

// ClassifyValue classifies an arbitrary recovered or thrown value. Errors are
// classified with Classify, strings by message markers, everything else is Unknown.
func ClassifyValue(v any) (k Kind) {
	defer func() {
		if recover() != nil {
			k = Unknown
		}
	}()
	switch x := v.(type) {
	case nil:
		return Unknown
	case error:
		return Classify(x)
	case string:
		return fromMessage(x)
	default:
		return Unknown
	}
}

func classify(err error) Kind {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, ErrAborted) {
		return Abort
	}

	var bc backendCoder
	if stderrors.As(err, &bc) {
		code := strings.ToUpper(strings.TrimSpace(bc.Code()))
		if _, ok := authCodes[code]; ok {
			return Auth
		}
		if _, ok := notFoundCodes[code]; ok {
			return NotFound
		}
	}

	var pe perrors.PlatformError
	if stderrors.As(err, &pe) {
		if k, ok := fromPlatformCode(pe.Code()); ok {
			return k
		}
	}

	if status, ok := statusOf(err); ok {
		if k, ok := fromStatus(status); ok {
			return k
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) || isTransport(err) {
		return Network
	}

	return fromMessage(err.Error())
}

func statusOf(err error) (int, bool) {
	var sc statusCoder
	if stderrors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	var hs httpStatuser
	if stderrors.As(err, &hs) {
		return hs.HTTPStatus(), true
	}
	return 0, false
}

func fromStatus(status int) (Kind, bool) {
	switch {
	case status == 401 || status == 403:
		return Auth, true
	case status == 404:
		return NotFound, true
	case status >= 500:
		return Server, true
	case status > 0:
		return Unknown, true
	}
	return Unknown, false
}

func fromPlatformCode(code perrors.ErrorCode) (Kind, bool) {
	switch code {
	case perrors.CodeUnauthorized, perrors.CodeForbidden:
		return Auth, true
	case perrors.CodeNotFound:
		return NotFound, true
	case perrors.CodeNetwork, perrors.CodeTimeout:
		return Network, true
	case perrors.CodeUnavailable, perrors.CodeDatabase, perrors.CodeInternal:
		return Server, true
	case perrors.CodeUnknown:
		return Unknown, false
	}
	return Unknown, true
}

func isTransport(err error) bool {
	var ne net.Error
	if stderrors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	if stderrors.As(err, &ue) {
		return true
	}
	var oe *net.OpError
	if stderrors.As(err, &oe) {
		return true
	}
	return stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, io.ErrUnexpectedEOF)
}

func fromMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, authMarkers):
		return Auth
	case containsAny(m, notFoundMarkers):
		return NotFound
	case containsAny(m, networkMarkers):
		return Network
	}
	return Unknown
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
