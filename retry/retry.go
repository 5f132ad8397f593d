// Package retry decides whether and when a failed fetch is attempted again.
//
// The default policy retries at most three times with exponential backoff:
// 1s, 3s, 9s, capped at 30s. Abort, Auth and NotFound failures are never retried.
// Callers always schedule the next attempt through a timer; the policy only
// computes delays.
package retry

import (
	"math"
	"time"

	"github.com/unkn0wn-root/swrcache/errclass"
)

const (
	DefaultMaxRetries = 3
	DefaultBase       = time.Second
	DefaultFactor     = 3.0
	DefaultCap        = 30 * time.Second
)

// Policy tunes retry decisions. Zero fields fall back to the defaults above.
type Policy struct {
	MaxRetries int           // attempts after the first; 0 => 3, negative disables retries
	Base       time.Duration // delay before retry #1; 0 => 1s
	Factor     float64       // growth per retry; <1 => 3
	Cap        time.Duration // upper bound on any delay; 0 => 30s

	// SkipUnknown stops retries for errors that could not be classified.
	SkipUnknown bool
}

// Default returns the policy used when none is configured.
func Default() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Base:       DefaultBase,
		Factor:     DefaultFactor,
		Cap:        DefaultCap,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Factor < 1 {
		p.Factor = DefaultFactor
	}
	if p.Cap <= 0 {
		p.Cap = DefaultCap
	}
	return p
}

// ShouldRetry reports whether a chain that has already retried retryCount times
// should try again after err.
func (p Policy) ShouldRetry(err error, retryCount int) bool {
	return p.ShouldRetryKind(errclass.Classify(err), retryCount)
}

// ShouldRetryKind is ShouldRetry for an already classified failure.
func (p Policy) ShouldRetryKind(kind errclass.Kind, retryCount int) bool {
	p = p.normalized()
	if p.MaxRetries < 0 || retryCount >= p.MaxRetries {
		return false
	}
	switch kind {
	case errclass.Abort, errclass.Auth, errclass.NotFound:
		return false
	case errclass.Unknown:
		return !p.SkipUnknown
	}
	return true
}

// DelayFor returns min(Base * Factor^retryCount, Cap). Negative counts are treated as 0.
func (p Policy) DelayFor(retryCount int) time.Duration {
	p = p.normalized()
	if retryCount < 0 {
		retryCount = 0
	}
	d := float64(p.Base) * math.Pow(p.Factor, float64(retryCount))
	if math.IsInf(d, 0) || math.IsNaN(d) || d >= float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}

// ShouldRetry applies the default policy.
func ShouldRetry(err error, retryCount int) bool { return Default().ShouldRetry(err, retryCount) }

// DelayFor applies the default policy.
func DelayFor(retryCount int) time.Duration { return Default().DelayFor(retryCount) }

// State tracks one logical attempt chain. It is reset on every successful settle.
type State struct {
	RetryCount    int
	LastErrorKind errclass.Kind
}

// Failed records a failure of the given kind and returns the updated state.
func (s State) Failed(kind errclass.Kind) State {
	s.LastErrorKind = kind
	return s
}

// Advance counts one scheduled retry.
func (s State) Advance() State {
	s.RetryCount++
	return s
}

// Reset clears the chain.
func (s State) Reset() State { return State{} }
