// Package provider defines the byte store backing the cold tier.
//
// When an unsubscribed entry outlives its grace period it is evicted from the hot
// store and, if a provider is configured, a framed copy is written here. The next
// subscriber hydrates from it instead of starting from nothing. ristretto and
// bigcache keep copies in-process; redis shares them between processes.
//
// Implementations MUST be byte-for-byte transparent: Get returns exactly the bytes
// passed to Set. Keys under the "swr:" prefix are owned by swrcache.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
