// Package genstore keeps the per-key generation counters that tag fetch chains,
// invalidations and optimistic writes. A result is only written back to the cache
// when the generation it observed is still current.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// SnapshotMany returns gens for many keys; missing => 0.
	SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup drops counters not bumped within retention.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
