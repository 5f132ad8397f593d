package swrcache

import "time"

// Timer is the part of *time.Timer the cache uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Every retry, GC eviction and poll goes through it,
// so tests can substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
