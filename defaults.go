package swrcache

import "time"

const (
	defaultDedupWindow = 2 * time.Second
	defaultFreshFor    = 30 * time.Second
	defaultGCGrace     = 30 * time.Second
	defaultColdTTL     = 10 * time.Minute
	defaultGenSweep    = time.Hour
	defaultGenRetain   = 24 * time.Hour

	tracerName = "github.com/unkn0wn-root/swrcache"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
