package swrcache

import "context"

// Preload warms key ahead of navigation. It never blocks, never reports an error
// and never panics: a failed preload leaves the cache untouched and is not retried.
// A key that is already cached or in flight is left alone.
func Preload[T any](c *Client, key string, fetch func(ctx context.Context, key string) (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Debug("preload panicked", Fields{"key": key, "panic": r})
		}
	}()
	if key == DisabledKey || fetch == nil || c.isClosed() {
		return
	}
	if e, ok := c.store.Get(key); ok && c.fresh(e) {
		return
	}
	f := func(ctx context.Context, k string) (any, error) { return fetch(ctx, k) }
	if _, err := c.co.trigger(key, f, preloadTrigger); err != nil {
		c.log.Debug("preload skipped", Fields{"key": key, "err": err})
	}
}
