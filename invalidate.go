package swrcache

import "strings"

// InvalidateExact marks key stale and, if it has subscribers, schedules a refetch.
func (c *Client) InvalidateExact(key string) {
	if key == DisabledKey || c.isClosed() {
		return
	}
	c.invalidate(func(k string) bool { return k == key })
}

// InvalidateByPattern invalidates every key containing any of the patterns as a
// substring. Keys should share a common substring per family, e.g. everything
// under "/groups/g1/board". Empty patterns are ignored.
func (c *Client) InvalidateByPattern(patterns ...string) {
	ps := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p != "" {
			ps = append(ps, p)
		}
	}
	if len(ps) == 0 || c.isClosed() {
		return
	}
	c.invalidate(func(k string) bool { return matchesAny(k, ps) })
}

// InvalidateFunc invalidates every key satisfying pred.
func (c *Client) InvalidateFunc(pred func(key string) bool) {
	if pred == nil || c.isClosed() {
		return
	}
	c.invalidate(pred)
}

func (c *Client) invalidate(pred func(string) bool) {
	matched := c.store.Invalidate(pred)
	var cold int
	if c.cold != nil {
		cold = c.cold.invalidate(c.ctx, pred, c.co.bump)
	}
	if len(matched) > 0 || cold > 0 {
		c.log.Debug("invalidated keys", Fields{"matched": len(matched), "cold": cold})
	}
}

// invalidating runs before matched entries are marked stale: results of fetches
// already in flight for them must not land afterwards and clear the mark.
func (c *Client) invalidating(keys []string) {
	for _, k := range keys {
		c.co.bump(k)
	}
	c.co.forget(keys)
}

func (c *Client) revalidateSubscribed(keys []string) {
	for _, k := range keys {
		if _, err := c.co.trigger(k, nil, invalidateTrigger); err != nil && err != ErrNoFetcher {
			c.log.Debug("revalidate after invalidation skipped", Fields{"key": k, "err": err})
		}
	}
}

func matchesAny(key string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
