package swrcache

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/swrcache/internal/wire"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

const coldPrefix = "swr:"

// coldTier holds framed copies of evicted entries so a later subscriber starts
// from stale data instead of nothing. Values need an encoder registered by the
// Watch that owned them; entries without one are simply dropped.
type coldTier struct {
	p   pr.Provider
	ttl time.Duration

	mu      sync.Mutex
	enc     map[string]func(any) ([]byte, error)
	spilled map[string]struct{}
}

func newColdTier(p pr.Provider, ttl time.Duration) *coldTier {
	return &coldTier{
		p:       p,
		ttl:     ttl,
		enc:     make(map[string]func(any) ([]byte, error)),
		spilled: make(map[string]struct{}),
	}
}

func coldKey(key string) string { return coldPrefix + key }

func (t *coldTier) register(key string, enc func(any) ([]byte, error)) {
	t.mu.Lock()
	t.enc[key] = enc
	t.mu.Unlock()
}

// spill writes e under its current generation. It reports whether a copy was stored
// and, if not, the reason ("" when there was nothing to store).
func (t *coldTier) spill(ctx context.Context, e Entry, g uint64) (bool, string) {
	t.mu.Lock()
	enc := t.enc[e.Key]
	delete(t.enc, e.Key)
	t.mu.Unlock()
	if enc == nil || !e.HasData {
		return false, ""
	}

	payload, err := enc(e.Data)
	if err != nil {
		return false, "encode_error"
	}
	frame := wire.Encode(g, e.DataUpdatedAt, payload)
	ok, err := t.p.Set(ctx, coldKey(e.Key), frame, int64(len(frame)), t.ttl)
	if err != nil {
		return false, "provider_error"
	}
	if !ok {
		return false, "provider_rejected"
	}
	t.mu.Lock()
	t.spilled[e.Key] = struct{}{}
	t.mu.Unlock()
	return true, ""
}

// hydrate loads and removes the copy for key. The copy is only trusted when its
// generation is still g; reason explains a rejection.
func (t *coldTier) hydrate(ctx context.Context, key string, g uint64, dec func([]byte) (any, error)) (v any, dataAt time.Time, ok bool, reason string) {
	t.mu.Lock()
	_, known := t.spilled[key]
	delete(t.spilled, key)
	t.mu.Unlock()

	raw, hit, err := t.p.Get(ctx, coldKey(key))
	if err != nil || !hit {
		if known && err != nil {
			return nil, time.Time{}, false, "provider_error"
		}
		return nil, time.Time{}, false, ""
	}
	_ = t.p.Del(ctx, coldKey(key))

	fr, err := wire.Decode(raw)
	if err != nil {
		return nil, time.Time{}, false, "corrupt"
	}
	if fr.Gen != g {
		return nil, time.Time{}, false, "gen_mismatch"
	}
	v, err = dec(fr.Payload)
	if err != nil {
		return nil, time.Time{}, false, "decode_error"
	}
	return v, fr.DataAt, true, ""
}

// invalidate drops copies whose key satisfies pred. bump advances the key's
// generation so a copy that could not be deleted is rejected on hydrate.
func (t *coldTier) invalidate(ctx context.Context, pred func(string) bool, bump func(string)) int {
	t.mu.Lock()
	var keys []string
	for k := range t.spilled {
		if pred(k) {
			keys = append(keys, k)
			delete(t.spilled, k)
		}
	}
	t.mu.Unlock()
	for _, k := range keys {
		bump(k)
		_ = t.p.Del(ctx, coldKey(k))
	}
	return len(keys)
}

// evicted is the store's eviction callback.
func (c *Client) evicted(e Entry) {
	c.co.drop(e.Key)
	spilled := false
	if c.cold != nil && !c.isClosed() {
		g, err := c.gen.Snapshot(c.ctx, e.Key)
		if err == nil {
			var reason string
			spilled, reason = c.cold.spill(c.ctx, e, g)
			if reason != "" {
				c.hooks.ColdRejected(e.Key, reason)
				c.log.Debug("cold spill skipped", Fields{"key": e.Key, "reason": reason})
			}
		}
	}
	c.hooks.EntryEvicted(e.Key, spilled)
}

// hydrateCold seeds key from the cold tier as stale data when the store has no entry.
func (c *Client) hydrateCold(key string, dec func([]byte) (any, error)) {
	if c.cold == nil || dec == nil {
		return
	}
	if _, ok := c.store.Get(key); ok {
		return
	}
	g, err := c.gen.Snapshot(c.ctx, key)
	if err != nil {
		return
	}
	v, dataAt, ok, reason := c.cold.hydrate(c.ctx, key, g, dec)
	if reason != "" {
		c.hooks.ColdRejected(key, reason)
		c.log.Debug("cold copy rejected", Fields{"key": key, "reason": reason})
	}
	if !ok {
		return
	}
	c.store.SetIf(key, func(cur Entry) bool { return !cur.HasData }, func(e *Entry) {
		e.Data = v
		e.HasData = true
		e.Stale = true
		e.DataUpdatedAt = dataAt
	})
}
