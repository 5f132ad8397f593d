package swrcache

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/swrcache/codec"
	"github.com/unkn0wn-root/swrcache/errclass"
)

// State is a typed, read-only view of an entry.
type State[T any] struct {
	Key          string
	Data         T
	HasData      bool
	Err          error
	Kind         errclass.Kind
	IsValidating bool
	Stale        bool
	UpdatedAt    time.Time
	// Previous is true when Data belongs to the key watched before SetKey,
	// shown until the new key's first fetch resolves.
	Previous bool
}

type WatchOptions[T any] struct {
	// KeepPreviousData keeps the old key's data visible after SetKey until the
	// new key has data of its own.
	KeepPreviousData bool
	// Codec enables the cold tier for this key: evicted values are encoded with it
	// and a later Watch decodes them back.
	Codec codec.Codec[T]
	// OnChange runs after every store update of the watched key. It must not block.
	OnChange func(State[T])
}

// Handle is a subscription to one key at a time.
type Handle[T any] struct {
	c     *Client
	fetch Fetcher
	opts  WatchOptions[T]

	mu          sync.Mutex
	key         string
	unsub       func()
	prev        *State[T]
	lastVersion uint64
	closed      bool
}

// Watch subscribes to key and fetches it when the cache has nothing fresh for it.
// The cached value, if any, is available from Value immediately.
func Watch[T any](c *Client, key string, fetch func(ctx context.Context, key string) (T, error), opts WatchOptions[T]) (*Handle[T], error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if fetch == nil {
		return nil, ErrNoFetcher
	}
	h := &Handle[T]{
		c:    c,
		opts: opts,
		fetch: func(ctx context.Context, k string) (any, error) {
			return fetch(ctx, k)
		},
	}
	h.mu.Lock()
	h.mountLocked(key)
	h.mu.Unlock()
	return h, nil
}

func (h *Handle[T]) mountLocked(key string) {
	h.key = key
	h.lastVersion = 0
	if key == DisabledKey {
		h.unsub = nil
		return
	}
	c := h.c
	if cd := h.opts.Codec; cd != nil && c.cold != nil {
		c.hydrateCold(key, func(b []byte) (any, error) { return cd.Decode(b) })
		c.cold.register(key, func(v any) ([]byte, error) {
			tv, _ := v.(T)
			return cd.Encode(tv)
		})
	}

	h.unsub = c.store.Subscribe(key, func(e Entry) { h.onEntry(key, e) })

	e, ok := c.store.Get(key)
	if ok && c.fresh(e) {
		c.co.setFetcher(key, h.fetch)
		return
	}
	if _, err := c.co.trigger(key, h.fetch, mountTrigger); err != nil {
		c.log.Debug("mount fetch skipped", Fields{"key": key, "err": err})
	}
}

func (c *Client) fresh(e Entry) bool {
	return e.HasData && !e.Stale && c.now().Sub(e.DataUpdatedAt) < c.freshFor
}

func (h *Handle[T]) onEntry(key string, e Entry) {
	h.mu.Lock()
	if h.closed || key != h.key || e.Version <= h.lastVersion {
		h.mu.Unlock()
		return
	}
	h.lastVersion = e.Version
	if e.HasData {
		h.prev = nil
	}
	st := h.stateLocked(e, true)
	cb := h.opts.OnChange
	h.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

func (h *Handle[T]) stateLocked(e Entry, ok bool) State[T] {
	st := State[T]{Key: h.key}
	if ok {
		st.Err = e.Err
		st.Kind = e.Kind
		st.IsValidating = e.IsValidating
		st.Stale = e.Stale
		st.UpdatedAt = e.UpdatedAt
		if v, isT := e.Data.(T); isT && e.HasData {
			st.Data = v
			st.HasData = true
		}
	}
	if !st.HasData && h.prev != nil {
		st.Data = h.prev.Data
		st.HasData = true
		st.Previous = true
	}
	return st
}

// Value returns the current view.
func (h *Handle[T]) Value() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.key == DisabledKey {
		return State[T]{}
	}
	e, ok := h.c.store.Get(h.key)
	return h.stateLocked(e, ok)
}

func (h *Handle[T]) Key() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.key
}

// Revalidate forces a fetch of the current key and waits for it.
func (h *Handle[T]) Revalidate(ctx context.Context) error {
	h.mu.Lock()
	key, closed := h.key, h.closed
	h.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case key == DisabledKey:
		return ErrDisabledKey
	case h.c.isClosed():
		return ErrClosed
	}
	return h.c.co.revalidate(ctx, key, h.fetch)
}

// SetKey moves the handle to a new key, e.g. after a filter change.
func (h *Handle[T]) SetKey(key string) error {
	if h.c.isClosed() {
		return ErrClosed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if key == h.key {
		return nil
	}
	if h.opts.KeepPreviousData && h.key != DisabledKey {
		e, ok := h.c.store.Get(h.key)
		if cur := h.stateLocked(e, ok); cur.HasData {
			h.prev = &State[T]{Key: cur.Key, Data: cur.Data, HasData: true}
		}
	} else {
		h.prev = nil
	}
	if h.unsub != nil {
		h.unsub()
	}
	h.mountLocked(key)
	return nil
}

// Close unsubscribes. The entry stays cached for the grace period.
func (h *Handle[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.unsub != nil {
		h.unsub()
		h.unsub = nil
	}
}
