// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FetchEvery:   10, // sample: ~every 10th fetch start/settle
//	    DiscardEvery: 1,  // log every discarded result
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := swrcache.New(swrcache.Options{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/errclass"
)

// Hooks forwards events to inner from a fixed worker pool. Events are dropped
// when the queue is full so the cache never blocks on a slow hook.
type Hooks struct {
	inner   swrcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(inner swrcache.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = swrcache.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchStarted(k string, g uint64, n int) {
	h.try(func() { h.inner.FetchStarted(k, g, n) })
}
func (h *Hooks) FetchSettled(k string, g uint64, kind errclass.Kind, err error, d time.Duration) {
	h.try(func() { h.inner.FetchSettled(k, g, kind, err, d) })
}
func (h *Hooks) FetchDiscarded(k string, g uint64) { h.try(func() { h.inner.FetchDiscarded(k, g) }) }
func (h *Hooks) RetryScheduled(k string, n int, d time.Duration, kind errclass.Kind) {
	h.try(func() { h.inner.RetryScheduled(k, n, d, kind) })
}
func (h *Hooks) AuthFailure(k string, err error) { h.try(func() { h.inner.AuthFailure(k, err) }) }
func (h *Hooks) MutationRolledBack(ks []string, kind errclass.Kind, err error) {
	ks = append([]string(nil), ks...)
	h.try(func() { h.inner.MutationRolledBack(ks, kind, err) })
}
func (h *Hooks) EntryEvicted(k string, spilled bool) { h.try(func() { h.inner.EntryEvicted(k, spilled) }) }
func (h *Hooks) ColdRejected(k, reason string)       { h.try(func() { h.inner.ColdRejected(k, reason) }) }
