package swrcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swrcache/codec"
	"github.com/unkn0wn-root/swrcache/errclass"
	"github.com/unkn0wn-root/swrcache/notify"
)

// Target is one key touched by an optimistic mutation. Build it with Optimistic or
// OptimisticWithCodec.
type Target struct {
	Key    string
	update func(prev any, ok bool) any
	clone  func(any) (any, error)
}

// Optimistic updates key with update(prev). ok is false when the key holds no
// value of type T yet.
func Optimistic[T any](key string, update func(prev T, ok bool) T) Target {
	return Target{
		Key: key,
		update: func(prev any, has bool) any {
			p, ok := prev.(T)
			return update(p, has && ok)
		},
	}
}

// OptimisticWithCodec is Optimistic with a rollback snapshot deep-copied through cd,
// so an update that mutates prev in place cannot corrupt the rollback value.
func OptimisticWithCodec[T any](key string, cd codec.Codec[T], update func(prev T, ok bool) T) Target {
	t := Optimistic(key, update)
	t.clone = func(v any) (any, error) {
		tv, ok := v.(T)
		if !ok {
			return v, nil
		}
		return codec.Clone(cd, tv)
	}
	return t
}

// MutateOptions control what happens after the remote write succeeds.
type MutateOptions struct {
	// RevalidateAfter refetches every target so server-derived fields reconcile.
	// Leave false when the optimistic value is already authoritative.
	RevalidateAfter bool
}

type snapshot struct {
	key     string
	data    any
	hasData bool
	dataAt  time.Time
	stale   bool
}

// RunOptimistic applies every target to the store, runs remote, and either keeps
// the optimistic values or restores all of them. Mutations touching the same key
// run one after another in call order; a later mutation snapshots the settled
// result of the earlier one. The remote write is never retried.
//
// On failure every target is restored and a *MutationError is returned. The
// Notifier hears about it unless the remote call was aborted or rejected for
// auth reasons; auth failures go to Hooks.AuthFailure for the session layer.
func (c *Client) RunOptimistic(ctx context.Context, targets []Target, remote func(ctx context.Context) error, opts MutateOptions) error {
	if c.isClosed() {
		return ErrClosed
	}
	if remote == nil {
		return fmt.Errorf("swrcache: remote operation is required")
	}
	targets = liveTargets(targets)
	keys := targetKeys(targets)

	release, err := c.queue.acquire(ctx, keys)
	if err != nil {
		return err
	}
	defer release()

	snaps := make([]snapshot, 0, len(targets))
	for _, t := range targets {
		snap, err := c.apply(t)
		if err != nil {
			c.rollback(snaps)
			return &MutationError{Keys: keys, Kind: errclass.Unknown, Err: err}
		}
		snaps = append(snaps, snap)
	}

	err = safeRemote(ctx, remote)
	if err == nil {
		if opts.RevalidateAfter {
			for _, k := range keys {
				if _, err := c.co.trigger(k, nil, revalidateTrigger); err != nil && err != ErrNoFetcher {
					c.log.Debug("revalidate after mutation skipped", Fields{"key": k, "err": err})
				}
			}
		}
		return nil
	}

	c.rollback(snaps)
	kind := errclass.Classify(err)
	c.hooks.MutationRolledBack(keys, kind, err)
	switch kind {
	case errclass.Abort:
	case errclass.Auth:
		for _, k := range keys {
			c.hooks.AuthFailure(k, err)
		}
		c.log.Warn("mutation unauthorized", Fields{"keys": keys, "err": err})
	default:
		msg := notify.KeyFor(kind)
		c.notifier.Notify(ctx, notify.Notification{
			Kind:    kind,
			Keys:    keys,
			Message: msg,
			Text:    c.catalog.Text(msg),
			Err:     err,
		})
		c.log.Warn("mutation rolled back", Fields{"keys": keys, "kind": kind.String(), "err": err})
	}
	return &MutationError{Keys: keys, Kind: kind, Err: err}
}

// apply computes the optimistic value from a read of the entry and writes it only
// if the entry has not changed since, retrying otherwise; update may therefore
// run more than once. The write advances the key so a fetch that started earlier
// cannot land on top of the optimistic value. A failed update leaves the entry,
// its version and its generation untouched.
func (c *Client) apply(t Target) (snapshot, error) {
	for {
		cur, _ := c.store.Get(t.Key)
		snap := snapshot{key: t.Key, data: cur.Data, hasData: cur.HasData, dataAt: cur.DataUpdatedAt, stale: cur.Stale}
		if t.clone != nil && cur.HasData {
			d, err := t.clone(cur.Data)
			if err != nil {
				return snapshot{}, err
			}
			snap.data = d
		}
		next, err := safeUpdate(t.update, cur.Data, cur.HasData)
		if err != nil {
			return snapshot{}, err
		}
		_, ok := c.store.SetIf(t.Key, func(e Entry) bool { return e.Version == cur.Version }, func(e *Entry) {
			c.co.advance(t.Key)
			e.Data = next
			e.HasData = true
		})
		if ok {
			c.co.bumpShared(t.Key)
			return snap, nil
		}
	}
}

// rollback restores snapshots newest first.
func (c *Client) rollback(snaps []snapshot) {
	for i := len(snaps) - 1; i >= 0; i-- {
		s := snaps[i]
		c.store.Set(s.key, func(e *Entry) {
			c.co.advance(s.key)
			e.Data = s.data
			e.HasData = s.hasData
			e.DataUpdatedAt = s.dataAt
			e.Stale = s.stale
		})
		c.co.bumpShared(s.key)
	}
}

func safeUpdate(update func(any, bool) any, prev any, has bool) (next any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("swrcache: optimistic update panicked: %v", r)
		}
	}()
	return update(prev, has), nil
}

func safeRemote(ctx context.Context, remote func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("swrcache: remote operation panicked: %v", r)
		}
	}()
	return remote(ctx)
}

func liveTargets(ts []Target) []Target {
	out := make([]Target, 0, len(ts))
	for _, t := range ts {
		if t.Key != DisabledKey && t.update != nil {
			out = append(out, t)
		}
	}
	return out
}

// targetKeys returns the distinct keys, sorted. Sorted acquisition keeps two
// mutations over overlapping key sets from deadlocking.
func targetKeys(ts []Target) []string {
	seen := make(map[string]struct{}, len(ts))
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if _, ok := seen[t.Key]; !ok {
			seen[t.Key] = struct{}{}
			out = append(out, t.Key)
		}
	}
	sort.Strings(out)
	return out
}

// keyQueue serializes optimistic mutations per key.
type keyQueue struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyQueue() *keyQueue { return &keyQueue{slots: make(map[string]*slot)} }

func (q *keyQueue) ref(key string) *slot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		q.slots[key] = s
	}
	s.refs++
	return s
}

func (q *keyQueue) unref(key string, s *slot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s.refs--
	if s.refs == 0 && q.slots[key] == s {
		delete(q.slots, key)
	}
}

// acquire takes every key's slot in order. On ctx cancellation the slots taken so
// far are returned and ctx.Err() is reported.
func (q *keyQueue) acquire(ctx context.Context, keys []string) (release func(), err error) {
	held := make([]*slot, 0, len(keys))
	undo := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			q.unref(keys[i], held[i])
		}
	}
	for _, k := range keys {
		s := q.ref(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			q.unref(k, s)
			undo()
			return nil, ctx.Err()
		}
	}
	return undo, nil
}

// Pending is the number of keys with a mutation running or waiting.
func (q *keyQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// Mutator is the UI-side mutation handle.
type Mutator struct {
	c       *Client
	opts    MutateOptions
	running atomic.Int32
}

// Mutation returns a handle whose Run uses opts.
func (c *Client) Mutation(opts MutateOptions) *Mutator { return &Mutator{c: c, opts: opts} }

func (m *Mutator) Run(ctx context.Context, targets []Target, remote func(ctx context.Context) error) error {
	m.running.Add(1)
	defer m.running.Add(-1)
	return m.c.RunOptimistic(ctx, targets, remote, m.opts)
}

// Pending reports whether any Run of this handle has not returned yet.
func (m *Mutator) Pending() bool { return m.running.Load() > 0 }
