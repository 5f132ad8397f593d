package swrcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/swrcache/errclass"
	gen "github.com/unkn0wn-root/swrcache/genstore"
	"github.com/unkn0wn-root/swrcache/retry"
)

// Fetcher loads the value for key. It should honor ctx; a superseded attempt's
// context is cancelled and its result is discarded either way.
type Fetcher func(ctx context.Context, key string) (any, error)

type phase uint8

const (
	phaseIdle phase = iota
	phaseValidating
	phaseSettled
)

// trigger describes why a chain is requested.
type trigger struct {
	force     bool // start a new chain unless a recent one is in flight
	supersede bool // always start a new chain (invalidation)
	quiet     bool // preload: no retries, no stored error
}

var (
	mountTrigger      = trigger{}
	revalidateTrigger = trigger{force: true}
	invalidateTrigger = trigger{force: true, supersede: true}
	preloadTrigger    = trigger{quiet: true}
)

type keyState struct {
	phase     phase
	cur       *chain
	lastStart time.Time
	lastOK    bool
	fetcher   Fetcher
	// epoch changes whenever a chain starts or the key is written around the
	// coordinator. A chain may write only while its epoch is the key's epoch.
	epoch uint64
}

// chain is one logical attempt chain: the first attempt plus its retries, all
// under a single generation.
type chain struct {
	key     string
	epoch   uint64
	gen     uint64 // shared generation, taken by the first attempt
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	fetcher Fetcher
	quiet   bool

	// guarded by coordinator.mu
	rs    retry.State
	timer Timer
	over  bool

	done chan struct{}
	next *chain // set before done closes when superseded
	err  error
}

// wait blocks until the chain (or whichever chain superseded it) settles.
func (ch *chain) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch.done:
		}
		if ch.next == nil {
			return ch.err
		}
		ch = ch.next
	}
}

type coordinator struct {
	store  *Store
	gen    gen.GenStore
	policy retry.Policy
	dedup  time.Duration
	log    Logger
	hooks  Hooks
	tracer trace.Tracer

	now       func() time.Time
	afterFunc AfterFunc
	base      context.Context

	mu     sync.Mutex
	keys   map[string]*keyState
	epoch  uint64
	closed bool
	wg     sync.WaitGroup
}

func (co *coordinator) stateLocked(key string) *keyState {
	ks, ok := co.keys[key]
	if !ok {
		ks = &keyState{}
		co.keys[key] = ks
	}
	return ks
}

// setFetcher registers f for later passive triggers without fetching.
func (co *coordinator) setFetcher(key string, f Fetcher) {
	co.mu.Lock()
	if !co.closed {
		co.stateLocked(key).fetcher = f
	}
	co.mu.Unlock()
}

// trigger returns the chain the caller should observe. A nil chain with a nil
// error means the request was deduplicated against a recent successful fetch.
func (co *coordinator) trigger(key string, f Fetcher, tr trigger) (*chain, error) {
	if key == DisabledKey {
		return nil, ErrDisabledKey
	}

	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil, ErrClosed
	}
	ks := co.stateLocked(key)
	if f != nil && (ks.fetcher == nil || !tr.quiet) {
		ks.fetcher = f
	}
	if f == nil {
		f = ks.fetcher
	}
	if f == nil {
		co.mu.Unlock()
		return nil, ErrNoFetcher
	}

	now := co.now()
	if cur := ks.cur; cur != nil && !tr.supersede {
		if !tr.force || now.Sub(cur.started) < co.dedup {
			if !tr.quiet {
				cur.quiet = false
			}
			co.mu.Unlock()
			return cur, nil
		}
	}
	if ks.cur == nil && !tr.force && !tr.supersede && ks.lastOK && now.Sub(ks.lastStart) < co.dedup {
		co.mu.Unlock()
		return nil, nil
	}

	ctx, cancel := context.WithCancel(co.base)
	ch := &chain{
		key:     key,
		epoch:   co.advanceLocked(key),
		ctx:     ctx,
		cancel:  cancel,
		started: now,
		fetcher: f,
		quiet:   tr.quiet,
		done:    make(chan struct{}),
	}
	if old := ks.cur; old != nil {
		co.supersedeLocked(old, ch)
	}
	ks.cur = ch
	ks.phase = phaseValidating
	ks.lastStart = now
	ks.lastOK = false
	co.wg.Add(1)
	co.mu.Unlock()

	go co.attempt(ch)
	return ch, nil
}

func (co *coordinator) supersedeLocked(old, next *chain) {
	co.stopRetryLocked(old)
	old.cancel()
	if !old.over {
		old.over = true
		old.next = next
		close(old.done)
	}
}

// stopRetryLocked cancels a pending retry timer and reports whether it was pending.
func (co *coordinator) stopRetryLocked(ch *chain) bool {
	if ch.timer == nil {
		return false
	}
	stopped := ch.timer.Stop()
	ch.timer = nil
	if stopped {
		co.wg.Done()
	}
	return stopped
}

// revalidate forces a chain for key and waits for its outcome.
func (co *coordinator) revalidate(ctx context.Context, key string, f Fetcher) error {
	ch, err := co.trigger(key, f, revalidateTrigger)
	if err != nil || ch == nil {
		return err
	}
	return ch.wait(ctx)
}

// current reports whether ch is still the chain of record for its key and no
// write or invalidation advanced the key since it started. Memory only; it runs
// under the store lock.
func (co *coordinator) current(ch *chain) bool {
	ks, ok := co.keys[ch.key]
	return ok && ks.cur == ch && ks.epoch == ch.epoch
}

func (co *coordinator) inFlight(key string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	ks, ok := co.keys[key]
	return ok && ks.cur != nil
}

// write applies fn only while ch is current. The check runs under the store lock.
func (co *coordinator) write(ch *chain, fn func(*Entry)) bool {
	_, ok := co.store.SetIf(ch.key, func(Entry) bool {
		co.mu.Lock()
		defer co.mu.Unlock()
		return co.current(ch)
	}, fn)
	return ok
}

func (co *coordinator) attempt(ch *chain) {
	defer co.wg.Done()

	co.mu.Lock()
	ch.timer = nil
	attemptNo := ch.rs.RetryCount + 1
	if ks, ok := co.keys[ch.key]; ok && ks.cur == ch {
		ks.phase = phaseValidating
	}
	co.mu.Unlock()

	if attemptNo == 1 {
		if g, err := co.gen.Bump(ch.ctx, ch.key); err == nil {
			ch.gen = g
		} else if ch.ctx.Err() == nil {
			co.log.Warn("generation bump failed", Fields{"key": ch.key, "err": err})
		}
	}
	if ch.ctx.Err() != nil {
		co.settle(ch, nil, ch.ctx.Err(), attemptNo, 0)
		return
	}
	co.write(ch, func(e *Entry) { e.IsValidating = true })

	ctx, span := co.tracer.Start(ch.ctx, "swrcache.fetch", trace.WithAttributes(
		attribute.String("swrcache.key", ch.key),
		attribute.Int64("swrcache.generation", int64(ch.gen)),
		attribute.Int("swrcache.attempt", attemptNo),
	))
	co.hooks.FetchStarted(ch.key, ch.gen, attemptNo)
	start := co.now()
	v, err := safeFetch(ctx, ch.fetcher, ch.key)
	took := co.now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	co.settle(ch, v, err, attemptNo, took)
}

func safeFetch(ctx context.Context, f Fetcher, key string) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("swrcache: fetcher panicked: %v", r)
		}
	}()
	return f(ctx, key)
}

type outcome uint8

const (
	outDiscard outcome = iota
	outSuccess
	outAbort
	outQuiet
	outRetry
	outTerminal
)

func (co *coordinator) settle(ch *chain, v any, err error, attemptNo int, took time.Duration) {
	kind := errclass.Unknown
	if err != nil {
		kind = errclass.Classify(err)
	}

	co.mu.Lock()
	var out outcome
	switch {
	case ch.over || !co.current(ch):
		out = outDiscard
	case err == nil:
		out = outSuccess
	case kind == errclass.Abort:
		out = outAbort
	case ch.quiet:
		out = outQuiet
	case co.policy.ShouldRetryKind(kind, ch.rs.RetryCount):
		out = outRetry
	default:
		out = outTerminal
	}
	var delay time.Duration
	retryNo := ch.rs.RetryCount
	if out == outRetry {
		delay = co.policy.DelayFor(ch.rs.RetryCount)
		ch.rs = ch.rs.Failed(kind).Advance()
		retryNo = ch.rs.RetryCount
		co.keys[ch.key].phase = phaseSettled
	}
	co.mu.Unlock()

	// The chain stays the chain of record until its result is written; release
	// runs only afterwards so the write's currency check can pass.
	now := co.now()
	switch out {
	case outDiscard:
		co.discard(ch, err)
		return

	case outSuccess:
		if !co.write(ch, func(e *Entry) {
			e.Data = v
			e.HasData = true
			e.Err = nil
			e.Kind = errclass.Unknown
			e.IsValidating = false
			e.Stale = false
			e.DataUpdatedAt = now
		}) {
			co.discard(ch, nil)
			return
		}
		co.release(ch, true)
		co.hooks.FetchSettled(ch.key, ch.gen, kind, nil, took)
		co.finish(ch, nil)
		return

	case outAbort, outQuiet:
		if !co.write(ch, func(e *Entry) { e.IsValidating = false }) {
			co.discard(ch, err)
			return
		}
		co.release(ch, false)
		if out == outQuiet {
			co.log.Debug("background fetch failed", Fields{"key": ch.key, "kind": kind.String(), "err": err})
		}
		co.finish(ch, err)
		return
	}

	if !co.write(ch, func(e *Entry) {
		e.Err = err
		e.Kind = kind
		e.IsValidating = false
	}) {
		co.discard(ch, err)
		return
	}
	co.hooks.FetchSettled(ch.key, ch.gen, kind, err, took)

	if out == outRetry {
		co.mu.Lock()
		scheduled := false
		if !co.closed && !ch.over && co.current(ch) {
			co.wg.Add(1)
			ch.timer = co.afterFunc(delay, func() { co.attempt(ch) })
			scheduled = true
		}
		co.mu.Unlock()
		if !scheduled {
			co.release(ch, false)
			co.finish(ch, ErrClosed)
			return
		}
		co.hooks.RetryScheduled(ch.key, retryNo, delay, kind)
		co.log.Debug("fetch retry scheduled", Fields{"key": ch.key, "kind": kind.String(), "retry": retryNo, "delay": delay})
		return
	}

	co.release(ch, false)
	if kind == errclass.Auth {
		co.hooks.AuthFailure(ch.key, err)
		co.log.Warn("fetch unauthorized", Fields{"key": ch.key, "err": err})
	} else {
		co.log.Error("fetch failed", Fields{"key": ch.key, "kind": kind.String(), "err": err, "attempts": attemptNo})
	}
	co.finish(ch, &FetchError{Key: ch.key, Kind: kind, Attempts: attemptNo, Err: err})
}

// release ends ch's tenure as chain of record, if it still holds it.
func (co *coordinator) release(ch *chain, ok bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	ks, exists := co.keys[ch.key]
	if !exists || ks.cur != ch {
		return
	}
	ks.cur = nil
	ks.phase = phaseIdle
	ks.lastOK = ok
	ch.rs = ch.rs.Reset()
}

// discard drops ch's result. The entry's IsValidating flag is cleared unless
// another chain for the key is running.
func (co *coordinator) discard(ch *chain, err error) {
	co.release(ch, false)
	co.hooks.FetchDiscarded(ch.key, ch.gen)
	co.clearValidating(ch.key)
	co.finish(ch, err)
}

// clearValidating resets IsValidating when no chain for key is in flight anymore.
func (co *coordinator) clearValidating(key string) {
	co.store.SetIf(key, func(e Entry) bool {
		return e.IsValidating && !co.inFlight(key)
	}, func(e *Entry) { e.IsValidating = false })
}

func (co *coordinator) finish(ch *chain, err error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if ch.over {
		return
	}
	ch.over = true
	ch.err = err
	ch.cancel()
	close(ch.done)
}

// forget clears dedup memory so the next mount refetches.
func (co *coordinator) forget(keys []string) {
	co.mu.Lock()
	for _, k := range keys {
		if ks, ok := co.keys[k]; ok {
			ks.lastOK = false
		}
	}
	co.mu.Unlock()
}

// drop removes state for an evicted key unless a chain is still running for it.
func (co *coordinator) drop(key string) {
	co.mu.Lock()
	if ks, ok := co.keys[key]; ok && ks.cur == nil {
		delete(co.keys, key)
	}
	co.mu.Unlock()
}

func (co *coordinator) advanceLocked(key string) uint64 {
	co.epoch++
	co.stateLocked(key).epoch = co.epoch
	return co.epoch
}

// advance makes every chain running for key unable to write. Safe to call from
// inside a store write.
func (co *coordinator) advance(key string) {
	co.mu.Lock()
	co.advanceLocked(key)
	co.mu.Unlock()
}

// bumpShared moves the shared generation so cold copies written earlier are
// rejected. It may be a network call and never runs under a lock.
func (co *coordinator) bumpShared(key string) {
	if _, err := co.gen.Bump(co.base, key); err != nil {
		co.log.Warn("generation bump failed", Fields{"key": key, "err": err})
	}
}

// bump is advance followed by bumpShared.
func (co *coordinator) bump(key string) {
	co.advance(key)
	co.bumpShared(key)
}

func (co *coordinator) phaseOf(key string) phase {
	co.mu.Lock()
	defer co.mu.Unlock()
	if ks, ok := co.keys[key]; ok {
		return ks.phase
	}
	return phaseIdle
}

// close cancels every chain and waits for running attempts.
func (co *coordinator) close(ctx context.Context) error {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil
	}
	co.closed = true
	for _, ks := range co.keys {
		ch := ks.cur
		if ch == nil {
			continue
		}
		ch.cancel()
		if co.stopRetryLocked(ch) && !ch.over {
			// backing off; no attempt will settle it
			ch.over = true
			ch.err = ErrClosed
			close(ch.done)
		}
	}
	co.mu.Unlock()

	done := make(chan struct{})
	go func() {
		co.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
