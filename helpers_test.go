package swrcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/swrcache/errclass"
	"github.com/unkn0wn-root/swrcache/notify"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

type memEntry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type memProvider struct {
	mu sync.Mutex
	m  map[string]memEntry
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string]memEntry)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(p.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	p.m[key] = memEntry{v: append([]byte(nil), value...), exp: exp}
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

// manualTimers holds scheduled callbacks until fire is called.
type manualTimers struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	f       func()
	d       time.Duration
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{f: f, d: d}
	m.mu.Lock()
	m.pending = append(m.pending, t)
	m.mu.Unlock()
	return t
}

// fire runs every live timer scheduled so far and reports how many ran.
func (m *manualTimers) fire() int {
	m.mu.Lock()
	ts := m.pending
	m.pending = nil
	m.mu.Unlock()
	n := 0
	for _, t := range ts {
		t.mu.Lock()
		live := !t.stopped
		t.stopped = true
		t.mu.Unlock()
		if live {
			t.f()
			n++
		}
	}
	return n
}

func (m *manualTimers) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		t.mu.Lock()
		if !t.stopped {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

type logLine struct {
	level string
	msg   string
	f     Fields
}

type recLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	l.lines = append(l.lines, logLine{level, msg, f})
	l.mu.Unlock()
}

func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

func (l *recLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ln := range l.lines {
		if ln.level == level && ln.msg == msg {
			n++
		}
	}
	return n
}

type recHooks struct {
	NopHooks
	mu        sync.Mutex
	discarded int
	auth      int
	retries   int
	rolled    int
	evicted   map[string]bool
	rejected  map[string]string
}

func newRecHooks() *recHooks {
	return &recHooks{evicted: make(map[string]bool), rejected: make(map[string]string)}
}

func (h *recHooks) FetchDiscarded(string, uint64) { h.mu.Lock(); h.discarded++; h.mu.Unlock() }
func (h *recHooks) AuthFailure(string, error)     { h.mu.Lock(); h.auth++; h.mu.Unlock() }
func (h *recHooks) RetryScheduled(string, int, time.Duration, errclass.Kind) {
	h.mu.Lock()
	h.retries++
	h.mu.Unlock()
}
func (h *recHooks) MutationRolledBack([]string, errclass.Kind, error) {
	h.mu.Lock()
	h.rolled++
	h.mu.Unlock()
}
func (h *recHooks) EntryEvicted(k string, spilled bool) {
	h.mu.Lock()
	h.evicted[k] = spilled
	h.mu.Unlock()
}
func (h *recHooks) ColdRejected(k, reason string) {
	h.mu.Lock()
	h.rejected[k] = reason
	h.mu.Unlock()
}

func (h *recHooks) get(f func(h *recHooks) int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return f(h)
}

func (h *recHooks) evictedKey(k string) (spilled, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	spilled, ok = h.evicted[k]
	return spilled, ok
}

func (h *recHooks) rejectedKey(k string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejected[k]
}

type recNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *recNotifier) Notify(_ context.Context, x notify.Notification) {
	n.mu.Lock()
	n.got = append(n.got, x)
	n.mu.Unlock()
}

func (n *recNotifier) all() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.got...)
}

type payload struct {
	V int `json:"v"`
}

// counter is a fetcher whose results are scripted per call.
type counter struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (payload, error)
}

func (c *counter) fetch(ctx context.Context, _ string) (payload, error) {
	n := int(c.calls.Add(1))
	return c.fn(ctx, n)
}

func (c *counter) n() int { return int(c.calls.Load()) }

func constant(v int) *counter {
	return &counter{fn: func(context.Context, int) (payload, error) { return payload{V: v}, nil }}
}

func newTestClient(t *testing.T, mod func(*Options)) *Client {
	t.Helper()
	opts := Options{}
	if mod != nil {
		mod(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dataOf(t *testing.T, c *Client, key string) (payload, bool) {
	t.Helper()
	e, ok := c.Get(key)
	if !ok || !e.HasData {
		return payload{}, false
	}
	p, ok := e.Data.(payload)
	if !ok {
		t.Fatalf("unexpected data type %T for %q", e.Data, key)
	}
	return p, true
}

func settled(c *Client, key string) func() bool {
	return func() bool {
		e, ok := c.Get(key)
		return ok && !e.IsValidating && !c.co.inFlight(key) && (e.HasData || e.Err != nil)
	}
}

// register makes f the fetcher for key without mounting or fetching.
func register(c *Client, key string, f *counter) {
	c.co.setFetcher(key, func(ctx context.Context, k string) (any, error) { return f.fetch(ctx, k) })
}
