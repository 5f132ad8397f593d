// Package realtime turns change-feed events into cache invalidations.
//
// An Adapter keeps one feed subscription per channel name no matter how many
// callers subscribe, and tears it down when the last one disposes. Events never
// write into the cache; they only invalidate keys so the next read matches what a
// direct fetch returns.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/swrcache"
)

const defaultDebounce = 300 * time.Millisecond

var ErrClosed = errors.New("realtime: adapter closed")

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
	Any    EventType = "*"
)

// Event is one change notification. Record carries the filterable column values
// of the changed row, e.g. {"schedule_id": "s1"}.
type Event struct {
	Channel string            `json:"channel"`
	Table   string            `json:"table"`
	Type    EventType         `json:"eventType"`
	Record  map[string]string `json:"record,omitempty"`
}

// Filter selects events. Zero fields match anything; Column and Value form an
// equality filter on Record.
type Filter struct {
	Table  string
	Event  EventType
	Column string
	Value  string
}

func (f Filter) Matches(ev Event) bool {
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if f.Event != "" && f.Event != Any && f.Event != ev.Type {
		return false
	}
	if f.Column != "" && ev.Record[f.Column] != f.Value {
		return false
	}
	return true
}

func matchAny(fs []Filter, ev Event) bool {
	if len(fs) == 0 {
		return true
	}
	for _, f := range fs {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// Feed is the push transport. deliver may be called from any goroutine until the
// returned Closer is closed.
type Feed interface {
	Subscribe(ctx context.Context, channel string, deliver func(Event)) (io.Closer, error)
}

// Invalidator is satisfied by *swrcache.Client.
type Invalidator interface {
	InvalidateExact(key string)
	InvalidateByPattern(patterns ...string)
}

// Route maps events on a table to cache keys.
type Route struct {
	Table    string
	Events   []EventType // empty => every type
	Patterns func(Event) []string
	Exact    func(Event) []string
}

func (r Route) matches(ev Event) bool {
	if r.Table != ev.Table {
		return false
	}
	if len(r.Events) == 0 {
		return true
	}
	for _, t := range r.Events {
		if t == Any || t == ev.Type {
			return true
		}
	}
	return false
}

// ByColumn builds keys from one Record column: ByColumn("attendance:", "schedule_id")
// maps a row with schedule_id=s1 to "attendance:s1". Rows without the column map to nothing.
func ByColumn(prefix, column string) func(Event) []string {
	return func(ev Event) []string {
		v, ok := ev.Record[column]
		if !ok || v == "" {
			return nil
		}
		return []string{prefix + v}
	}
}

// Static always returns keys.
func Static(keys ...string) func(Event) []string {
	return func(Event) []string { return keys }
}

// State is a channel's connection state.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	}
	return "disconnected"
}

type Options struct {
	Feed        Feed
	Invalidator Invalidator
	Routes      []Route
	// Debounce delays route invalidations and subscriber callbacks so a burst of
	// events collapses into one. 0 => 300ms; negative disables.
	Debounce  time.Duration
	Logger    swrcache.Logger
	AfterFunc swrcache.AfterFunc
}

type Adapter struct {
	feed      Feed
	inv       Invalidator
	routes    []Route
	debounce  time.Duration
	log       swrcache.Logger
	afterFunc swrcache.AfterFunc

	mu       sync.Mutex
	channels map[string]*channel
	nextID   uint64
	closed   bool
}

type channel struct {
	name   string
	state  State
	refs   int
	subs   map[uint64]*subscriber
	closer io.Closer
	ready  chan struct{}
	err    error

	patterns map[string]struct{}
	exact    map[string]struct{}
	flush    swrcache.Timer
}

type subscriber struct {
	filters []Filter
	onEvent func(Event)
	last    Event
	timer   swrcache.Timer
	gone    bool
}

func New(opts Options) (*Adapter, error) {
	if opts.Feed == nil {
		return nil, fmt.Errorf("realtime: feed is required")
	}
	a := &Adapter{
		feed:      opts.Feed,
		inv:       opts.Invalidator,
		routes:    opts.Routes,
		debounce:  opts.Debounce,
		log:       opts.Logger,
		afterFunc: opts.AfterFunc,
		channels:  make(map[string]*channel),
	}
	if a.debounce == 0 {
		a.debounce = defaultDebounce
	}
	if a.log == nil {
		a.log = swrcache.NopLogger{}
	}
	if a.afterFunc == nil {
		a.afterFunc = func(d time.Duration, f func()) swrcache.Timer { return time.AfterFunc(d, f) }
	}
	return a, nil
}

// Subscription is a caller's registration. Dispose it when the caller goes away.
type Subscription struct {
	a    *Adapter
	name string
	id   uint64
	once sync.Once
}

// SubscribeChannel registers onEvent for events on name that match any of filters
// (no filters => every event). The first subscriber opens the feed subscription;
// later ones share it.
func (a *Adapter) SubscribeChannel(ctx context.Context, name string, filters []Filter, onEvent func(Event)) (*Subscription, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	a.nextID++
	id := a.nextID
	sub := &subscriber{filters: append([]Filter(nil), filters...), onEvent: onEvent}

	ch, ok := a.channels[name]
	if !ok {
		ch = &channel{
			name:     name,
			state:    Connecting,
			subs:     make(map[uint64]*subscriber),
			ready:    make(chan struct{}),
			patterns: make(map[string]struct{}),
			exact:    make(map[string]struct{}),
		}
		a.channels[name] = ch
	}
	ch.refs++
	ch.subs[id] = sub
	s := &Subscription{a: a, name: name, id: id}
	if ok {
		ready := ch.ready
		a.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			s.Close()
			return nil, ctx.Err()
		}
		if ch.err != nil {
			return nil, ch.err
		}
		return s, nil
	}
	a.mu.Unlock()

	a.log.Debug("realtime channel connecting", swrcache.Fields{"channel": name})
	closer, err := a.feed.Subscribe(ctx, name, func(ev Event) { a.deliver(ch, ev) })

	a.mu.Lock()
	switch {
	case err != nil:
		ch.err = fmt.Errorf("realtime: subscribe %q: %w", name, err)
		ch.state = Disconnected
		if a.channels[name] == ch {
			delete(a.channels, name)
		}
		close(ch.ready)
		a.mu.Unlock()
		a.log.Warn("realtime channel failed", swrcache.Fields{"channel": name, "err": err})
		return nil, ch.err
	case a.closed:
		ch.err = ErrClosed
		ch.state = Disconnected
		close(ch.ready)
		a.mu.Unlock()
		_ = closer.Close()
		return nil, ErrClosed
	}
	ch.state = Subscribed
	ch.closer = closer
	close(ch.ready)
	a.mu.Unlock()
	a.log.Debug("realtime channel subscribed", swrcache.Fields{"channel": name})
	return s, nil
}

// Close disposes the subscription. Calling it more than once is safe.
func (s *Subscription) Close() {
	s.once.Do(func() { s.a.release(s.name, s.id) })
}

func (a *Adapter) release(name string, id uint64) {
	a.mu.Lock()
	ch, ok := a.channels[name]
	if !ok {
		a.mu.Unlock()
		return
	}
	sub, ok := ch.subs[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	sub.gone = true
	if sub.timer != nil {
		sub.timer.Stop()
	}
	delete(ch.subs, id)
	ch.refs--
	var closer io.Closer
	if ch.refs == 0 && ch.state == Subscribed {
		closer = a.teardownLocked(ch)
	}
	a.mu.Unlock()
	if closer != nil {
		if err := closer.Close(); err != nil {
			a.log.Warn("realtime channel close failed", swrcache.Fields{"channel": name, "err": err})
		}
		a.log.Debug("realtime channel disconnected", swrcache.Fields{"channel": name})
	}
}

func (a *Adapter) teardownLocked(ch *channel) io.Closer {
	ch.state = Disconnected
	if ch.flush != nil {
		ch.flush.Stop()
		ch.flush = nil
	}
	for _, sub := range ch.subs {
		sub.gone = true
		if sub.timer != nil {
			sub.timer.Stop()
		}
	}
	if a.channels[ch.name] == ch {
		delete(a.channels, ch.name)
	}
	c := ch.closer
	ch.closer = nil
	return c
}

func (a *Adapter) deliver(ch *channel, ev Event) {
	if ev.Channel == "" {
		ev.Channel = ch.name
	}
	var (
		fire     []*subscriber
		patterns []string
		exact    []string
	)

	a.mu.Lock()
	if ch.state != Subscribed {
		a.mu.Unlock()
		return
	}
	interested := false
	for _, sub := range ch.subs {
		if !matchAny(sub.filters, ev) {
			continue
		}
		interested = true
		sub.last = ev
		if a.debounce < 0 {
			fire = append(fire, sub)
			continue
		}
		if sub.timer != nil {
			sub.timer.Stop()
		}
		sub := sub
		sub.timer = a.afterFunc(a.debounce, func() { a.fire(sub) })
	}
	if interested {
		for _, r := range a.routes {
			if !r.matches(ev) {
				continue
			}
			if r.Patterns != nil {
				for _, p := range r.Patterns(ev) {
					ch.patterns[p] = struct{}{}
				}
			}
			if r.Exact != nil {
				for _, k := range r.Exact(ev) {
					ch.exact[k] = struct{}{}
				}
			}
		}
		if a.debounce < 0 {
			patterns, exact = drain(ch)
		} else if ch.flush == nil && (len(ch.patterns) > 0 || len(ch.exact) > 0) {
			ch.flush = a.afterFunc(a.debounce, func() { a.flushChannel(ch) })
		}
	}
	a.mu.Unlock()

	a.invalidate(patterns, exact)
	for _, sub := range fire {
		a.call(sub, ev)
	}
}

func (a *Adapter) fire(sub *subscriber) {
	a.mu.Lock()
	if sub.gone {
		a.mu.Unlock()
		return
	}
	sub.timer = nil
	ev := sub.last
	a.mu.Unlock()
	a.call(sub, ev)
}

func (a *Adapter) call(sub *subscriber, ev Event) {
	if sub.onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("realtime callback panicked", swrcache.Fields{"channel": ev.Channel, "panic": r})
		}
	}()
	sub.onEvent(ev)
}

func (a *Adapter) flushChannel(ch *channel) {
	a.mu.Lock()
	ch.flush = nil
	if ch.state != Subscribed {
		a.mu.Unlock()
		return
	}
	patterns, exact := drain(ch)
	a.mu.Unlock()
	a.invalidate(patterns, exact)
}

func drain(ch *channel) (patterns, exact []string) {
	patterns = sortedKeys(ch.patterns)
	exact = sortedKeys(ch.exact)
	ch.patterns = make(map[string]struct{})
	ch.exact = make(map[string]struct{})
	return patterns, exact
}

func (a *Adapter) invalidate(patterns, exact []string) {
	if a.inv == nil {
		return
	}
	if len(patterns) > 0 {
		a.inv.InvalidateByPattern(patterns...)
	}
	for _, k := range exact {
		a.inv.InvalidateExact(k)
	}
}

// State reports the connection state of a channel.
func (a *Adapter) State(name string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.channels[name]; ok {
		return ch.state
	}
	return Disconnected
}

// Refs is the number of live subscriptions on a channel.
func (a *Adapter) Refs(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ch, ok := a.channels[name]; ok {
		return ch.refs
	}
	return 0
}

// Close tears down every channel. Later subscriptions fail with ErrClosed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	var closers []io.Closer
	for _, ch := range a.channels {
		if ch.state == Subscribed {
			if c := a.teardownLocked(ch); c != nil {
				closers = append(closers, c)
			}
		}
	}
	a.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
