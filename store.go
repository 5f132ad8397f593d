package swrcache

import (
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/swrcache/errclass"
)

// DisabledKey means "do not fetch". Watching it registers nothing.
const DisabledKey = ""

// Entry is a copy of one cached key. Err and Data may coexist: a failed
// revalidation keeps the last good data visible.
type Entry struct {
	Key     string
	Data    any
	HasData bool

	Err  error
	Kind errclass.Kind // meaningful only when Err != nil

	IsValidating bool // an attempt for this key is in flight
	Stale        bool // invalidated since DataUpdatedAt

	UpdatedAt     time.Time // last Set of any field
	DataUpdatedAt time.Time // last time Data changed through a fetch or hydrate
	Subscribers   int
	Version       uint64 // increments on every Set
}

// Listener receives a copy of the entry after each Set. Listeners run outside the
// store lock, so a listener racing with another Set may see versions out of order;
// compare Version to drop older ones.
type Listener func(Entry)

type storeEntry struct {
	e         Entry
	listeners map[uint64]Listener
	gc        Timer
	gcSeq     uint64
}

// Store is the only owner of cache entries. Every mutation goes through Set.
type Store struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
	nextID  uint64

	grace     time.Duration
	now       func() time.Time
	afterFunc AfterFunc

	// wired by Client
	onActive         func(key string)
	onIdle           func(key string)
	onEvict          func(e Entry)
	beforeInvalidate func(keys []string)
	afterInvalidate  func(subscribed []string)
}

// StoreOptions tune a standalone Store. Client builds its own.
type StoreOptions struct {
	GCGrace   time.Duration // 0 => 30s
	Now       func() time.Time
	AfterFunc AfterFunc
}

func NewStore(opts StoreOptions) *Store {
	s := &Store{
		entries:   make(map[string]*storeEntry),
		grace:     coalesce(opts.GCGrace, defaultGCGrace),
		now:       opts.Now,
		afterFunc: opts.AfterFunc,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.afterFunc == nil {
		s.afterFunc = stdAfterFunc
	}
	return s
}

func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	se, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return se.e, true
}

// Set applies fn to the entry for key, creating it if needed, then notifies the
// key's listeners before returning. fn must not call back into the Store.
// Key and Subscribers are owned by the store and survive whatever fn does.
func (s *Store) Set(key string, fn func(*Entry)) Entry {
	e, _ := s.SetIf(key, nil, fn)
	return e
}

// SetIf is Set guarded by cond, evaluated under the store lock against the current
// entry (zero Entry when absent). ok is false when cond rejected the write.
func (s *Store) SetIf(key string, cond func(Entry) bool, fn func(*Entry)) (Entry, bool) {
	s.mu.Lock()
	se, exists := s.entries[key]
	if cond != nil {
		var cur Entry
		if exists {
			cur = se.e
		}
		if !cond(cur) {
			s.mu.Unlock()
			return cur, false
		}
	}
	if !exists {
		se = &storeEntry{e: Entry{Key: key}}
		s.entries[key] = se
	}
	subs := se.e.Subscribers
	version := se.e.Version
	fn(&se.e)
	se.e.Key = key
	se.e.Subscribers = subs
	se.e.Version = version + 1
	se.e.UpdatedAt = s.now()
	if subs == 0 && se.gc == nil {
		s.scheduleGCLocked(key, se)
	}
	snap := se.e
	ls := listenersOf(se)
	s.mu.Unlock()

	for _, l := range ls {
		l(snap)
	}
	return snap, true
}

// Subscribe registers l for key and counts one subscriber. The returned func
// removes the listener and releases the subscriber; calling it twice is safe.
func (s *Store) Subscribe(key string, l Listener) (unsubscribe func()) {
	s.mu.Lock()
	se := s.entryLocked(key)
	s.nextID++
	id := s.nextID
	if l != nil {
		if se.listeners == nil {
			se.listeners = make(map[uint64]Listener)
		}
		se.listeners[id] = l
	}
	first := s.retainLocked(se)
	s.mu.Unlock()
	if first && s.onActive != nil {
		s.onActive(key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if cur, ok := s.entries[key]; ok && cur == se {
				delete(se.listeners, id)
			}
			s.mu.Unlock()
			s.Release(key)
		})
	}
}

// Retain counts a subscriber without a listener and cancels a pending GC.
func (s *Store) Retain(key string) {
	s.mu.Lock()
	first := s.retainLocked(s.entryLocked(key))
	s.mu.Unlock()
	if first && s.onActive != nil {
		s.onActive(key)
	}
}

// Release drops one subscriber. At zero the entry is evicted after the grace period
// unless it is retained again first.
func (s *Store) Release(key string) {
	s.mu.Lock()
	se, ok := s.entries[key]
	if !ok || se.e.Subscribers == 0 {
		s.mu.Unlock()
		return
	}
	se.e.Subscribers--
	idle := se.e.Subscribers == 0
	if idle {
		s.scheduleGCLocked(key, se)
	}
	s.mu.Unlock()
	if idle && s.onIdle != nil {
		s.onIdle(key)
	}
}

func (s *Store) Subscribers(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if se, ok := s.entries[key]; ok {
		return se.e.Subscribers
	}
	return 0
}

// Keys returns all known keys, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// ActiveKeys returns keys with at least one subscriber, sorted.
func (s *Store) ActiveKeys() []string {
	s.mu.Lock()
	var out []string
	for k, se := range s.entries {
		if se.e.Subscribers > 0 {
			out = append(out, k)
		}
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Invalidate marks every entry whose key satisfies pred as stale and returns the
// matched keys. Subscribed matches are handed to the revalidation callback; this
// method never fetches. DisabledKey never matches.
func (s *Store) Invalidate(pred func(key string) bool) []string {
	s.mu.Lock()
	var matched []string
	for k := range s.entries {
		if k != DisabledKey && pred(k) {
			matched = append(matched, k)
		}
	}
	s.mu.Unlock()
	if len(matched) == 0 {
		return nil
	}
	sort.Strings(matched)

	if s.beforeInvalidate != nil {
		s.beforeInvalidate(matched)
	}

	var subscribed []string
	for _, k := range matched {
		e, ok := s.SetIf(k, func(cur Entry) bool { return cur.Key != "" }, func(e *Entry) { e.Stale = true })
		if ok && e.Subscribers > 0 {
			subscribed = append(subscribed, k)
		}
	}
	if len(subscribed) > 0 && s.afterInvalidate != nil {
		s.afterInvalidate(subscribed)
	}
	return matched
}

// Reset drops every entry and stops pending evictions. Listeners are not called.
func (s *Store) Reset() {
	s.mu.Lock()
	for _, se := range s.entries {
		if se.gc != nil {
			se.gc.Stop()
		}
	}
	s.entries = make(map[string]*storeEntry)
	s.mu.Unlock()
}

func (s *Store) entryLocked(key string) *storeEntry {
	se, ok := s.entries[key]
	if !ok {
		se = &storeEntry{e: Entry{Key: key}}
		s.entries[key] = se
	}
	return se
}

func (s *Store) retainLocked(se *storeEntry) (first bool) {
	if se.gc != nil {
		se.gc.Stop()
		se.gc = nil
		se.gcSeq++
	}
	se.e.Subscribers++
	return se.e.Subscribers == 1
}

func (s *Store) scheduleGCLocked(key string, se *storeEntry) {
	if se.gc != nil {
		se.gc.Stop()
	}
	se.gcSeq++
	seq := se.gcSeq
	se.gc = s.afterFunc(s.grace, func() { s.collect(key, se, seq) })
}

func (s *Store) collect(key string, se *storeEntry, seq uint64) {
	s.mu.Lock()
	cur, ok := s.entries[key]
	if !ok || cur != se || se.gcSeq != seq || se.e.Subscribers > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	snap := se.e
	s.mu.Unlock()
	if s.onEvict != nil {
		s.onEvict(snap)
	}
}

func listenersOf(se *storeEntry) []Listener {
	if len(se.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(se.listeners))
	for id := range se.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = se.listeners[id]
	}
	return out
}
