package swrcache

import (
	"testing"
	"time"
)

// TestStoreSetNotifiesSynchronously verifies listeners see a Set before it returns
// and that Set cannot change store-owned fields.
func TestStoreSetNotifiesSynchronously(t *testing.T) {
	s := NewStore(StoreOptions{})
	var seen []Entry
	unsub := s.Subscribe("K", func(e Entry) { seen = append(seen, e) })
	defer unsub()

	got := s.Set("K", func(e *Entry) {
		e.Data = payload{V: 1}
		e.HasData = true
		e.Subscribers = 99
		e.Key = "other"
	})
	if len(seen) != 1 {
		t.Fatalf("listener should run before Set returns, got %d calls", len(seen))
	}
	if got.Key != "K" || got.Subscribers != 1 || got.Version != 1 {
		t.Fatalf("store-owned fields changed: %+v", got)
	}
	if seen[0].Data.(payload).V != 1 || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected entry %+v", seen[0])
	}

	s.Set("K", func(e *Entry) { e.IsValidating = true })
	if e, _ := s.Get("K"); e.Version != 2 || !e.HasData {
		t.Fatalf("second Set should merge: %+v", e)
	}
}

func TestStoreSetIfRejects(t *testing.T) {
	s := NewStore(StoreOptions{})
	if _, ok := s.SetIf("K", func(Entry) bool { return false }, func(e *Entry) { e.HasData = true }); ok {
		t.Fatalf("SetIf should reject")
	}
	if _, ok := s.Get("K"); ok {
		t.Fatalf("rejected SetIf must not create an entry")
	}
}

// TestStoreGCGrace verifies eviction waits for the grace period and a remount
// within it cancels eviction.
func TestStoreGCGrace(t *testing.T) {
	timers := &manualTimers{}
	s := NewStore(StoreOptions{GCGrace: time.Minute, AfterFunc: timers.afterFunc})
	var evicted []string
	s.onEvict = func(e Entry) { evicted = append(evicted, e.Key) }

	unsub := s.Subscribe("K", nil)
	s.Set("K", func(e *Entry) { e.HasData = true })
	unsub()
	unsub() // idempotent
	if s.Subscribers("K") != 0 {
		t.Fatalf("expected 0 subscribers, got %d", s.Subscribers("K"))
	}

	s.Retain("K") // remount within grace
	if n := timers.fire(); n != 0 {
		t.Fatalf("remount should cancel GC, %d timers ran", n)
	}
	if _, ok := s.Get("K"); !ok || len(evicted) != 0 {
		t.Fatalf("entry evicted despite remount")
	}

	s.Release("K")
	if n := timers.fire(); n != 1 {
		t.Fatalf("expected one GC timer, got %d", n)
	}
	if _, ok := s.Get("K"); ok {
		t.Fatalf("entry should be evicted after grace")
	}
	if len(evicted) != 1 || evicted[0] != "K" {
		t.Fatalf("onEvict not called: %v", evicted)
	}
}

func TestStoreUnsubscribedEntryIsCollected(t *testing.T) {
	timers := &manualTimers{}
	s := NewStore(StoreOptions{AfterFunc: timers.afterFunc})
	s.Set("warm", func(e *Entry) { e.HasData = true })
	timers.fire()
	if s.Len() != 0 {
		t.Fatalf("entry without subscribers should be collected")
	}
}

func TestStoreActivationCallbacks(t *testing.T) {
	s := NewStore(StoreOptions{AfterFunc: (&manualTimers{}).afterFunc})
	var active, idle int
	s.onActive = func(string) { active++ }
	s.onIdle = func(string) { idle++ }

	u1 := s.Subscribe("K", nil)
	u2 := s.Subscribe("K", nil)
	u1()
	u2()
	if active != 1 || idle != 1 {
		t.Fatalf("expected one activation and one idle, got %d/%d", active, idle)
	}
	if keys := s.ActiveKeys(); len(keys) != 0 {
		t.Fatalf("expected no active keys, got %v", keys)
	}
}

// TestStoreInvalidate verifies matches are marked stale and only subscribed ones
// are handed off for revalidation.
func TestStoreInvalidate(t *testing.T) {
	s := NewStore(StoreOptions{AfterFunc: (&manualTimers{}).afterFunc})
	unsub := s.Subscribe("a", nil)
	defer unsub()
	s.Set("a", func(e *Entry) { e.HasData = true })
	s.Set("b", func(e *Entry) { e.HasData = true })
	s.Set("c", func(e *Entry) { e.HasData = true })

	var before, after []string
	s.beforeInvalidate = func(k []string) { before = k }
	s.afterInvalidate = func(k []string) { after = k }

	matched := s.Invalidate(func(k string) bool { return k != "c" })
	if len(matched) != 2 || matched[0] != "a" || matched[1] != "b" {
		t.Fatalf("unexpected matches %v", matched)
	}
	if len(before) != 2 || len(after) != 1 || after[0] != "a" {
		t.Fatalf("callbacks: before=%v after=%v", before, after)
	}
	for k, want := range map[string]bool{"a": true, "b": true, "c": false} {
		if e, _ := s.Get(k); e.Stale != want {
			t.Fatalf("%s: stale=%v want %v", k, e.Stale, want)
		}
	}

	// idempotent
	if again := s.Invalidate(func(k string) bool { return k == "b" }); len(again) != 1 {
		t.Fatalf("re-invalidation should still match, got %v", again)
	}
}

func TestStoreReset(t *testing.T) {
	timers := &manualTimers{}
	s := NewStore(StoreOptions{AfterFunc: timers.afterFunc})
	s.Set("a", func(e *Entry) { e.HasData = true })
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("Reset should drop entries")
	}
	if timers.live() != 0 {
		t.Fatalf("Reset should stop GC timers")
	}
}
