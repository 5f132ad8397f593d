package swrcache

import (
	"testing"
	"time"
)

func mount(t *testing.T, c *Client, key string, f *counter) *Handle[payload] {
	t.Helper()
	h, err := Watch(c, key, f.fetch, WatchOptions[payload]{})
	if err != nil {
		t.Fatalf("Watch %s: %v", key, err)
	}
	t.Cleanup(h.Close)
	eventually(t, key+" to settle", settled(c, key))
	return h
}

func TestFocusRespectsFamilyToggle(t *testing.T) {
	c := newTestClient(t, func(o *Options) {
		o.Families = []Family{{Prefix: "/groups/g1/finance", Focus: ToggleOff}}
	})
	finance, board := constant(1), constant(1)
	mount(t, c, "/groups/g1/finance/splits", finance)
	mount(t, c, "/groups/g1/board", board)

	c.Focus()
	eventually(t, "board refetch", func() bool { return board.n() == 2 })
	time.Sleep(10 * time.Millisecond)
	if finance.n() != 1 {
		t.Fatalf("family with focus off must not refetch, got %d", finance.n())
	}
}

func TestDisableFocusWithFamilyOverride(t *testing.T) {
	c := newTestClient(t, func(o *Options) {
		o.DisableFocus = true
		o.Families = []Family{
			{Prefix: "/groups/", Focus: ToggleDefault},
			{Prefix: "/groups/g1/attendance", Focus: ToggleOn},
		}
	})
	attendance, board := constant(1), constant(1)
	mount(t, c, "/groups/g1/attendance/s1", attendance)
	mount(t, c, "/groups/g1/board", board)

	c.Focus()
	eventually(t, "attendance refetch", func() bool { return attendance.n() == 2 })
	time.Sleep(10 * time.Millisecond)
	if board.n() != 1 {
		t.Fatalf("focus is disabled by default, got %d board fetches", board.n())
	}
}

func TestReconnectRevalidatesActiveKeysOnly(t *testing.T) {
	c := newTestClient(t, nil)
	active := constant(1)
	mount(t, c, "a", active)
	idle := constant(1)
	register(c, "b", idle)
	seed(c, "b")

	c.Reconnect()
	eventually(t, "active refetch", func() bool { return active.n() == 2 })
	if idle.n() != 0 {
		t.Fatalf("unsubscribed key must not refetch on reconnect")
	}
}

// TestPollingFollowsSubscription verifies polling runs only while a key has
// subscribers.
func TestPollingFollowsSubscription(t *testing.T) {
	timers := &manualTimers{}
	c := newTestClient(t, func(o *Options) {
		o.AfterFunc = timers.afterFunc
		o.Families = []Family{{Prefix: "/groups/g1/attendance", Poll: 15 * time.Second}}
	})
	f := constant(1)
	h, _ := Watch(c, "/groups/g1/attendance/s1", f.fetch, WatchOptions[payload]{})
	eventually(t, "settle", settled(c, "/groups/g1/attendance/s1"))

	if n := timers.fire(); n != 1 {
		t.Fatalf("expected one poll timer, got %d", n)
	}
	eventually(t, "poll fetch", func() bool { return f.n() == 2 })
	eventually(t, "poll settle", settled(c, "/groups/g1/attendance/s1"))

	h.Close()
	c.mu.Lock()
	running := len(c.pollers)
	c.mu.Unlock()
	if running != 0 {
		t.Fatalf("poller should stop on idle")
	}
	timers.fire() // GC only
	time.Sleep(10 * time.Millisecond)
	if f.n() != 2 {
		t.Fatalf("idle key must not be polled, got %d fetches", f.n())
	}
}

func TestFamilyLookupLongestPrefix(t *testing.T) {
	fs := newFamilies([]Family{
		{Prefix: "/groups/", Poll: time.Minute},
		{Prefix: "/groups/g1/attendance", Poll: time.Second},
	})
	f, ok := fs.lookup("/groups/g1/attendance/s1")
	if !ok || f.Poll != time.Second {
		t.Fatalf("expected the attendance family, got %+v", f)
	}
	if _, ok := fs.lookup("/users/me"); ok {
		t.Fatalf("unexpected family match")
	}
}
