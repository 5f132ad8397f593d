package swrcache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Toggle overrides a client-wide default for one key family.
type Toggle uint8

const (
	ToggleDefault Toggle = iota
	ToggleOn
	ToggleOff
)

func (t Toggle) enabled(def bool) bool {
	switch t {
	case ToggleOn:
		return true
	case ToggleOff:
		return false
	}
	return def
}

// Family configures passive triggers for every key starting with Prefix.
// The longest matching prefix wins.
type Family struct {
	Prefix    string
	Poll      time.Duration // 0 => no polling
	Focus     Toggle
	Reconnect Toggle
}

type families []Family

func newFamilies(fs []Family) families {
	out := append(families(nil), fs...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return out
}

func (fs families) lookup(key string) (Family, bool) {
	for _, f := range fs {
		if strings.HasPrefix(key, f.Prefix) {
			return f, true
		}
	}
	return Family{}, false
}

// Focus revalidates every subscribed key whose family revalidates on focus.
// Call it when the application regains focus.
func (c *Client) Focus() {
	c.passive("focus", func(f Family) bool { return f.Focus.enabled(!c.disableFocus) })
}

// Reconnect revalidates every subscribed key whose family revalidates on reconnect.
// Call it when the network comes back.
func (c *Client) Reconnect() {
	c.passive("reconnect", func(f Family) bool { return f.Reconnect.enabled(!c.disableReconnect) })
}

func (c *Client) passive(source string, enabled func(Family) bool) {
	if c.isClosed() {
		return
	}
	n := 0
	for _, k := range c.store.ActiveKeys() {
		f, _ := c.fam.lookup(k)
		if !enabled(f) {
			continue
		}
		if _, err := c.co.trigger(k, nil, revalidateTrigger); err == nil {
			n++
		}
	}
	c.log.Debug("passive revalidation", Fields{"source": source, "keys": n})
}

type poller struct {
	mu      sync.Mutex
	timer   Timer
	stopped bool
}

func (p *poller) stop() {
	p.mu.Lock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
}

// activate starts polling when key gains its first subscriber.
func (c *Client) activate(key string) {
	f, ok := c.fam.lookup(key)
	if !ok || f.Poll <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, running := c.pollers[key]; running {
		return
	}
	p := &poller{}
	c.pollers[key] = p
	c.schedulePoll(key, p, f.Poll)
}

func (c *Client) schedulePoll(key string, p *poller, every time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.timer = c.afterFunc(every, func() {
		if _, err := c.co.trigger(key, nil, revalidateTrigger); err != nil && err != ErrNoFetcher {
			return
		}
		c.schedulePoll(key, p, every)
	})
}

// deactivate stops polling when key loses its last subscriber.
func (c *Client) deactivate(key string) {
	c.mu.Lock()
	p, ok := c.pollers[key]
	delete(c.pollers, key)
	c.mu.Unlock()
	if ok {
		p.stop()
	}
}
