package swrcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	gen "github.com/unkn0wn-root/swrcache/genstore"
	"github.com/unkn0wn-root/swrcache/notify"
	pr "github.com/unkn0wn-root/swrcache/provider"
	"github.com/unkn0wn-root/swrcache/retry"
)

// Options tune a Client. The zero value is usable; every field has a default.
type Options struct {
	// DedupWindow collapses triggers for the same key. 0 => 2s; negative disables.
	DedupWindow time.Duration
	// FreshFor is how long fetched data satisfies a new subscriber without a refetch. 0 => 30s.
	FreshFor time.Duration
	// GCGrace keeps an unsubscribed entry around for quick remounts. 0 => 30s.
	GCGrace time.Duration
	Retry   retry.Policy // zero => 3 retries, 1s * 3^n, cap 30s

	DisableFocus     bool // default revalidate-on-focus for families that don't say
	DisableReconnect bool
	Families         []Family // per key family polling and trigger overrides

	GenStore gen.GenStore // nil => LocalGenStore (in-process)
	Cold     pr.Provider  // nil => evicted entries are dropped
	ColdTTL  time.Duration

	Logger   Logger        // if nil, NopLogger is used
	Hooks    Hooks         // if nil, NopHooks is used
	Notifier notify.Notifier
	Locale   string // notification language; "" => English
	Tracer   trace.Tracer

	Now       func() time.Time
	AfterFunc AfterFunc
}

// Client is one cache instance: a Store plus the coordinator, invalidation,
// mutation and trigger machinery around it. Create one per application, or per
// test for isolation.
type Client struct {
	store   *Store
	co      *coordinator
	gen     gen.GenStore
	ownGen  bool
	cold    *coldTier
	queue   *keyQueue
	fam     families
	catalog *notify.Catalog

	log      Logger
	hooks    Hooks
	notifier notify.Notifier

	freshFor         time.Duration
	disableFocus     bool
	disableReconnect bool
	now              func() time.Time
	afterFunc        AfterFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pollers map[string]*poller
	closed  bool
}

func New(opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		log:              coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:            coalesce[Hooks](opts.Hooks, NopHooks{}),
		notifier:         coalesce[notify.Notifier](opts.Notifier, notify.Nop{}),
		catalog:          notify.NewCatalog(opts.Locale),
		freshFor:         coalesce(opts.FreshFor, defaultFreshFor),
		disableFocus:     opts.DisableFocus,
		disableReconnect: opts.DisableReconnect,
		now:              opts.Now,
		afterFunc:        opts.AfterFunc,
		fam:              newFamilies(opts.Families),
		queue:            newKeyQueue(),
		pollers:          make(map[string]*poller),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.afterFunc == nil {
		c.afterFunc = stdAfterFunc
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		// in-process generations with periodic cleanup of idle counters
		c.gen = gen.NewLocalGenStore(defaultGenSweep, defaultGenRetain)
		c.ownGen = true
	}

	dedup := coalesce(opts.DedupWindow, defaultDedupWindow)
	if dedup < 0 {
		dedup = 0
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	c.store = NewStore(StoreOptions{GCGrace: opts.GCGrace, Now: c.now, AfterFunc: c.afterFunc})
	c.co = &coordinator{
		store:     c.store,
		gen:       c.gen,
		policy:    opts.Retry,
		dedup:     dedup,
		log:       c.log,
		hooks:     c.hooks,
		tracer:    tracer,
		now:       c.now,
		afterFunc: c.afterFunc,
		base:      c.ctx,
		keys:      make(map[string]*keyState),
	}
	if opts.Cold != nil {
		c.cold = newColdTier(opts.Cold, coalesce(opts.ColdTTL, defaultColdTTL))
	}

	c.store.onActive = c.activate
	c.store.onIdle = c.deactivate
	c.store.onEvict = c.evicted
	c.store.beforeInvalidate = c.invalidating
	c.store.afterInvalidate = c.revalidateSubscribed

	return c, nil
}

func (o Options) validate() error {
	switch {
	case o.FreshFor < 0:
		return fmt.Errorf("swrcache: FreshFor must be >= 0, got %s", o.FreshFor)
	case o.GCGrace < 0:
		return fmt.Errorf("swrcache: GCGrace must be >= 0, got %s", o.GCGrace)
	case o.ColdTTL < 0:
		return fmt.Errorf("swrcache: ColdTTL must be >= 0, got %s", o.ColdTTL)
	}
	for _, f := range o.Families {
		if f.Poll < 0 {
			return fmt.Errorf("swrcache: family %q: poll interval must be >= 0", f.Prefix)
		}
	}
	return nil
}

// Store exposes the underlying entries. Writes made here bypass generations, so
// prefer RunOptimistic for anything a fetch could race with.
func (c *Client) Store() *Store { return c.store }

// Get returns a copy of the entry for key.
func (c *Client) Get(key string) (Entry, bool) { return c.store.Get(key) }

// Revalidate forces a fetch for key with its registered fetcher and waits for it.
func (c *Client) Revalidate(ctx context.Context, key string) error {
	if c.isClosed() {
		return ErrClosed
	}
	return c.co.revalidate(ctx, key, nil)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops pollers, cancels in-flight fetches and pending retries, drops all
// entries and closes the generation store (if the client created it) and the
// cold provider. Operations after Close return ErrClosed.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for k, p := range c.pollers {
		p.stop()
		delete(c.pollers, k)
	}
	c.mu.Unlock()

	c.cancel()
	var errs []error
	if err := c.co.close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for fetches: %w", err))
	}
	c.store.Reset()
	if c.ownGen {
		if err := c.gen.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close genstore: %w", err))
		}
	}
	if c.cold != nil {
		if err := c.cold.p.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close cold provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
