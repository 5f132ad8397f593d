package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/errclass"
	"github.com/unkn0wn-root/swrcache/keys"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery   uint64
	DiscardEvery uint64
	// Optional key redactor. Defaults to a SHA-256 prefix.
	Redact func(string) string
	// ShowKeys logs keys verbatim instead of redacting them.
	ShowKeys bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr   atomic.Uint64
	discardCtr atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	switch {
	case h.opts.ShowKeys:
		return k
	case h.opts.Redact != nil:
		return h.opts.Redact(k)
	}
	return keys.Hash(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) FetchStarted(key string, gen uint64, attempt int) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("swrcache.fetch_started",
		"key", h.redact(key),
		"gen", gen,
		"attempt", attempt)
}

func (h *Hooks) FetchSettled(key string, gen uint64, kind errclass.Kind, err error, took time.Duration) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Info("swrcache.fetch_failed",
			"key", h.redact(key),
			"gen", gen,
			"kind", kind.String(),
			"err", err,
			"took", took)
		return
	}
	if !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("swrcache.fetch_settled",
		"key", h.redact(key),
		"gen", gen,
		"took", took)
}

func (h *Hooks) FetchDiscarded(key string, gen uint64) {
	if h.l == nil || !sample(h.opts.DiscardEvery, &h.discardCtr) {
		return
	}
	h.l.Debug("swrcache.fetch_discarded",
		"key", h.redact(key),
		"gen", gen)
}

func (h *Hooks) RetryScheduled(key string, retry int, delay time.Duration, kind errclass.Kind) {
	if h.l == nil {
		return
	}
	h.l.Info("swrcache.retry_scheduled",
		"key", h.redact(key),
		"retry", retry,
		"delay", delay,
		"kind", kind.String())
}

func (h *Hooks) AuthFailure(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.auth_failure",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) MutationRolledBack(ks []string, kind errclass.Kind, err error) {
	if h.l == nil {
		return
	}
	red := make([]string, len(ks))
	for i, k := range ks {
		red[i] = h.redact(k)
	}
	h.l.Warn("swrcache.mutation_rolled_back",
		"keys", red,
		"kind", kind.String(),
		"err", err)
}

func (h *Hooks) EntryEvicted(key string, spilled bool) {
	if h.l == nil {
		return
	}
	h.l.Debug("swrcache.entry_evicted",
		"key", h.redact(key),
		"spilled", spilled)
}

func (h *Hooks) ColdRejected(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.cold_rejected",
		"key", h.redact(key),
		"reason", reason)
}
