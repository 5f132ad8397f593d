package swrcache

import (
	"github.com/unkn0wn-root/swrcache/config"
	"github.com/unkn0wn-root/swrcache/retry"
)

// OptionsFromConfig maps environment configuration onto Options. Fields config
// does not cover (stores, logger, hooks, notifier) are left for the caller.
func OptionsFromConfig(cfg config.Config) Options {
	o := Options{
		DedupWindow:      cfg.DedupWindow,
		FreshFor:         cfg.FreshFor,
		GCGrace:          cfg.GCGrace,
		ColdTTL:          cfg.ColdTTL,
		DisableFocus:     !cfg.RevalidateOnFocus,
		DisableReconnect: !cfg.RevalidateOnReconnect,
		Locale:           cfg.Locale,
		Retry: retry.Policy{
			MaxRetries: cfg.RetryCap,
			Base:       cfg.BackoffBase,
			Factor:     cfg.BackoffFactor,
			Cap:        cfg.BackoffCap,
		},
	}
	if cfg.DedupWindow == 0 {
		o.DedupWindow = -1
	}
	if cfg.RetryCap == 0 {
		o.Retry.MaxRetries = -1
	}
	for prefix, every := range cfg.PollIntervals {
		o.Families = append(o.Families, Family{Prefix: prefix, Poll: every})
	}
	return o
}
