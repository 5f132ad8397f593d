// Package config loads the global cache configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the startup settings shared by every cache key.
type Config struct {
	DedupWindow           time.Duration `env:"SWRCACHE_DEDUP_WINDOW"            envDefault:"2s"`
	RevalidateOnFocus     bool          `env:"SWRCACHE_REVALIDATE_ON_FOCUS"     envDefault:"true"`
	RevalidateOnReconnect bool          `env:"SWRCACHE_REVALIDATE_ON_RECONNECT" envDefault:"true"`
	// PollIntervals maps a key family prefix to its polling interval,
	// e.g. "/dashboard=30s,/groups=1m". Families not listed do not poll.
	PollIntervals map[string]time.Duration `env:"SWRCACHE_POLL_INTERVALS" envSeparator:"," envKeyValSeparator:"="`

	// RetryCap is the number of retries after the first attempt. 0 disables retries.
	RetryCap      int           `env:"SWRCACHE_RETRY_CAP"      envDefault:"3"`
	BackoffBase   time.Duration `env:"SWRCACHE_BACKOFF_BASE"   envDefault:"1s"`
	BackoffFactor float64       `env:"SWRCACHE_BACKOFF_FACTOR" envDefault:"3"`
	BackoffCap    time.Duration `env:"SWRCACHE_BACKOFF_CAP"    envDefault:"30s"`

	GCGrace  time.Duration `env:"SWRCACHE_GC_GRACE"  envDefault:"30s"`
	FreshFor time.Duration `env:"SWRCACHE_FRESH_FOR" envDefault:"30s"`
	ColdTTL  time.Duration `env:"SWRCACHE_COLD_TTL"  envDefault:"10m"`
	// Debounce delays realtime callbacks so bursts of change events collapse.
	Debounce time.Duration `env:"SWRCACHE_DEBOUNCE" envDefault:"300ms"`
	Locale   string        `env:"SWRCACHE_LOCALE"`
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		DedupWindow:           2 * time.Second,
		RevalidateOnFocus:     true,
		RevalidateOnReconnect: true,
		RetryCap:              3,
		BackoffBase:           time.Second,
		BackoffFactor:         3,
		BackoffCap:            30 * time.Second,
		GCGrace:               30 * time.Second,
		FreshFor:              30 * time.Second,
		ColdTTL:               10 * time.Minute,
		Debounce:              300 * time.Millisecond,
	}
}

// Validate checks ranges. It returns a *ConfigError.
func (c Config) Validate() error {
	durations := []struct {
		field string
		d     time.Duration
	}{
		{"DedupWindow", c.DedupWindow},
		{"BackoffBase", c.BackoffBase},
		{"BackoffCap", c.BackoffCap},
		{"GCGrace", c.GCGrace},
		{"FreshFor", c.FreshFor},
		{"ColdTTL", c.ColdTTL},
		{"Debounce", c.Debounce},
	}
	for _, d := range durations {
		if d.d < 0 {
			return &ConfigError{Field: d.field, Message: "must not be negative"}
		}
	}
	if c.RetryCap < 0 {
		return &ConfigError{Field: "RetryCap", Message: "must not be negative"}
	}
	if c.BackoffFactor < 1 {
		return &ConfigError{Field: "BackoffFactor", Message: "must be at least 1"}
	}
	if c.BackoffBase > 0 && c.BackoffCap > 0 && c.BackoffCap < c.BackoffBase {
		return &ConfigError{Field: "BackoffCap", Message: "must not be below BackoffBase"}
	}
	for prefix, d := range c.PollIntervals {
		if d < 0 {
			return &ConfigError{Field: "PollIntervals", Message: fmt.Sprintf("%q: must not be negative", prefix)}
		}
	}
	return nil
}
