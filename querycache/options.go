package querycache

import (
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

// Option overrides the caching configuration of a single call.
type Option func(*callConfig)

type callConfig struct {
	driver   string
	lifetime time.Duration
}

// WithDriver caches the call on the named driver instead of the default one.
func WithDriver(name string) Option {
	return func(c *callConfig) {
		c.driver = name
	}
}

// WithLifetime sets the entry lifetime. Zero keeps the default.
func WithLifetime(d time.Duration) Option {
	return func(c *callConfig) {
		c.lifetime = d
	}
}

// Forever stores the entry without expiry.
func Forever() Option {
	return WithLifetime(cache.Forever)
}

// resolve builds a fresh call configuration. Nothing is kept between calls.
func (c *Cache) resolve(opts []Option) (callConfig, error) {
	cfg := callConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.lifetime == 0 {
		cfg.lifetime = c.defaultLifetime
	}
	if cfg.lifetime < 0 && cfg.lifetime != cache.Forever {
		return callConfig{}, ErrInvalidLifetime
	}
	if cfg.driver == "" {
		cfg.driver = c.manager.DefaultDriver()
	}
	return cfg, nil
}
