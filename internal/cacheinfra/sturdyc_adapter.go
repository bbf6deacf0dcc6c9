package cacheinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/viccon/sturdyc"
)

// MemoryConfig sizes the sturdyc client behind the memory driver.
type MemoryConfig struct {
	Capacity  int
	NumShards int
	// TTL is the client wide lifetime. Per entry lifetimes are enforced on
	// top of it, so it also bounds entries stored forever.
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultMemoryConfig returns the memory driver defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions returns the optional sturdyc settings. The sizing fields
// go to sturdyc.New directly. Early refreshes stay off: a background refresh
// writes entries no key index tracks, so a flush could never reach them.
func (c MemoryConfig) ToSturdycOptions() []sturdyc.Option {
	var opts []sturdyc.Option
	if c.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return opts
}

type check struct {
	field string
	bad   bool
	msg   string
}

// Validate reports the first invalid field as a *ConfigError.
func (c MemoryConfig) Validate() error {
	checks := []check{
		{"Capacity", c.Capacity <= 0, "must be greater than 0"},
		{"NumShards", c.NumShards <= 0, "must be greater than 0"},
		{"TTL", c.TTL <= 0, "must be greater than 0"},
		{"EvictionPercentage", c.EvictionPercentage < 1 || c.EvictionPercentage > 100, "must be between 1 and 100"},
		{"EvictionInterval", c.EvictionInterval < 0, "must be non-negative"},
	}
	return firstFailure(checks)
}

func firstFailure(checks []check) error {
	for _, ch := range checks {
		if ch.bad {
			return &ConfigError{Field: ch.field, Message: ch.msg}
		}
	}
	return nil
}

// ConfigError names the store setting that failed validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cacheinfra: invalid %s: %s", e.Field, e.Message)
}

// sturdycStore keeps encoded query results in a sturdyc client.
// It has no notion of tags, so entity scoping goes through the key index.
type sturdycStore struct {
	client *sturdyc.Client[entry]
	now    func() time.Time
}

// NewSturdycStore creates the memory driver store.
func NewSturdycStore(cfg MemoryConfig) (*sturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, cfg.ToSturdycOptions()...)
	return &sturdycStore{client: client, now: time.Now}, nil
}

// ProcessLocal reports true: entries live in this process only.
func (s *sturdycStore) ProcessLocal() bool { return true }

// Get returns the live value stored under key.
func (s *sturdycStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Remember returns the live value under key or stores the result of fetch.
// Concurrent misses for the same key share one in-flight fetch inside sturdyc.
func (s *sturdycStore) Remember(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if e, ok := s.lookup(key); ok {
		return e.value, nil
	}

	e, err := s.client.GetOrFetch(ctx, key, func(ctx context.Context) (entry, error) {
		value, err := fetch(ctx)
		if err != nil {
			return entry{}, err
		}
		return newEntry(value, ttl, s.now()), nil
	})
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// Forget removes a single entry.
func (s *sturdycStore) Forget(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// ForgetMany removes multiple entries in one call.
func (s *sturdycStore) ForgetMany(ctx context.Context, keys []string) error {
	for _, k := range keys {
		s.client.Delete(k)
	}
	return nil
}

// Keys lists the keys currently held by the client, expired ones included.
func (s *sturdycStore) Keys() []string {
	return s.client.ScanKeys()
}

func (s *sturdycStore) lookup(key string) (entry, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		s.client.Delete(key)
		return entry{}, false
	}
	return e, true
}
