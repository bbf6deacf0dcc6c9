package cacheinfra

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LRUConfig configures the tagged in-process store.
type LRUConfig struct {
	// Capacity is the maximum number of entries. Must be greater than 0.
	Capacity int
}

// DefaultLRUConfig returns the default LRU configuration.
func DefaultLRUConfig() LRUConfig {
	return LRUConfig{Capacity: 5000}
}

// Validate checks the configuration.
func (c LRUConfig) Validate() error {
	return firstFailure([]check{{"Capacity", c.Capacity <= 0, "must be greater than 0"}})
}

// lruStore is a bounded in-process store with native tag support. Tag
// membership is kept in a side index that follows evictions.
// Every mutation of entries happens under mu, so the eviction callback can
// edit tags without locking.
type lruStore struct {
	entries *lru.Cache[string, entry]
	group   singleflight.Group
	now     func() time.Time

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// NewLRUStore creates a tagged store backed by golang-lru.
func NewLRUStore(cfg LRUConfig) (*lruStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &lruStore{
		now:  time.Now,
		tags: make(map[string]map[string]struct{}),
	}
	entries, err := lru.NewWithEvict[string, entry](cfg.Capacity, s.evicted)
	if err != nil {
		return nil, err
	}
	s.entries = entries
	return s, nil
}

// ProcessLocal reports true: entries live in this process only.
func (s *lruStore) ProcessLocal() bool { return true }

// Get returns the live value stored under key.
func (s *lruStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Remember stores key without tags.
func (s *lruStore) Remember(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	return s.RememberTagged(ctx, nil, key, ttl, fetch)
}

// RememberTagged returns the live value under key or stores the fetched one under tags.
// Concurrent misses on the same key collapse into a single fetch.
func (s *lruStore) RememberTagged(ctx context.Context, tags []string, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if e, ok := s.lookup(key); ok {
		return e.value, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if e, ok := s.lookup(key); ok {
			return e.value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.store(key, tags, newEntry(value, ttl, s.now()))
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// FlushTags removes every entry stored under any of tags.
func (s *lruStore) FlushTags(ctx context.Context, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tag := range tags {
		for key := range s.tags[tag] {
			s.entries.Remove(key)
		}
		delete(s.tags, tag)
	}
	return nil
}

// Forget removes a single entry. The eviction callback drops its tags.
func (s *lruStore) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Remove(key)
	return nil
}

// Len reports the number of entries held, expired ones included.
func (s *lruStore) Len() int {
	return s.entries.Len()
}

// tagMembers counts tag memberships across all tags.
func (s *lruStore) tagMembers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, members := range s.tags {
		n += len(members)
	}
	return n
}

func (s *lruStore) store(key string, tags []string, e entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries.Peek(key); ok {
		s.untag(key, old.tags)
	}
	e.tags = append([]string(nil), tags...)
	s.entries.Add(key, e)
	for _, tag := range tags {
		members, ok := s.tags[tag]
		if !ok {
			members = make(map[string]struct{})
			s.tags[tag] = members
		}
		members[key] = struct{}{}
	}
}

func (s *lruStore) lookup(key string) (entry, bool) {
	e, ok := s.entries.Get(key)
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		s.entries.Remove(key)
		s.mu.Unlock()
		return entry{}, false
	}
	return e, true
}

// evicted runs for capacity evictions and removals. Callers hold mu.
func (s *lruStore) evicted(key string, e entry) {
	s.untag(key, e.tags)
}

func (s *lruStore) untag(key string, tags []string) {
	for _, tag := range tags {
		members, ok := s.tags[tag]
		if !ok {
			continue
		}
		delete(members, key)
		if len(members) == 0 {
			delete(s.tags, tag)
		}
	}
}
