package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisConfig configures the Redis store.
type RedisConfig struct {
	// Prefix namespaces every key the store writes.
	Prefix string

	// Tags enables tag sets. When false the store reports no grouping and
	// callers fall back to the key index.
	Tags bool
}

// DefaultRedisConfig returns the default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Prefix: "querycache:", Tags: true}
}

// redisStore keeps entries as plain string values and tag membership as sets.
type redisStore struct {
	client redis.UniversalClient
	prefix string
	tags   bool
	group  singleflight.Group
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *redisStore {
	return &redisStore{client: client, prefix: cfg.Prefix, tags: cfg.Tags}
}

// SupportsGrouping reports whether tag sets are enabled.
func (s *redisStore) SupportsGrouping() bool {
	return s.tags
}

// Get returns the value stored under key.
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

// Remember stores key without tags.
func (s *redisStore) Remember(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	return s.RememberTagged(ctx, nil, key, ttl, fetch)
}

// RememberTagged returns the value under key or stores the fetched one and
// adds key to every tag set in one MULTI block. Between processes the last
// writer wins.
func (s *redisStore) RememberTagged(ctx context.Context, tags []string, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok, err := s.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.entryKey(key), value, expiration(ttl))
			for _, tag := range tags {
				pipe.SAdd(ctx, s.tagKey(tag), key)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("redis store %s: %w", key, err)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// FlushTags reads and clears each tag set atomically, then deletes its members.
func (s *redisStore) FlushTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		var members *redis.StringSliceCmd
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			members = pipe.SMembers(ctx, s.tagKey(tag))
			pipe.Del(ctx, s.tagKey(tag))
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis flush tag %s: %w", tag, err)
		}
		if err := s.ForgetMany(ctx, members.Val()); err != nil {
			return err
		}
	}
	return nil
}

// Forget removes a single entry.
func (s *redisStore) Forget(ctx context.Context, key string) error {
	return s.ForgetMany(ctx, []string{key})
}

// ForgetMany removes entries with a single DEL.
func (s *redisStore) ForgetMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = s.entryKey(key)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) entryKey(key string) string {
	return s.prefix + key
}

func (s *redisStore) tagKey(tag string) string {
	return s.prefix + "tag:" + tag + ":keys"
}

// expiration maps the lifetime convention onto go-redis, where 0 means no expiry.
func expiration(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
