package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// Config exposes memory store options for consumers of the cache package.
// Entries are only ever written by Remember and Put; the store never
// refreshes them in the background.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// LRUConfig configures the tagged in-process store.
type LRUConfig struct {
	Capacity int
}

// RedisConfig configures the Redis store. Tags false disables native grouping.
type RedisConfig struct {
	Prefix string
	Tags   bool
}

// DatabaseConfig configures the SQL store.
type DatabaseConfig struct {
	CreateTable bool
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultMemoryConfig())
}

// DefaultLRUConfig returns the default LRU store configuration.
func DefaultLRUConfig() LRUConfig {
	return LRUConfig(cacheinfra.DefaultLRUConfig())
}

// DefaultRedisConfig returns the default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig(cacheinfra.DefaultRedisConfig())
}

// DefaultDatabaseConfig returns the default SQL store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig(cacheinfra.DefaultDatabaseConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewMemoryStore creates the sturdyc backed store. It has no grouping support.
func NewMemoryStore(cfg Config) (Store, error) {
	store, err := cacheinfra.NewSturdycStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewLRUStore creates a bounded in-process store with native grouping.
func NewLRUStore(cfg LRUConfig) (TaggedStore, error) {
	store, err := cacheinfra.NewLRUStore(cacheinfra.LRUConfig(cfg))
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewRedisStore creates a Redis store on an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) TaggedStore {
	return cacheinfra.NewRedisStore(client, cacheinfra.RedisConfig(cfg))
}

// NewDatabaseStore creates a SQL store on db. It has no grouping support.
func NewDatabaseStore(ctx context.Context, db *bun.DB, cfg DatabaseConfig) (Store, error) {
	store, err := cacheinfra.NewDatabaseStore(ctx, db, cacheinfra.DatabaseConfig(cfg))
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (c Config) toInternal() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig(c)
}

func convertFromInternal(cfg cacheinfra.MemoryConfig) Config {
	return Config(cfg)
}
