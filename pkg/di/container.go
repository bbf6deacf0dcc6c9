package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/events"
	"github.com/goliatone/go-query-cache/invalidation"
	"github.com/goliatone/go-query-cache/keyindex"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/goliatone/go-query-cache/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Container owns every cache component built from a Config. Connections it
// opened are closed by Close; injected ones are left alone.
type Container struct {
	config Config
	logger *zap.Logger
	meter  metric.Meter

	registry      *cache.Registry
	manager       *cache.Manager
	fingerprinter cache.Fingerprinter
	index         keyindex.Index
	bus           *events.Bus
	cache         *querycache.Cache
	policy        *invalidation.Policy
	trigger       *invalidation.Trigger
	unsubscribe   func()

	extra   map[string]cache.Store
	clients map[string]redis.UniversalClient
	dbs     map[string]*bun.DB
	owned   []func() error
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeter sets the meter used for cache metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *Container) {
		c.meter = meter
	}
}

// WithStore registers a store that is not described by the config. It
// replaces a configured driver of the same name.
func WithStore(name string, store cache.Store) Option {
	return func(c *Container) {
		c.extra[name] = store
	}
}

// WithDB reuses db for every database driver or index whose dialect and DSN
// match. The container does not close it.
func WithDB(dialect, dsn string, db *bun.DB) Option {
	return func(c *Container) {
		c.dbs[dialect+"|"+dsn] = db
	}
}

// WithRedisClient reuses client for every redis driver or index on addr,
// db and password. The container does not close it.
func WithRedisClient(addr string, db int, password string, client redis.UniversalClient) Option {
	return func(c *Container) {
		c.clients[redisKey(addr, db, password)] = client
	}
}

func redisKey(addr string, db int, password string) string {
	return fmt.Sprintf("%s|%d|%s", addr, db, password)
}

// NewContainer builds stores, the driver registry and manager, the key index,
// the fingerprinter, the event bus, the query cache and the invalidation
// trigger, and subscribes the trigger to lifecycle events.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:  config,
		logger:  zap.NewNop(),
		extra:   make(map[string]cache.Store),
		clients: make(map[string]redis.UniversalClient),
		dbs:     make(map[string]*bun.DB),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.build(context.Background()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults creates a container from DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

func (c *Container) build(ctx context.Context) error {
	c.registry = cache.NewRegistry()

	names := make([]string, 0, len(c.config.Drivers))
	for name := range c.config.Drivers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := c.extra[name]; ok {
			continue
		}
		store, err := c.newStore(ctx, c.config.Drivers[name])
		if err != nil {
			return fmt.Errorf("driver %s: %w", name, err)
		}
		c.registry.Register(name, store)
	}
	for name, store := range c.extra {
		c.registry.Register(name, store)
	}
	c.manager = cache.NewManager(c.registry, c.config.DefaultDriver)

	index, err := c.newIndex(ctx, c.config.Index)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	c.index = index

	c.fingerprinter = cache.NewFingerprinter(
		cache.WithKeyPrefix(c.config.Fingerprint.Prefix),
		cache.WithHash(c.config.Fingerprint.Hash),
	)
	c.bus = events.NewBus(c.logger)

	cacheOpts := []querycache.CacheOption{
		querycache.WithLogger(c.logger),
		querycache.WithFingerprinter(c.fingerprinter),
		querycache.WithDefaultLifetime(c.config.DefaultLifetime),
	}
	if c.meter != nil {
		cacheOpts = append(cacheOpts, querycache.WithMeter(c.meter))
	}
	if local, ok := c.index.(*keyindex.MemoryIndex); ok {
		cacheOpts = append(cacheOpts, querycache.WithLocalIndex(local))
	}
	qc, err := querycache.New(c.manager, c.index, cacheOpts...)
	if err != nil {
		return err
	}
	c.cache = qc

	c.policy = invalidation.NewPolicy(c.config.Invalidation.Disabled...)
	c.trigger = invalidation.New(c.cache, c.bus,
		invalidation.WithLogger(c.logger),
		invalidation.WithPolicy(c.policy),
	)
	c.unsubscribe = c.trigger.Subscribe()

	c.logger.Debug("container ready",
		zap.Strings("drivers", c.manager.Drivers()),
		zap.String("default_driver", c.config.DefaultDriver),
		zap.String("index", c.config.Index.Kind),
	)
	return nil
}

func (c *Container) newStore(ctx context.Context, d DriverConfig) (cache.Store, error) {
	switch d.Kind {
	case KindMemory:
		cfg := cache.DefaultConfig()
		if d.Capacity > 0 {
			cfg.Capacity = d.Capacity
		}
		if d.Shards > 0 {
			cfg.NumShards = d.Shards
		}
		if d.TTL > 0 {
			cfg.TTL = d.TTL
		}
		if d.EvictionPercentage > 0 {
			cfg.EvictionPercentage = d.EvictionPercentage
		}
		return cache.NewMemoryStore(cfg)

	case KindLRU:
		cfg := cache.DefaultLRUConfig()
		if d.Capacity > 0 {
			cfg.Capacity = d.Capacity
		}
		return cache.NewLRUStore(cfg)

	case KindRedis:
		cfg := cache.DefaultRedisConfig()
		if d.Prefix != "" {
			cfg.Prefix = d.Prefix
		}
		if d.Tags != nil {
			cfg.Tags = *d.Tags
		}
		return cache.NewRedisStore(c.redisClient(d.Addr, d.Password, d.DB), cfg), nil

	case KindDatabase:
		db, err := c.database(d.Dialect, d.DSN)
		if err != nil {
			return nil, err
		}
		return cache.NewDatabaseStore(ctx, db, cache.DefaultDatabaseConfig())
	}
	return nil, fmt.Errorf("unknown driver kind %q", d.Kind)
}

func (c *Container) newIndex(ctx context.Context, cfg IndexConfig) (keyindex.Index, error) {
	switch cfg.Kind {
	case IndexMemory:
		return keyindex.NewMemoryIndex(), nil
	case IndexFile:
		return keyindex.NewFileIndex(cfg.Path, keyindex.WithFileLogger(c.logger)), nil
	case IndexRedis:
		return keyindex.NewRedisIndex(c.redisClient(cfg.Addr, cfg.Password, cfg.DB), cfg.Key), nil
	case IndexDatabase:
		db, err := c.database(cfg.Dialect, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return keyindex.NewDatabaseIndex(ctx, db)
	case IndexNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown index kind %q", cfg.Kind)
}

// redisClient returns the client for addr, db and password, opening it on
// first use.
func (c *Container) redisClient(addr, password string, db int) redis.UniversalClient {
	key := redisKey(addr, db, password)
	if client, ok := c.clients[key]; ok {
		return client
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: password,
		DB:       db,
	})
	c.clients[key] = client
	c.owned = append(c.owned, client.Close)
	return client
}

// database returns the bun.DB for dialect and dsn, opening it on first use.
func (c *Container) database(dialect, dsn string) (*bun.DB, error) {
	key := dialect + "|" + dsn
	if db, ok := c.dbs[key]; ok {
		return db, nil
	}

	var db *bun.DB
	switch dialect {
	case DialectSQLite:
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DialectPostgres:
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	c.dbs[key] = db
	c.owned = append(c.owned, db.Close)
	return db, nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() Config {
	return c.config
}

// Logger returns the shared logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Registry returns the driver registry.
func (c *Container) Registry() *cache.Registry {
	return c.registry
}

// Manager returns the driver manager.
func (c *Container) Manager() *cache.Manager {
	return c.manager
}

// Fingerprinter returns the key generator.
func (c *Container) Fingerprinter() cache.Fingerprinter {
	return c.fingerprinter
}

// Index returns the key index, nil for IndexNone.
func (c *Container) Index() keyindex.Index {
	return c.index
}

// Bus returns the event bus.
func (c *Container) Bus() *events.Bus {
	return c.bus
}

// LocalIndex returns the in-process index tracking keys of process local
// drivers.
func (c *Container) LocalIndex() keyindex.Index {
	return c.cache.LocalIndex()
}

// Cache returns the query cache.
func (c *Container) Cache() *querycache.Cache {
	return c.cache
}

// Policy returns the invalidation enablement policy.
func (c *Container) Policy() *invalidation.Policy {
	return c.policy
}

// Trigger returns the invalidation trigger.
func (c *Container) Trigger() *invalidation.Trigger {
	return c.trigger
}

// Close unsubscribes the trigger and closes every connection the container opened.
func (c *Container) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	var errs []error
	for i := len(c.owned) - 1; i >= 0; i-- {
		if err := c.owned[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.owned = nil
	return errors.Join(errs...)
}

// NewCachedRepository wraps base with the container's cache and bus. db is
// used to render criteria into cache keys; with a nil db reads that carry
// criteria skip the cache.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository, db)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], db *bun.DB, opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	all := []repositorycache.Option{
		repositorycache.WithBus(container.bus),
		repositorycache.WithLogger(container.logger),
	}
	if db != nil {
		all = append(all, repositorycache.WithDB(db))
	}
	all = append(all, opts...)
	return repositorycache.New(base, container.cache, all...)
}
