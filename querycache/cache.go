// Package querycache caches read query results and flushes them per entity type.
//
// Each cached result is keyed by the fingerprint of its query descriptor and
// scoped to the descriptor's entity type. Stores with native tags scope the
// entry under a tag named after the entity type. Stores without tags record the
// key in a key index so a later Flush can forget it. Keys of process local
// stores go to an in-process index; keys of shared stores go to the shared
// index handed to New, which other processes flush too.
//
//	users, err := querycache.Remember(ctx, qc, desc, func(ctx context.Context) ([]User, error) {
//		return repo.List(ctx)
//	}, querycache.WithLifetime(time.Minute))
package querycache

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keyindex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultLifetime applies when neither the cache nor the call sets one.
const DefaultLifetime = 5 * time.Minute

const instrumentationName = "github.com/goliatone/go-query-cache/querycache"

var (
	// ErrDecode is returned when a stored value cannot be decoded into the requested type.
	ErrDecode = errors.New("querycache: cannot decode cached value")
	// ErrInvalidLifetime is returned for negative lifetimes other than cache.Forever.
	ErrInvalidLifetime = errors.New("querycache: invalid lifetime")
	// ErrMissingEntity is returned for descriptors without an entity type.
	ErrMissingEntity = errors.New("querycache: descriptor has no entity type")
	// ErrNoIndex is returned when a store without tags is used and no key index is configured.
	ErrNoIndex = errors.New("querycache: key index required for stores without grouping")
)

// Cache is the query cache orchestrator.
type Cache struct {
	manager         *cache.Manager
	index           keyindex.Index
	local           keyindex.Index
	fingerprinter   cache.Fingerprinter
	defaultLifetime time.Duration
	logger          *zap.Logger
	meter           metric.Meter
	metrics         *metrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeter sets the meter used for hit, miss, flush and error counters.
func WithMeter(meter metric.Meter) CacheOption {
	return func(c *Cache) {
		if meter != nil {
			c.meter = meter
		}
	}
}

// WithFingerprinter replaces the default fingerprinter.
func WithFingerprinter(f cache.Fingerprinter) CacheOption {
	return func(c *Cache) {
		if f != nil {
			c.fingerprinter = f
		}
	}
}

// WithLocalIndex replaces the in-process index that tracks keys of process
// local stores.
func WithLocalIndex(index keyindex.Index) CacheOption {
	return func(c *Cache) {
		if index != nil {
			c.local = index
		}
	}
}

// WithDefaultLifetime sets the lifetime used when a call does not pick one.
func WithDefaultLifetime(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d != 0 {
			c.defaultLifetime = d
		}
	}
}

// New creates a Cache. index is the shared key index; it may be nil when
// every shared driver supports grouping.
func New(manager *cache.Manager, index keyindex.Index, opts ...CacheOption) (*Cache, error) {
	if manager == nil {
		return nil, errors.New("querycache: manager is required")
	}
	c := &Cache{
		manager:         manager,
		index:           index,
		local:           keyindex.NewMemoryIndex(),
		fingerprinter:   cache.NewFingerprinter(),
		defaultLifetime: DefaultLifetime,
		logger:          zap.NewNop(),
		meter:           otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultLifetime < 0 && c.defaultLifetime != cache.Forever {
		return nil, fmt.Errorf("%w: default %s", ErrInvalidLifetime, c.defaultLifetime)
	}

	m, err := newMetrics(c.meter)
	if err != nil {
		return nil, fmt.Errorf("querycache: metrics: %w", err)
	}
	c.metrics = m
	c.logger = c.logger.With(zap.String("component", "querycache"))
	return c, nil
}

// Manager returns the driver manager.
func (c *Cache) Manager() *cache.Manager {
	return c.manager
}

// Index returns the shared key index, nil when none is configured.
func (c *Cache) Index() keyindex.Index {
	return c.index
}

// LocalIndex returns the index tracking keys of process local stores.
func (c *Cache) LocalIndex() keyindex.Index {
	return c.local
}

// indexFor returns the index that tracks keys stored through gw.
func (c *Cache) indexFor(gw *cache.Gateway) keyindex.Index {
	if gw.ProcessLocal() {
		return c.local
	}
	return c.index
}
