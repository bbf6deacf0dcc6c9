package repositorycache

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/events"
	"github.com/goliatone/go-query-cache/query"
	"github.com/goliatone/go-query-cache/querycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// ErrInvalidation is returned with the written record when the write
// succeeded but its lifecycle event could not flush the cache.
var ErrInvalidation = errors.New("repositorycache: cache invalidation failed")

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `msgpack:"records"`
	Total   int `msgpack:"total"`
}

// Option configures a CachedRepository.
type Option func(*settings)

type settings struct {
	db       *bun.DB
	bus      *events.Bus
	entity   string
	logger   *zap.Logger
	defaults []querycache.Option
}

// WithDB sets the database used to render criteria into statement text.
// Without it, reads that carry criteria are not cached.
func WithDB(db *bun.DB) Option {
	return func(s *settings) {
		s.db = db
	}
}

// WithBus sets the bus that receives entity lifecycle events after writes.
func WithBus(bus *events.Bus) Option {
	return func(s *settings) {
		s.bus = bus
	}
}

// WithEntityType overrides the entity type derived from T.
func WithEntityType(name string) Option {
	return func(s *settings) {
		s.entity = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaults sets cache options applied to every read before per call ones.
func WithDefaults(opts ...querycache.Option) Option {
	return func(s *settings) {
		s.defaults = append(s.defaults, opts...)
	}
}

// CachedRepository decorates a base repository with query result caching.
type CachedRepository[T any] struct {
	base     repository.Repository[T]
	cache    *querycache.Cache
	db       *bun.DB
	bus      *events.Bus
	entity   string
	logger   *zap.Logger
	defaults []querycache.Option
}

// New wraps base so reads go through qc and writes emit lifecycle events.
func New[T any](base repository.Repository[T], qc *querycache.Cache, opts ...Option) *CachedRepository[T] {
	s := settings{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.entity == "" {
		s.entity = entityTypeOf[T]()
	}
	return &CachedRepository[T]{
		base:     base,
		cache:    qc,
		db:       s.db,
		bus:      s.bus,
		entity:   s.entity,
		logger:   s.logger.With(zap.String("component", "repositorycache"), zap.String("entity", s.entity)),
		defaults: s.defaults,
	}
}

// EntityType returns the entity type used for cache scoping and events.
func (c *CachedRepository[T]) EntityType() string {
	return c.entity
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return remember(ctx, c, "Get", nil, criteria, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return remember(ctx, c, "GetByID", []any{id}, criteria, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	res, err := remember(ctx, c, "List", nil, criteria, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return remember(ctx, c, "Count", nil, criteria, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return remember(ctx, c, "GetByIdentifier", []any{identifier}, criteria, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

func remember[T, V any](ctx context.Context, c *CachedRepository[T], method string, bindings []any, criteria []repository.SelectCriteria, fetch cache.FetchFn[V]) (V, error) {
	if cacheBypassed(ctx) || c.cache == nil {
		return fetch(ctx)
	}
	if len(criteria) > 0 && c.db == nil {
		c.logger.Debug("criteria without db, bypassing cache", zap.String("method", method))
		return fetch(ctx)
	}

	desc, err := c.describe(method, bindings, criteria)
	if err != nil {
		var zero V
		return zero, err
	}

	opts := append(append([]querycache.Option(nil), c.defaults...), cacheOptionsFromContext(ctx)...)
	return querycache.Remember(ctx, c.cache, desc, fetch, opts...)
}

// describe builds the descriptor for a read. Criteria are applied to a select
// query that is rendered, never executed.
func (c *CachedRepository[T]) describe(method string, bindings []any, criteria []repository.SelectCriteria) (query.Descriptor, error) {
	desc := query.New(c.entity)
	desc.Method = method

	statement := ""
	if c.db != nil {
		rendered, err := c.render(criteria)
		if err != nil {
			return query.Descriptor{}, fmt.Errorf("%w: render %s: %v", cache.ErrFingerprint, method, err)
		}
		statement = rendered
	}
	return desc.Compiled(statement, bindings...), nil
}

func (c *CachedRepository[T]) render(criteria []repository.SelectCriteria) (statement string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("criteria panicked: %v", r)
		}
	}()

	q := c.db.NewSelect().Model(newModel[T]())
	for _, apply := range criteria {
		if apply != nil {
			q = apply(q)
		}
	}
	out, err := q.AppendQuery(c.db.Formatter(), nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Create creates a new record. Write operations pass through to base repository
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityCreated, result)
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityCreated, result)
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityCreated, result)
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityCreated, result)
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err != nil {
		return result, err
	}
	// may have created
	return result, c.notify(ctx, events.EntityCreated, result)
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityCreated, result)
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err != nil {
		return result, err
	}
	return result, c.notify(ctx, events.EntityUpdated, result)
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	if err := c.base.Delete(ctx, record); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, record)
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	if err := c.base.DeleteTx(ctx, tx, record); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, record)
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := c.base.DeleteMany(ctx, criteria...); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, nil)
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	if err := c.base.DeleteManyTx(ctx, tx, criteria...); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, nil)
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	if err := c.base.DeleteWhere(ctx, criteria...); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, nil)
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	if err := c.base.DeleteWhereTx(ctx, tx, criteria...); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, nil)
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	if err := c.base.ForceDelete(ctx, record); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, record)
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	if err := c.base.ForceDeleteTx(ctx, tx, record); err != nil {
		return err
	}
	return c.notify(ctx, events.EntityDeleted, record)
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// notify fires a lifecycle event for the written record. The write already
// happened, so a failing listener is reported as ErrInvalidation.
func (c *CachedRepository[T]) notify(ctx context.Context, name string, record any) error {
	if c.bus == nil {
		return nil
	}
	err := c.bus.Until(ctx, events.Event{Name: name, EntityType: c.entity, Record: record})
	if err == nil {
		return nil
	}
	c.logger.Warn("lifecycle event failed", zap.String("event", name), zap.Error(err))
	return fmt.Errorf("%w: %w", ErrInvalidation, err)
}
