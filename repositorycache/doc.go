// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a repository.Repository[T] and routes its reads
// through a querycache.Cache. Every read is described as a query descriptor:
// the entity type, the repository method, its id or identifier argument and
// the SQL text obtained by applying the criteria to a bun select query. The
// select query is only rendered, never executed.
//
// Writes pass through to the base repository. After a successful write the
// decorator fires entity.created, entity.updated or entity.deleted on the
// event bus; an invalidation.Trigger listening there flushes the entity type.
//
// # Basic Usage
//
//	bus := events.NewBus()
//	qc, _ := querycache.New(manager, index)
//	invalidation.New(qc, bus).Subscribe()
//
//	users := repositorycache.New[*User](base, qc,
//		repositorycache.WithDB(db),
//		repositorycache.WithBus(bus),
//	)
//
//	user, err := users.GetByID(ctx, "user-123")
//
// # Cached vs Pass-through Operations
//
// Cached: Get, GetByID, GetByIdentifier, List, Count.
//
// Pass-through: every write, every *Tx read, Raw and RawTx. Transactional
// reads skip the cache so they observe uncommitted state.
//
// Reads that carry criteria are only cached when a *bun.DB was supplied with
// WithDB, since the rendered SQL is what tells two criteria sets apart.
//
// # Per Call Options
//
//	ctx = repositorycache.WithCacheOptions(ctx, querycache.WithLifetime(time.Minute))
//	ctx = repositorycache.WithoutCache(ctx)
//
// # Errors
//
// Errors from the base repository are returned unchanged and never cached.
// When a write succeeds but its lifecycle event fails, the written record is
// returned together with an error wrapping ErrInvalidation.
package repositorycache
