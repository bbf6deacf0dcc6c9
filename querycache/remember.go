package querycache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keyindex"
	"github.com/goliatone/go-query-cache/query"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// load records what happened inside one store fetch. Stores may run the
// loader on another goroutine.
type load struct {
	mu       sync.Mutex
	produced bool
	err      error
}

func (l *load) set(produced bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.produced = produced
	l.err = err
}

func (l *load) get() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.produced, l.err
}

// Remember returns the cached result for desc or runs fetch and caches its result.
//
// Errors from fetch are returned unchanged and nothing is cached. On stores
// without grouping the key is appended to the key index after a miss; if that
// append fails the entry is forgotten and the error returned.
func Remember[T any](ctx context.Context, c *Cache, desc query.Descriptor, fetch cache.FetchFn[T], opts ...Option) (T, error) {
	var zero T

	if desc.Entity == "" {
		return zero, ErrMissingEntity
	}
	cfg, err := c.resolve(opts)
	if err != nil {
		return zero, err
	}

	gw, err := c.manager.Gateway(cfg.driver)
	if err != nil {
		c.metrics.failure(ctx, "resolve")
		return zero, err
	}

	key, err := c.fingerprinter.Fingerprint(desc, cache.KeySettings{Driver: gw.Driver(), Lifetime: cfg.lifetime})
	if err != nil {
		c.metrics.failure(ctx, "fingerprint")
		return zero, err
	}

	// sampled once; the gateway never changes its answer
	grouped := gw.SupportsGrouping()
	var index keyindex.Index
	if !grouped {
		if index = c.indexFor(gw); index == nil {
			return zero, ErrNoIndex
		}
	}

	state := &load{}
	loader := func(ctx context.Context) ([]byte, error) {
		value, err := fetch(ctx)
		if err != nil {
			state.set(false, err)
			return nil, err
		}
		data, err := msgpack.Marshal(value)
		if err != nil {
			err = fmt.Errorf("querycache: encode result: %w", err)
			state.set(false, err)
			return nil, err
		}
		state.set(true, nil)
		return data, nil
	}

	group := ""
	if grouped {
		group = desc.Entity
	}

	var data []byte
	if cfg.lifetime == cache.Forever {
		data, err = gw.RememberForever(ctx, group, key, loader)
	} else {
		data, err = gw.Remember(ctx, group, key, cfg.lifetime, loader)
	}
	produced, fetchErr := state.get()
	if err != nil {
		if fetchErr != nil {
			return zero, fetchErr
		}
		c.metrics.failure(ctx, "remember")
		c.logger.Warn("cache remember failed",
			zap.String("driver", gw.Driver()),
			zap.String("entity", desc.Entity),
			zap.Error(err),
		)
		return zero, err
	}

	if produced {
		c.metrics.miss(ctx, gw.Driver(), desc.Entity)
		c.logger.Debug("cache miss", zap.String("entity", desc.Entity), zap.String("key", key))
		if !grouped {
			if err := c.track(ctx, index, gw, desc.Entity, key); err != nil {
				return zero, err
			}
		}
	} else {
		c.metrics.hit(ctx, gw.Driver(), desc.Entity)
		c.logger.Debug("cache hit", zap.String("entity", desc.Entity), zap.String("key", key))
	}

	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		c.metrics.failure(ctx, "decode")
		return zero, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// track appends key to the index. A failed append leaves an entry no flush
// could find, so the entry is dropped.
func (c *Cache) track(ctx context.Context, index keyindex.Index, gw *cache.Gateway, entity, key string) error {
	err := index.Append(ctx, entity, key)
	if err == nil {
		return nil
	}
	c.metrics.failure(ctx, "index_append")
	if ferr := gw.Forget(ctx, key); ferr != nil {
		c.logger.Error("forget untracked entry failed",
			zap.String("entity", entity),
			zap.String("key", key),
			zap.Error(ferr),
		)
	}
	return fmt.Errorf("querycache: track key for %s: %w", entity, err)
}

// Flush forgets every cached result of entity on every driver and returns the
// keys it took from the key indexes. Flushing an entity with nothing cached
// returns an empty slice.
func (c *Cache) Flush(ctx context.Context, entity string) ([]string, error) {
	if entity == "" {
		return nil, ErrMissingEntity
	}

	var (
		errs          []error
		local, shared []*cache.Gateway
	)
	for _, name := range c.manager.Drivers() {
		gw, err := c.manager.Gateway(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case gw.SupportsGrouping():
			if err := gw.ForgetGroup(ctx, entity); err != nil {
				errs = append(errs, fmt.Errorf("querycache: flush %s on %s: %w", entity, name, err))
			}
		case gw.ProcessLocal():
			local = append(local, gw)
		default:
			shared = append(shared, gw)
		}
	}

	keys := []string{}
	for _, set := range []struct {
		index    keyindex.Index
		gateways []*cache.Gateway
	}{
		{c.local, local},
		{c.index, shared},
	} {
		if len(set.gateways) == 0 || set.index == nil {
			continue
		}
		taken, err := set.index.Flush(ctx, entity)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		keys = append(keys, taken...)
		if err := c.forgetTracked(ctx, set.index, set.gateways, entity, taken); err != nil {
			errs = append(errs, err)
		}
	}
	sort.Strings(keys)

	c.metrics.flush(ctx, entity, len(keys))
	if err := errors.Join(errs...); err != nil {
		c.metrics.failure(ctx, "flush")
		c.logger.Warn("flush failed", zap.String("entity", entity), zap.Error(err))
		return keys, err
	}
	c.logger.Debug("flushed entity", zap.String("entity", entity), zap.Int("keys", len(keys)))
	return keys, nil
}

// forgetTracked removes keys from every gateway tracked by index. When a store
// fails the keys are put back in the index so the next flush retries them.
func (c *Cache) forgetTracked(ctx context.Context, index keyindex.Index, gateways []*cache.Gateway, entity string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	var errs []error
	for _, gw := range gateways {
		if err := gw.ForgetMany(ctx, keys); err != nil {
			errs = append(errs, fmt.Errorf("querycache: forget %s keys on %s: %w", entity, gw.Driver(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	for _, key := range keys {
		if err := index.Append(ctx, entity, key); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return errors.Join(errs...)
}

// Fingerprint returns the key Remember would use for desc with opts.
func (c *Cache) Fingerprint(desc query.Descriptor, opts ...Option) (string, error) {
	cfg, err := c.resolve(opts)
	if err != nil {
		return "", err
	}
	return c.fingerprinter.Fingerprint(desc, cache.KeySettings{Driver: cfg.driver, Lifetime: cfg.lifetime})
}
