package cacheinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-query-cache/internal/retryutil"
	"github.com/uptrace/bun"
)

// DatabaseConfig configures the SQL store.
type DatabaseConfig struct {
	// CreateTable creates the cache_entries table when missing.
	CreateTable bool
}

// DefaultDatabaseConfig returns the default SQL store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{CreateTable: true}
}

// CacheEntryModel is one row of the cache_entries table.
type CacheEntryModel struct {
	bun.BaseModel `bun:"table:cache_entries,alias:ce"`

	Key       string `bun:"key,pk"`
	Value     []byte `bun:"value,notnull"`
	ExpiresAt int64  `bun:"expires_at,notnull"`
}

// databaseStore keeps entries in a SQL table through bun. It has no tags.
type databaseStore struct {
	db  *bun.DB
	now func() time.Time
}

// NewDatabaseStore creates a SQL store on db.
func NewDatabaseStore(ctx context.Context, db *bun.DB, cfg DatabaseConfig) (*databaseStore, error) {
	if db == nil {
		return nil, &ConfigError{Field: "DB", Message: "cannot be nil"}
	}
	if cfg.CreateTable {
		_, err := db.NewCreateTable().
			Model((*CacheEntryModel)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("create cache_entries: %w", err)
		}
	}
	return &databaseStore{db: db, now: time.Now}, nil
}

// Get returns the live value stored under key. Expired rows are deleted lazily.
func (s *databaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row CacheEntryModel
	err := s.db.NewSelect().
		Model(&row).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select cache entry: %w", err)
	}

	e := entry{value: row.Value, expiresAt: row.ExpiresAt}
	if e.expired(s.now()) {
		if err := s.Forget(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return row.Value, true, nil
}

// Remember returns the live value under key or upserts the fetched one.
func (s *databaseStore) Remember(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}

	value, err = fetch(ctx)
	if err != nil {
		return nil, err
	}

	e := newEntry(value, ttl, s.now())
	row := &CacheEntryModel{Key: key, Value: value, ExpiresAt: e.expiresAt}
	err = retryutil.Do(ctx, func() error {
		_, err := s.db.NewInsert().
			Model(row).
			On("CONFLICT (key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("expires_at = EXCLUDED.expires_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert cache entry: %w", err)
	}
	return value, nil
}

// Forget removes a single entry.
func (s *databaseStore) Forget(ctx context.Context, key string) error {
	return s.ForgetMany(ctx, []string{key})
}

// ForgetMany removes several entries in one statement.
func (s *databaseStore) ForgetMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := retryutil.Do(ctx, func() error {
		_, err := s.db.NewDelete().
			Model((*CacheEntryModel)(nil)).
			Where("key IN (?)", bun.In(keys)).
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

// Prune deletes every expired row and returns how many were removed.
func (s *databaseStore) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*CacheEntryModel)(nil)).
		Where("expires_at > 0").
		Where("expires_at <= ?", s.now().UnixNano()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune cache entries: %w", err)
	}
	return res.RowsAffected()
}
