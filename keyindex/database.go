package keyindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-query-cache/internal/retryutil"
	"github.com/uptrace/bun"
)

// IndexEntryModel is one (entity type, key) pair.
type IndexEntryModel struct {
	bun.BaseModel `bun:"table:cache_key_index,alias:cki"`

	EntityType string `bun:"entity_type,pk"`
	CacheKey   string `bun:"cache_key,pk"`
}

// DatabaseIndex stores one row per tracked key. Append is an insert that
// ignores duplicates; Flush deletes exactly the rows it read inside one
// transaction, so rows appended concurrently stay for the next flush.
type DatabaseIndex struct {
	db *bun.DB
}

// NewDatabaseIndex creates the index table when missing and returns the index.
func NewDatabaseIndex(ctx context.Context, db *bun.DB) (*DatabaseIndex, error) {
	_, err := db.NewCreateTable().
		Model((*IndexEntryModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyindex: create cache_key_index: %w", err)
	}
	return &DatabaseIndex{db: db}, nil
}

// Append implements Index.
func (d *DatabaseIndex) Append(ctx context.Context, entity, key string) error {
	row := &IndexEntryModel{EntityType: entity, CacheKey: key}
	err := retryutil.Do(ctx, func() error {
		_, err := d.db.NewInsert().
			Model(row).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("keyindex: append: %w", err)
	}
	return nil
}

// Flush implements Index.
func (d *DatabaseIndex) Flush(ctx context.Context, entity string) ([]string, error) {
	keys := []string{}
	err := retryutil.Do(ctx, func() error {
		keys = keys[:0]
		return d.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			err := tx.NewSelect().
				Model((*IndexEntryModel)(nil)).
				Column("cache_key").
				Where("entity_type = ?", entity).
				Order("cache_key ASC").
				Scan(ctx, &keys)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return nil
			}
			_, err = tx.NewDelete().
				Model((*IndexEntryModel)(nil)).
				Where("entity_type = ?", entity).
				Where("cache_key IN (?)", bun.In(keys)).
				Exec(ctx)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("keyindex: flush %s: %w", entity, err)
	}
	return keys, nil
}

// Load implements Index.
func (d *DatabaseIndex) Load(ctx context.Context) (Document, error) {
	var rows []IndexEntryModel
	err := d.db.NewSelect().
		Model(&rows).
		Order("entity_type ASC", "cache_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyindex: load: %w", err)
	}
	doc := Document{}
	for _, row := range rows {
		doc.Add(row.EntityType, row.CacheKey)
	}
	return doc, nil
}
