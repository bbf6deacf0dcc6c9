package keyindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-query-cache/internal/retryutil"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where RedisIndex keeps its document.
const DefaultRedisKey = "querycache:key-index"

const defaultRedisAttempts = 20

// RedisIndex keeps the whole document under one Redis key and updates it
// with WATCH/MULTI, so a concurrent writer makes the transaction fail and
// the update is retried on fresh data.
type RedisIndex struct {
	client   redis.UniversalClient
	key      string
	attempts uint
}

// NewRedisIndex creates an index on client. An empty key uses DefaultRedisKey.
func NewRedisIndex(client redis.UniversalClient, key string) *RedisIndex {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisIndex{client: client, key: key, attempts: defaultRedisAttempts}
}

// Append implements Index.
func (r *RedisIndex) Append(ctx context.Context, entity, key string) error {
	return r.update(ctx, func(doc Document) bool {
		return doc.Add(entity, key)
	})
}

// Flush implements Index.
func (r *RedisIndex) Flush(ctx context.Context, entity string) ([]string, error) {
	var keys []string
	err := r.update(ctx, func(doc Document) bool {
		keys = doc.Take(entity)
		return len(keys) > 0
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Load implements Index.
func (r *RedisIndex) Load(ctx context.Context) (Document, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyindex: redis get: %w", err)
	}
	return Decode(data)
}

func (r *RedisIndex) update(ctx context.Context, mutate func(Document) bool) error {
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, r.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("keyindex: redis get: %w", err)
		}
		doc, err := Decode(data)
		if err != nil {
			return err
		}
		if !mutate(doc) {
			return nil
		}
		encoded, err := Encode(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, encoded, 0)
			return nil
		})
		return err
	}

	isConflict := func(err error) bool {
		return errors.Is(err, redis.TxFailedErr)
	}
	return retryutil.Do(ctx, func() error {
		return r.client.Watch(ctx, txn, r.key)
	}, retryutil.ConflictOptions(ctx, r.attempts, isConflict)...)
}
