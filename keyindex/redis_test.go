package keyindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIndex(client, ""), mr
}

func TestRedisIndex_AppendFlush(t *testing.T) {
	ctx := context.Background()
	idx, mr := setupRedisIndex(t)

	doc, err := idx.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc)

	require.NoError(t, idx.Append(ctx, "users", "k2"))
	require.NoError(t, idx.Append(ctx, "users", "k1"))
	require.NoError(t, idx.Append(ctx, "users", "k1"))
	require.NoError(t, idx.Append(ctx, "posts", "k3"))

	assert.True(t, mr.Exists(DefaultRedisKey))

	doc, err = idx.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Document{"users": {"k1", "k2"}, "posts": {"k3"}}, doc)

	keys, err := idx.Flush(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)

	keys, err = idx.Flush(ctx, "users")
	require.NoError(t, err)
	assert.Empty(t, keys)

	doc, err = idx.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Document{"posts": {"k3"}}, doc)
}

func TestRedisIndex_Corrupt(t *testing.T) {
	ctx := context.Background()
	idx, mr := setupRedisIndex(t)

	require.NoError(t, mr.Set(DefaultRedisKey, "garbage"))

	_, err := idx.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.ErrorIs(t, idx.Append(ctx, "users", "k1"), ErrCorruptIndex)
}

func TestRedisIndex_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	idx, _ := setupRedisIndex(t)

	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = idx.Append(ctx, "users", fmt.Sprintf("k%02d", i))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	doc, err := idx.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, doc["users"], writers)
}
