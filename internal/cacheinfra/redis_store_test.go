package cacheinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, cfg RedisConfig) (*redisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, cfg)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_Remember(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, DefaultRedisConfig())

	var calls int32
	for i := 0; i < 3; i++ {
		got, err := store.Remember(ctx, "k", time.Minute, countingFetch(&calls, "v"))
		require.NoError(t, err)
		assert.Equal(t, "v", string(got))
	}
	assert.EqualValues(t, 1, calls)

	raw, err := mr.Get("querycache:k")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)
	assert.Equal(t, time.Minute, mr.TTL("querycache:k"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Forever(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, DefaultRedisConfig())

	var calls int32
	_, err := store.Remember(ctx, "k", -1, countingFetch(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("querycache:k"))
}

func TestRedisStore_FetchErrorNotStored(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, DefaultRedisConfig())

	boom := errors.New("boom")
	_, err := store.RememberTagged(ctx, []string{"users"}, "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("querycache:k"))
	assert.False(t, mr.Exists("querycache:tag:users:keys"))
}

func TestRedisStore_FlushTags(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, DefaultRedisConfig())
	assert.True(t, store.SupportsGrouping())

	var calls int32
	for key, tag := range map[string]string{"u1": "users", "u2": "users", "p1": "posts"} {
		_, err := store.RememberTagged(ctx, []string{tag}, key, time.Minute, countingFetch(&calls, key))
		require.NoError(t, err)
	}

	members, err := mr.SMembers("querycache:tag:users:keys")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)

	require.NoError(t, store.FlushTags(ctx, "users"))

	assert.False(t, mr.Exists("querycache:u1"))
	assert.False(t, mr.Exists("querycache:u2"))
	assert.False(t, mr.Exists("querycache:tag:users:keys"))
	assert.True(t, mr.Exists("querycache:p1"))

	require.NoError(t, store.FlushTags(ctx, "users"))
}

func TestRedisStore_ForgetMany(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, RedisConfig{Prefix: "app:", Tags: false})
	assert.False(t, store.SupportsGrouping())

	var calls int32
	for _, key := range []string{"a", "b", "c"} {
		_, err := store.Remember(ctx, key, time.Minute, countingFetch(&calls, key))
		require.NoError(t, err)
	}

	require.NoError(t, store.ForgetMany(ctx, []string{"a", "b"}))
	require.NoError(t, store.ForgetMany(ctx, nil))
	require.NoError(t, store.Forget(ctx, "missing"))

	assert.False(t, mr.Exists("app:a"))
	assert.False(t, mr.Exists("app:b"))
	assert.True(t, mr.Exists("app:c"))
}

func TestRedisStore_GetError(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, DefaultRedisConfig())
	mr.Close()

	_, _, err := store.Get(ctx, "k")
	assert.Error(t, err)
}
