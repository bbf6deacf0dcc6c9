package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLRUStore(t *testing.T, capacity int) (*lruStore, *fakeClock) {
	t.Helper()
	store, err := NewLRUStore(LRUConfig{Capacity: capacity})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	clock := newFakeClock()
	store.now = clock.Now
	return store, clock
}

func TestNewLRUStore_Validate(t *testing.T) {
	_, err := NewLRUStore(LRUConfig{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "Capacity" {
		t.Fatalf("expected Capacity config error, got %v", err)
	}

	if DefaultLRUConfig().Capacity != 5000 {
		t.Errorf("unexpected default capacity %d", DefaultLRUConfig().Capacity)
	}
}

func TestLRUStore_FlushTags(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLRUStore(t, 100)

	var calls int32
	mustRemember := func(tags []string, key string) {
		t.Helper()
		if _, err := store.RememberTagged(ctx, tags, key, time.Minute, countingFetch(&calls, key)); err != nil {
			t.Fatalf("remember %s: %v", key, err)
		}
	}
	mustRemember([]string{"users"}, "u1")
	mustRemember([]string{"users"}, "u2")
	mustRemember([]string{"posts"}, "p1")
	mustRemember(nil, "plain")

	if err := store.FlushTags(ctx, "users"); err != nil {
		t.Fatal(err)
	}

	for key, want := range map[string]bool{"u1": false, "u2": false, "p1": true, "plain": true} {
		if _, ok, _ := store.Get(ctx, key); ok != want {
			t.Errorf("key %s: expected present=%v, got %v", key, want, ok)
		}
	}

	if err := store.FlushTags(ctx, "users", "unknown"); err != nil {
		t.Errorf("flushing an empty tag should succeed, got %v", err)
	}
}

func TestLRUStore_ForgetDropsTagMembership(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLRUStore(t, 100)

	var calls int32
	if _, err := store.RememberTagged(ctx, []string{"users"}, "u1", time.Minute, countingFetch(&calls, "v")); err != nil {
		t.Fatal(err)
	}
	if err := store.Forget(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := len(store.tags["users"]); got != 0 {
		t.Errorf("expected tag membership to be dropped, got %d members", got)
	}
}

func TestLRUStore_ExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestLRUStore(t, 2)

	var calls int32
	if _, err := store.Remember(ctx, "a", time.Minute, countingFetch(&calls, "a")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Error("expected a to expire")
	}

	for _, key := range []string{"x", "y", "z"} {
		if _, err := store.Remember(ctx, key, -1, countingFetch(&calls, key)); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 2 {
		t.Errorf("expected capacity to bound the store at 2, got %d", store.Len())
	}
	if _, ok, _ := store.Get(ctx, "x"); ok {
		t.Error("expected least recently used entry to be evicted")
	}
}

func TestLRUStore_EvictionDropsTagMembership(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestLRUStore(t, 2)

	var calls int32
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := store.RememberTagged(ctx, []string{"users"}, key, -1, countingFetch(&calls, key)); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	if got := store.tagMembers(); got != 2 {
		t.Errorf("expected tag index to follow evictions, got %d members", got)
	}

	// expiry through lookup also cleans up
	if _, err := store.RememberTagged(ctx, []string{"posts"}, "p1", time.Minute, countingFetch(&calls, "p")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if _, ok, _ := store.Get(ctx, "p1"); ok {
		t.Fatal("expected p1 to expire")
	}
	if _, ok := store.tags["posts"]; ok {
		t.Error("expected expired entry to leave the tag index")
	}

	if err := store.FlushTags(ctx, "users"); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 || store.tagMembers() != 0 {
		t.Errorf("expected empty store after flush, got %d entries and %d members", store.Len(), store.tagMembers())
	}
}

func TestLRUStore_ConcurrentMissesFetchOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLRUStore(t, 100)

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("v"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Remember(ctx, "k", time.Minute, fetch); err != nil {
				t.Errorf("remember: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("expected a single fetch, got %d", calls)
	}
}
