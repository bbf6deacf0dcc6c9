package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingStore is a map backed Store that records calls.
type recordingStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	calls   []string
	lastTTL time.Duration
}

func newRecordingStore() *recordingStore {
	return &recordingStore{data: make(map[string][]byte)}
}

func (s *recordingStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *recordingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Get")
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *recordingStore) Remember(ctx context.Context, key string, ttl time.Duration, fetch Loader) ([]byte, error) {
	s.mu.Lock()
	s.record("Remember")
	s.lastTTL = ttl
	if v, ok := s.data[key]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
	return v, nil
}

func (s *recordingStore) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Forget")
	delete(s.data, key)
	return nil
}

// taggedStore adds tag tracking to recordingStore.
type taggedStore struct {
	*recordingStore
	tags     map[string][]string
	grouping bool
}

func newTaggedStore() *taggedStore {
	return &taggedStore{recordingStore: newRecordingStore(), tags: make(map[string][]string), grouping: true}
}

func (s *taggedStore) RememberTagged(ctx context.Context, tags []string, key string, ttl time.Duration, fetch Loader) ([]byte, error) {
	v, err := s.Remember(ctx, key, ttl, fetch)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("RememberTagged")
	for _, tag := range tags {
		s.tags[tag] = append(s.tags[tag], key)
	}
	return v, nil
}

func (s *taggedStore) FlushTags(ctx context.Context, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FlushTags")
	for _, tag := range tags {
		for _, key := range s.tags[tag] {
			delete(s.data, key)
		}
		delete(s.tags, tag)
	}
	return nil
}

func (s *taggedStore) SupportsGrouping() bool {
	return s.grouping
}

type bulkStore struct {
	*recordingStore
	batches [][]string
}

func (s *bulkStore) ForgetMany(ctx context.Context, keys []string) error {
	s.batches = append(s.batches, keys)
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func bytesFetch(v string, calls *int) Loader {
	return func(ctx context.Context) ([]byte, error) {
		*calls++
		return []byte(v), nil
	}
}

func TestSupportsGrouping(t *testing.T) {
	plain := newRecordingStore()
	tagged := newTaggedStore()
	optedOut := newTaggedStore()
	optedOut.grouping = false

	tests := []struct {
		name  string
		store Store
		want  bool
	}{
		{name: "plain store", store: plain, want: false},
		{name: "tagged store", store: tagged, want: true},
		{name: "tagged store reporting no grouping", store: optedOut, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupportsGrouping(tt.store); got != tt.want {
				t.Errorf("SupportsGrouping = %v, want %v", got, tt.want)
			}
			if got := NewGateway("x", tt.store).SupportsGrouping(); got != tt.want {
				t.Errorf("Gateway.SupportsGrouping = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGateway_RememberHitSkipsFetch(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway("memory", newRecordingStore())

	calls := 0
	for i := 0; i < 3; i++ {
		v, err := gw.Remember(ctx, "", "k", time.Minute, bytesFetch("v", &calls))
		if err != nil {
			t.Fatal(err)
		}
		if string(v) != "v" {
			t.Fatalf("unexpected value %q", v)
		}
	}
	if calls != 1 {
		t.Errorf("expected one fetch, got %d", calls)
	}
}

func TestGateway_RememberForeverPassesSentinel(t *testing.T) {
	store := newRecordingStore()
	gw := NewGateway("memory", store)
	calls := 0

	if _, err := gw.RememberForever(context.Background(), "", "k", bytesFetch("v", &calls)); err != nil {
		t.Fatal(err)
	}
	if store.lastTTL != Forever {
		t.Errorf("expected Forever ttl, got %v", store.lastTTL)
	}
}

func TestGateway_GroupOperations(t *testing.T) {
	ctx := context.Background()
	store := newTaggedStore()
	gw := NewGateway("lru", store)
	calls := 0

	if _, err := gw.Remember(ctx, "User", "u1", time.Minute, bytesFetch("a", &calls)); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.Remember(ctx, "Post", "p1", time.Minute, bytesFetch("b", &calls)); err != nil {
		t.Fatal(err)
	}

	if err := gw.ForgetGroup(ctx, "User"); err != nil {
		t.Fatalf("ForgetGroup: %v", err)
	}
	if _, ok, _ := gw.Get(ctx, "u1"); ok {
		t.Error("expected User entry flushed")
	}
	if _, ok, _ := gw.Get(ctx, "p1"); !ok {
		t.Error("expected Post entry kept")
	}
}

func TestGateway_GroupingUnsupported(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway("memory", newRecordingStore())
	calls := 0

	if _, err := gw.Remember(ctx, "User", "k", time.Minute, bytesFetch("v", &calls)); !errors.Is(err, ErrGroupingUnsupported) {
		t.Errorf("Remember: expected ErrGroupingUnsupported, got %v", err)
	}
	if err := gw.ForgetGroup(ctx, "User"); !errors.Is(err, ErrGroupingUnsupported) {
		t.Errorf("ForgetGroup: expected ErrGroupingUnsupported, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no fetch, got %d", calls)
	}
}

func TestGateway_FetchErrorNotStored(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway("memory", newRecordingStore())
	boom := errors.New("boom")

	_, err := gw.Remember(ctx, "", "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	if err != boom {
		t.Fatalf("expected fetch error unchanged, got %v", err)
	}
	if _, ok, _ := gw.Get(ctx, "k"); ok {
		t.Error("expected nothing stored")
	}
}

func TestGateway_ForgetMany(t *testing.T) {
	ctx := context.Background()

	plain := newRecordingStore()
	plain.data["a"] = []byte("1")
	plain.data["b"] = []byte("2")
	if err := NewGateway("plain", plain).ForgetMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if len(plain.data) != 0 {
		t.Errorf("expected keys removed one by one, left %v", plain.data)
	}

	bulk := &bulkStore{recordingStore: newRecordingStore()}
	bulk.data["a"] = []byte("1")
	if err := NewGateway("bulk", bulk).ForgetMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if len(bulk.batches) != 1 || len(bulk.batches[0]) != 2 {
		t.Errorf("expected one bulk call, got %v", bulk.batches)
	}
	for _, call := range bulk.calls {
		if call == "Forget" {
			t.Error("expected bulk store to skip single Forget")
		}
	}
}

func TestManager_Resolution(t *testing.T) {
	registry := NewRegistry()
	registry.Register("memory", newRecordingStore())
	registry.Register("lru", newTaggedStore())
	manager := NewManager(registry, "memory")

	gw, err := manager.Gateway("")
	if err != nil {
		t.Fatal(err)
	}
	if gw.Driver() != "memory" || gw.SupportsGrouping() {
		t.Errorf("expected default memory gateway, got %s grouping=%v", gw.Driver(), gw.SupportsGrouping())
	}

	gw, err = manager.Gateway("lru")
	if err != nil {
		t.Fatal(err)
	}
	if !gw.SupportsGrouping() {
		t.Error("expected lru gateway to support grouping")
	}

	if _, err := manager.Gateway("redis"); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}

	names := manager.Drivers()
	if len(names) != 2 || names[0] != "lru" || names[1] != "memory" {
		t.Errorf("expected sorted driver names, got %v", names)
	}
	if manager.DefaultDriver() != "memory" {
		t.Errorf("unexpected default driver %q", manager.DefaultDriver())
	}
}

func TestGateway_GroupingSampledOnce(t *testing.T) {
	store := newTaggedStore()
	gw := NewGateway("lru", store)

	store.grouping = false
	if !gw.SupportsGrouping() {
		t.Error("expected gateway to keep the grouping answer it was built with")
	}
	if NewGateway("lru", store).SupportsGrouping() {
		t.Error("expected a new gateway to see the new answer")
	}
}
