package keyindex

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryIndex_AppendFlushLoad(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	for _, pair := range [][2]string{{"users", "k2"}, {"users", "k1"}, {"users", "k1"}, {"posts", "k3"}} {
		if err := idx.Append(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("append %v: %v", pair, err)
		}
	}

	doc, _ := idx.Load(ctx)
	want := Document{"users": {"k1", "k2"}, "posts": {"k3"}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	// a snapshot is not the live document
	doc["users"] = nil

	keys, err := idx.Flush(ctx, "users")
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if diff := cmp.Diff([]string{"k1", "k2"}, keys); diff != "" {
		t.Errorf("flushed keys mismatch (-want +got):\n%s", diff)
	}

	keys, _ = idx.Flush(ctx, "users")
	if keys == nil || len(keys) != 0 {
		t.Errorf("expected empty non-nil result for a flushed entity, got %#v", keys)
	}

	doc, _ = idx.Load(ctx)
	if diff := cmp.Diff(Document{"posts": {"k3"}}, doc); diff != "" {
		t.Errorf("document after flush mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryIndex_IsolatedPerInstance(t *testing.T) {
	ctx := context.Background()
	a, b := NewMemoryIndex(), NewMemoryIndex()

	if err := a.Append(ctx, "users", "k1"); err != nil {
		t.Fatal(err)
	}
	if keys, _ := b.Flush(ctx, "users"); len(keys) != 0 {
		t.Errorf("expected another instance to see nothing, got %v", keys)
	}
	if doc, _ := a.Load(ctx); len(doc["users"]) != 1 {
		t.Errorf("expected k1 to stay tracked, got %v", doc)
	}
}

func TestMemoryIndex_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = idx.Append(ctx, "users", fmt.Sprintf("k%02d", i))
		}(i)
	}
	wg.Wait()

	keys, _ := idx.Flush(ctx, "users")
	if len(keys) != 50 {
		t.Errorf("expected 50 keys, got %d", len(keys))
	}
}
