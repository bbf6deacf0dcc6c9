package cacheinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func newTestDatabaseStore(t *testing.T) (*databaseStore, *fakeClock) {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewDatabaseStore(context.Background(), db, DefaultDatabaseConfig())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	clock := newFakeClock()
	store.now = clock.Now
	return store, clock
}

func TestNewDatabaseStore_NilDB(t *testing.T) {
	_, err := NewDatabaseStore(context.Background(), nil, DefaultDatabaseConfig())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "DB" {
		t.Fatalf("expected DB config error, got %v", err)
	}
}

func TestDatabaseStore_Remember(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestDatabaseStore(t)

	var calls int32
	for i := 0; i < 3; i++ {
		got, err := store.Remember(ctx, "k", time.Minute, countingFetch(&calls, "v"))
		if err != nil {
			t.Fatalf("remember: %v", err)
		}
		if string(got) != "v" {
			t.Fatalf("expected v, got %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}

	clock.Advance(time.Minute)
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected expired miss, got ok=%v err=%v", ok, err)
	}

	got, err := store.Remember(ctx, "k", time.Minute, countingFetch(&calls, "w"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "w" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected refetch of w, got %q after %d calls", got, calls)
	}
}

func TestDatabaseStore_FetchErrorNotStored(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDatabaseStore(t)

	boom := errors.New("boom")
	_, err := store.Remember(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("fetch error should not be stored")
	}
}

func TestDatabaseStore_ForgetAndPrune(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestDatabaseStore(t)

	var calls int32
	for _, key := range []string{"a", "b"} {
		if _, err := store.Remember(ctx, key, time.Minute, countingFetch(&calls, key)); err != nil {
			t.Fatal(err)
		}
	}
	for _, key := range []string{"c", "d"} {
		if _, err := store.Remember(ctx, key, -1, countingFetch(&calls, key)); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.ForgetMany(ctx, []string{"c", "missing"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "c"); ok {
		t.Error("expected c to be forgotten")
	}

	clock.Advance(2 * time.Minute)
	removed, err := store.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("expected 2 expired rows pruned, got %d", removed)
	}
	if _, ok, _ := store.Get(ctx, "d"); !ok {
		t.Error("expected forever entry d to survive prune")
	}
}
