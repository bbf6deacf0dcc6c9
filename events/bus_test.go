package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestBus_UntilStopsAtFirstError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")

	var calls []string
	bus.Listen(CacheFlushing, func(ctx context.Context, ev Event) error {
		calls = append(calls, "first")
		return nil
	})
	bus.Listen(CacheFlushing, func(ctx context.Context, ev Event) error {
		calls = append(calls, "second")
		return boom
	})
	bus.Listen(CacheFlushing, func(ctx context.Context, ev Event) error {
		calls = append(calls, "third")
		return nil
	})

	err := bus.Until(context.Background(), Event{Name: CacheFlushing, EntityType: "users"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("unexpected call order: %v", calls)
	}
}

func TestBus_DispatchSwallowsErrorsAndPanics(t *testing.T) {
	bus := NewBus(zap.NewNop())

	reached := false
	bus.Listen(CacheFlushed, func(ctx context.Context, ev Event) error {
		return errors.New("ignored")
	})
	bus.Listen(CacheFlushed, func(ctx context.Context, ev Event) error {
		panic("listener blew up")
	})
	bus.Listen(CacheFlushed, func(ctx context.Context, ev Event) error {
		reached = true
		return nil
	})

	bus.Dispatch(context.Background(), Event{Name: CacheFlushed})

	if !reached {
		t.Error("expected last listener to run")
	}
}

func TestBus_UntilReportsPanic(t *testing.T) {
	bus := NewBus()
	bus.Listen(EntityUpdated, func(ctx context.Context, ev Event) error {
		panic("nope")
	})

	if err := bus.Until(context.Background(), Event{Name: EntityUpdated}); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestBus_Forget(t *testing.T) {
	bus := NewBus()
	calls := 0
	id := bus.Listen(EntityCreated, func(ctx context.Context, ev Event) error {
		calls++
		return nil
	})

	if !bus.HasListeners(EntityCreated) {
		t.Fatal("expected listener")
	}
	bus.Forget(id)
	bus.Forget("unknown")

	if bus.HasListeners(EntityCreated) {
		t.Error("expected no listeners after Forget")
	}
	if err := bus.Until(context.Background(), Event{Name: EntityCreated}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected forgotten listener not to run, ran %d times", calls)
	}
}

func TestBus_ConcurrentListenDispatch(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := bus.Listen(EntityDeleted, func(ctx context.Context, ev Event) error { return nil })
			bus.Forget(id)
		}()
		go func() {
			defer wg.Done()
			bus.Dispatch(context.Background(), Event{Name: EntityDeleted})
		}()
	}
	wg.Wait()
}
