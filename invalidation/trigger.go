package invalidation

import (
	"context"
	"errors"

	"github.com/goliatone/go-query-cache/events"
	"go.uber.org/zap"
)

// Flusher forgets every cached result of an entity type.
type Flusher interface {
	Flush(ctx context.Context, entity string) ([]string, error)
}

// Trigger listens for record lifecycle events and flushes the affected entity type.
//
// A flush announces itself with cache.flushing through Bus.Until, so a listener
// can veto it, and reports cache.flushed through Bus.Dispatch when done.
type Trigger struct {
	cache  Flusher
	bus    *events.Bus
	policy *Policy
	logger *zap.Logger
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Trigger) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithPolicy sets the enablement policy. The default enables every type.
func WithPolicy(policy *Policy) Option {
	return func(t *Trigger) {
		if policy != nil {
			t.policy = policy
		}
	}
}

// New creates a Trigger. Call Subscribe to attach it to the bus.
func New(cache Flusher, bus *events.Bus, opts ...Option) *Trigger {
	t := &Trigger{
		cache:  cache,
		bus:    bus,
		policy: NewPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("component", "invalidation"))
	return t
}

// Policy returns the enablement policy.
func (t *Trigger) Policy() *Policy {
	return t.policy
}

// Subscribe listens for entity.created, entity.updated and entity.deleted.
// The returned func removes the listeners.
func (t *Trigger) Subscribe() func() {
	ids := make([]string, 0, len(events.LifecycleEvents))
	for _, name := range events.LifecycleEvents {
		ids = append(ids, t.bus.Listen(name, t.Handle))
	}
	return func() {
		for _, id := range ids {
			t.bus.Forget(id)
		}
	}
}

// Handle is the lifecycle listener. Disabled types are ignored.
func (t *Trigger) Handle(ctx context.Context, ev events.Event) error {
	if ev.EntityType == "" || !t.policy.Enabled(ev.EntityType) {
		return nil
	}
	_, err := t.Flush(ctx, ev.EntityType)
	return err
}

// Flush flushes entity regardless of the policy. A vetoed flush returns no
// keys and no error.
func (t *Trigger) Flush(ctx context.Context, entity string) ([]string, error) {
	err := t.bus.Until(ctx, events.Event{Name: events.CacheFlushing, EntityType: entity})
	if errors.Is(err, events.ErrVeto) {
		t.logger.Debug("flush vetoed", zap.String("entity", entity))
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	keys, err := t.cache.Flush(ctx, entity)
	if err != nil {
		t.logger.Warn("flush failed", zap.String("entity", entity), zap.Error(err))
		return keys, err
	}

	t.bus.Dispatch(ctx, events.Event{Name: events.CacheFlushed, EntityType: entity, Keys: keys})
	return keys, nil
}
