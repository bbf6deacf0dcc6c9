// Package events is a small synchronous event bus used to connect record
// lifecycle hooks to cache invalidation.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event names understood by the invalidation trigger.
const (
	EntityCreated = "entity.created"
	EntityUpdated = "entity.updated"
	EntityDeleted = "entity.deleted"
	CacheFlushing = "cache.flushing"
	CacheFlushed  = "cache.flushed"
)

// LifecycleEvents lists the record lifecycle event names.
var LifecycleEvents = []string{EntityCreated, EntityUpdated, EntityDeleted}

// ErrVeto is returned by a halting listener to cancel the operation it guards
// without reporting a failure.
var ErrVeto = errors.New("events: vetoed")

// Event is the payload delivered to listeners.
type Event struct {
	Name       string
	EntityType string
	// Keys holds the cache keys involved, set on cache.flushed.
	Keys []string
	// Record is the written record for lifecycle events, if any.
	Record any
}

// Listener handles one event. Returning an error from a listener invoked via
// Until stops delivery.
type Listener func(ctx context.Context, ev Event) error

type subscription struct {
	id       string
	listener Listener
}

// Bus delivers events to listeners in registration order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	logger    *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger ...*zap.Logger) *Bus {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Bus{
		listeners: make(map[string][]subscription),
		logger:    l.With(zap.String("component", "events")),
	}
}

// Listen registers listener for name and returns a subscription id.
func (b *Bus) Listen(name string, listener Listener) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.listeners[name] = append(b.listeners[name], subscription{id: id, listener: listener})
	return id
}

// Forget removes a subscription. Unknown ids are ignored.
func (b *Bus) Forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, subs := range b.listeners {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			rest := make([]subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(b.listeners, name)
			} else {
				b.listeners[name] = rest
			}
			return
		}
	}
}

// HasListeners reports whether anything listens for name.
func (b *Bus) HasListeners(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name]) > 0
}

// Until delivers ev and stops at the first listener error, which it returns.
// A panicking listener is reported as an error.
func (b *Bus) Until(ctx context.Context, ev Event) error {
	for _, sub := range b.snapshot(ev.Name) {
		if err := b.call(ctx, sub, ev); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch delivers ev to every listener. Listener errors and panics are
// logged and never reach the caller.
func (b *Bus) Dispatch(ctx context.Context, ev Event) {
	for _, sub := range b.snapshot(ev.Name) {
		if err := b.call(ctx, sub, ev); err != nil {
			b.logger.Warn("listener failed",
				zap.String("event", ev.Name),
				zap.String("entity", ev.EntityType),
				zap.String("subscription", sub.id),
				zap.Error(err),
			)
		}
	}
}

func (b *Bus) snapshot(name string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]subscription(nil), b.listeners[name]...)
}

func (b *Bus) call(ctx context.Context, sub subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked",
				zap.String("event", ev.Name),
				zap.String("subscription", sub.id),
				zap.Any("recover", r),
			)
			err = fmt.Errorf("events: listener for %s panicked: %v", ev.Name, r)
		}
	}()
	return sub.listener(ctx, ev)
}
