package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DriverResolver maps a driver name to a Store.
type DriverResolver interface {
	Resolve(name string) (Store, error)
	Names() []string
}

// Registry is the default DriverResolver, a concurrency safe name to store map.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Store)}
}

// Register adds or replaces a driver.
func (r *Registry) Register(name string, store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[name] = store
}

// Resolve implements DriverResolver.
func (r *Registry) Resolve(name string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return store, nil
}

// Names returns the registered driver names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manager hands out Gateways bound to a driver. It never changes which driver
// a Gateway uses after construction; callers pick the driver per call.
type Manager struct {
	resolver      DriverResolver
	defaultDriver string
}

// NewManager creates a Manager that resolves through resolver and uses
// defaultDriver when callers pass an empty name.
func NewManager(resolver DriverResolver, defaultDriver string) *Manager {
	return &Manager{resolver: resolver, defaultDriver: defaultDriver}
}

// DefaultDriver returns the driver used for empty names.
func (m *Manager) DefaultDriver() string {
	return m.defaultDriver
}

// Drivers lists every resolvable driver.
func (m *Manager) Drivers() []string {
	return m.resolver.Names()
}

// Gateway resolves name (or the default driver) to a Gateway.
func (m *Manager) Gateway(name string) (*Gateway, error) {
	if name == "" {
		name = m.defaultDriver
	}
	store, err := m.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	return NewGateway(name, store), nil
}

// Gateway wraps one Store and exposes group aware operations on it.
type Gateway struct {
	driver   string
	store    Store
	grouping bool
	local    bool
}

// NewGateway binds a Gateway to store. Grouping support and locality are
// sampled once here.
func NewGateway(driver string, store Store) *Gateway {
	return &Gateway{
		driver:   driver,
		store:    store,
		grouping: SupportsGrouping(store),
		local:    ProcessLocal(store),
	}
}

// Driver returns the driver name.
func (g *Gateway) Driver() string {
	return g.driver
}

// Store returns the underlying store.
func (g *Gateway) Store() Store {
	return g.store
}

// SupportsGrouping reports whether group scoped calls are available.
func (g *Gateway) SupportsGrouping() bool {
	return g.grouping
}

// ProcessLocal reports whether the store lives in this process only.
func (g *Gateway) ProcessLocal() bool {
	return g.local
}

// Get reads a key without fetching.
func (g *Gateway) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return g.store.Get(ctx, key)
}

// Remember returns the cached value or stores the fetched one for lifetime.
// An empty group stores the key unscoped.
func (g *Gateway) Remember(ctx context.Context, group, key string, lifetime time.Duration, fetch Loader) ([]byte, error) {
	if group == "" {
		return g.store.Remember(ctx, key, lifetime, fetch)
	}
	if !g.grouping {
		return nil, ErrGroupingUnsupported
	}
	return g.store.(TaggedStore).RememberTagged(ctx, []string{group}, key, lifetime, fetch)
}

// RememberForever is Remember with the Forever lifetime.
func (g *Gateway) RememberForever(ctx context.Context, group, key string, fetch Loader) ([]byte, error) {
	return g.Remember(ctx, group, key, Forever, fetch)
}

// ForgetGroup removes every entry stored under group.
func (g *Gateway) ForgetGroup(ctx context.Context, group string) error {
	if !g.grouping {
		return ErrGroupingUnsupported
	}
	return g.store.(TaggedStore).FlushTags(ctx, group)
}

// Forget removes a single entry regardless of group.
func (g *Gateway) Forget(ctx context.Context, key string) error {
	return g.store.Forget(ctx, key)
}

// ForgetMany removes keys, in one call when the store allows it.
func (g *Gateway) ForgetMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if bulk, ok := g.store.(BulkForgetter); ok {
		return bulk.ForgetMany(ctx, keys)
	}
	for _, key := range keys {
		if err := g.store.Forget(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
