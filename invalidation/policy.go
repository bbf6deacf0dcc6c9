// Package invalidation flushes cached query results when records change.
package invalidation

import (
	"sort"
	"sync"
)

// Policy holds the per entity type enablement flags. Types are enabled unless
// disabled explicitly.
type Policy struct {
	mu       sync.RWMutex
	disabled map[string]struct{}
}

// NewPolicy returns a policy with the given types disabled.
func NewPolicy(disabled ...string) *Policy {
	p := &Policy{disabled: make(map[string]struct{})}
	for _, entity := range disabled {
		p.disabled[entity] = struct{}{}
	}
	return p
}

// Enable turns invalidation on for entity.
func (p *Policy) Enable(entity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.disabled, entity)
}

// Disable turns invalidation off for entity.
func (p *Policy) Disable(entity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[entity] = struct{}{}
}

// Enabled reports whether lifecycle events for entity flush the cache.
func (p *Policy) Enabled(entity string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, off := p.disabled[entity]
	return !off
}

// Disabled lists the disabled types in sorted order.
func (p *Policy) Disabled() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.disabled))
	for entity := range p.disabled {
		out = append(out, entity)
	}
	sort.Strings(out)
	return out
}
