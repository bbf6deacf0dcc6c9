package keyindex

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex keeps the document in process memory. It pairs with stores
// whose entries are process local: only the process holding an entry can
// forget it, so only that process may see its key.
type MemoryIndex struct {
	mu  sync.Mutex
	doc Document
}

// NewMemoryIndex creates an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{doc: Document{}}
}

// Append implements Index.
func (m *MemoryIndex) Append(ctx context.Context, entity, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.Add(entity, key)
	return nil
}

// Flush implements Index.
func (m *MemoryIndex) Flush(ctx context.Context, entity string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.doc.Take(entity)
	sort.Strings(keys)
	return keys, nil
}

// Load implements Index.
func (m *MemoryIndex) Load(ctx context.Context) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.doc.Clone()
	doc.normalize()
	return doc, nil
}
