// Package keyindex tracks which cache keys belong to which entity type.
//
// Stores without native tags cannot flush "everything cached for users" in
// one call. The key index fills that gap: every key written for an entity type
// is appended under that type, and a flush reads and clears the list so the
// caller can forget each key individually.
//
// The index is shared mutable state across goroutines and processes. Every
// implementation here serializes its read-modify-write cycle:
//
//   - FileIndex: process mutex plus an advisory file lock, atomic rename on write
//   - RedisIndex: WATCH/MULTI optimistic transaction, retried on conflict
//   - DatabaseIndex: one row per key, flush inside a SQL transaction
//   - MemoryIndex: process mutex; for stores that live in one process
//
// A key appended after a concurrent flush has read the index survives until
// the next flush or until its entry expires.
package keyindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrCorruptIndex is returned when a persisted index exists but cannot be decoded.
var ErrCorruptIndex = errors.New("keyindex: corrupt index document")

// Index is a persisted entity type to cache key mapping.
type Index interface {
	// Append records key under entity. Appending an existing key is a no-op.
	Append(ctx context.Context, entity, key string) error
	// Flush removes entity from the index and returns the keys it held.
	// Flushing an unknown entity returns an empty slice and no error.
	Flush(ctx context.Context, entity string) ([]string, error)
	// Load returns a snapshot of the whole index.
	Load(ctx context.Context) (Document, error)
}

// Document is the persisted layout: entity type name to its cache keys.
type Document map[string][]string

// Add appends key under entity and reports whether the document changed.
func (d Document) Add(entity, key string) bool {
	for _, existing := range d[entity] {
		if existing == key {
			return false
		}
	}
	d[entity] = append(d[entity], key)
	return true
}

// Take removes entity and returns its keys, never nil.
func (d Document) Take(entity string) []string {
	keys, ok := d[entity]
	if !ok {
		return []string{}
	}
	delete(d, entity)
	return keys
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for entity, keys := range d {
		out[entity] = append([]string(nil), keys...)
	}
	return out
}

// normalize sorts and dedupes every key list and drops empty entries.
func (d Document) normalize() {
	for entity, keys := range d {
		if len(keys) == 0 {
			delete(d, entity)
			continue
		}
		sort.Strings(keys)
		out := keys[:1]
		for _, key := range keys[1:] {
			if key != out[len(out)-1] {
				out = append(out, key)
			}
		}
		d[entity] = out
	}
}

// Encode serializes doc as indented JSON with sorted entities and keys.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	norm := doc.Clone()
	norm.normalize()
	data, err := json.MarshalIndent(norm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("keyindex: encode: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a persisted document. Blank input decodes to an empty document;
// anything else that is not a JSON object of string arrays is ErrCorruptIndex.
func Decode(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	if doc == nil {
		doc = Document{}
	}
	doc.normalize()
	return doc, nil
}
