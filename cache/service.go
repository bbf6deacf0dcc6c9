package cache

import (
	"context"
	"errors"
	"time"
)

// Forever is the lifetime sentinel for entries that never expire.
const Forever time.Duration = -1

var (
	// ErrGroupingUnsupported is returned when a group operation is attempted on a store without tags.
	ErrGroupingUnsupported = errors.New("cache: store does not support grouping")
	// ErrUnknownDriver is returned when a driver name cannot be resolved.
	ErrUnknownDriver = errors.New("cache: unknown driver")
)

// FetchFn is the function signature callers supply when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Loader is the untyped fetch function stores work with. It is an alias so
// store implementations do not need to import this package.
type Loader = func(ctx context.Context) ([]byte, error)

// Store is a key value store holding encoded query results.
//
// Remember returns the stored value for key, or invokes fetch, stores its
// result for ttl and returns it. A ttl of Forever stores without expiry.
// Errors from fetch are returned unchanged and nothing is stored.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Remember(ctx context.Context, key string, ttl time.Duration, fetch Loader) ([]byte, error)
	Forget(ctx context.Context, key string) error
}

// TaggedStore is a Store that can scope entries under tags and flush a tag in one call.
type TaggedStore interface {
	Store
	RememberTagged(ctx context.Context, tags []string, key string, ttl time.Duration, fetch Loader) ([]byte, error)
	FlushTags(ctx context.Context, tags ...string) error
}

// GroupingReporter lets a TaggedStore report that tags are currently unavailable.
type GroupingReporter interface {
	SupportsGrouping() bool
}

// SupportsGrouping reports whether store can serve tag-scoped operations.
func SupportsGrouping(store Store) bool {
	if _, ok := store.(TaggedStore); !ok {
		return false
	}
	if r, ok := store.(GroupingReporter); ok {
		return r.SupportsGrouping()
	}
	return true
}

// LocalityReporter is implemented by stores whose entries live in the memory
// of the current process. Other processes can neither read nor forget them.
type LocalityReporter interface {
	ProcessLocal() bool
}

// ProcessLocal reports whether store keeps its entries in process memory.
// Stores that do not say are treated as shared.
func ProcessLocal(store Store) bool {
	r, ok := store.(LocalityReporter)
	return ok && r.ProcessLocal()
}

// BulkForgetter is implemented by stores that can remove many keys in one call.
type BulkForgetter interface {
	ForgetMany(ctx context.Context, keys []string) error
}

// Closer is implemented by stores that hold connections.
type Closer interface {
	Close() error
}
