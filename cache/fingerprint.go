package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-query-cache/query"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultKeyPrefix is prepended to every fingerprint.
const DefaultKeyPrefix = "qc:"

// Supported digests.
const (
	HashSHA256 = "sha256"
	HashXX     = "xxhash"
)

// ErrFingerprint is returned when a descriptor cannot be serialized.
var ErrFingerprint = errors.New("cache: cannot fingerprint query")

// KeySettings is the effective caching configuration of one call. It is part
// of the fingerprint so the same query cached on two drivers or with two
// lifetimes does not share an entry.
type KeySettings struct {
	Driver   string
	Lifetime time.Duration
}

// Fingerprinter derives a cache key from a query descriptor.
// Implementations must be pure: equal inputs give equal keys in any process.
type Fingerprinter interface {
	Fingerprint(desc query.Descriptor, settings KeySettings) (string, error)
}

// FingerprintOption configures the default fingerprinter.
type FingerprintOption func(*defaultFingerprinter)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) FingerprintOption {
	return func(f *defaultFingerprinter) {
		f.prefix = prefix
	}
}

// WithHash selects the digest, HashSHA256 or HashXX.
func WithHash(name string) FingerprintOption {
	return func(f *defaultFingerprinter) {
		f.hash = name
	}
}

type defaultFingerprinter struct {
	prefix string
	hash   string
}

// NewFingerprinter creates the default msgpack based fingerprinter.
func NewFingerprinter(opts ...FingerprintOption) Fingerprinter {
	f := &defaultFingerprinter{prefix: DefaultKeyPrefix, hash: HashSHA256}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// structure holds the structural clauses in a fixed order. Columns and the
// entity are kept out of it because the canonical record lists them on their own.
type structure struct {
	_msgpack struct{} `msgpack:",as_array"`

	Method      string
	Aggregate   *query.Aggregate
	Distinct    bool
	From        string
	Joins       []query.Join
	Wheres      []query.Predicate
	Groups      []string
	Havings     []query.Predicate
	Orders      []query.Order
	Limit       *int
	Offset      *int
	Unions      []query.Union
	UnionLimit  *int
	UnionOffset *int
	UnionOrders []query.Order
	Lock        string
}

// record is the canonical, ordered input to the digest.
type record struct {
	_msgpack struct{} `msgpack:",as_array"`

	Structure structure
	Columns   []string
	Entity    string
	Driver    string
	Lifetime  int64
	Eager     []query.EagerLoad
	Bindings  []any
	Statement string
}

// Fingerprint implements Fingerprinter.
func (f *defaultFingerprinter) Fingerprint(desc query.Descriptor, settings KeySettings) (string, error) {
	payload, err := Canonical(desc, settings)
	if err != nil {
		return "", err
	}

	switch f.hash {
	case "", HashSHA256:
		sum := sha256.Sum256(payload)
		return f.prefix + hex.EncodeToString(sum[:]), nil
	case HashXX:
		return f.prefix + fmt.Sprintf("%016x", xxhash.Sum64(payload)), nil
	default:
		return "", fmt.Errorf("%w: unknown hash %s", ErrFingerprint, strconv.Quote(f.hash))
	}
}

// Canonical returns the byte representation that gets hashed.
// Struct fields are written positionally, map keys sorted, and integers in
// their most compact form so int(18) and int64(18) serialize identically.
func Canonical(desc query.Descriptor, settings KeySettings) ([]byte, error) {
	rec := record{
		Structure: structure{
			Method:      desc.Method,
			Aggregate:   desc.Aggregate,
			Distinct:    desc.Distinct,
			From:        desc.From,
			Joins:       desc.Joins,
			Wheres:      desc.Wheres,
			Groups:      desc.Groups,
			Havings:     desc.Havings,
			Orders:      desc.Orders,
			Limit:       desc.Limit,
			Offset:      desc.Offset,
			Unions:      desc.Unions,
			UnionLimit:  desc.UnionLimit,
			UnionOffset: desc.UnionOffset,
			UnionOrders: desc.UnionOrders,
			Lock:        desc.Lock,
		},
		Columns:   desc.Columns,
		Entity:    desc.Entity,
		Driver:    settings.Driver,
		Lifetime:  int64(settings.Lifetime),
		Eager:     desc.EagerLoads,
		Bindings:  desc.Bindings,
		Statement: desc.Statement,
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFingerprint, err)
	}
	return buf.Bytes(), nil
}
