// Package cache holds the store contracts, the fingerprint generator and the
// cache gateway used by the query cache.
//
// # Overview
//
//   - Store and TaggedStore: key value stores for encoded query results. A
//     TaggedStore can scope entries under tags and flush a tag in one call.
//   - Fingerprinter: derives a cache key from a query.Descriptor plus the
//     effective driver and lifetime.
//   - Gateway: one resolved driver with group aware Remember, ForgetGroup and
//     Forget. Manager hands out gateways by driver name through a
//     DriverResolver such as Registry.
//
// # Drivers
//
//	memory    sturdyc client, no grouping
//	lru       hashicorp/golang-lru with a tag index, grouping
//	redis     go-redis with tag sets, grouping unless RedisConfig.Tags is false
//	database  bun table cache_entries, no grouping
//
// Stores without grouping rely on the key index (package keyindex) for flushes.
//
// # Fingerprints
//
// The canonical record is msgpack encoded positionally: the structural
// clauses, the selected columns, the entity type, the driver, the lifetime,
// eager loads, bindings and the compiled statement. Map keys are sorted and
// integers written in their smallest form, so the key is the same in every
// process. Keys look like "qc:<sha256 hex>" or, with WithHash(HashXX),
// "qc:<16 hex digits>".
//
//	f := cache.NewFingerprinter()
//	key, err := f.Fingerprint(desc, cache.KeySettings{Driver: "memory", Lifetime: time.Minute})
//
// Descriptors holding values msgpack cannot encode, such as funcs or
// channels, fail with ErrFingerprint. There is no fallback key.
//
// # Lifetimes
//
// Forever stores without expiry. Stores treat a zero ttl as no expiry as well;
// callers going through querycache never pass zero.
package cache
