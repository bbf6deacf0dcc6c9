package cacheinfra

import "time"

// entry is a stored value plus its own deadline, for backends whose TTL is
// not per key. A zero expiresAt never expires.
type entry struct {
	value     []byte
	expiresAt int64
	tags      []string
}

// newEntry computes the deadline for ttl. Negative ttl means forever; a zero
// ttl is resolved by callers before reaching here.
func newEntry(value []byte, ttl time.Duration, now time.Time) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl).UnixNano()
	}
	return e
}

func (e entry) expired(now time.Time) bool {
	return e.expiresAt != 0 && now.UnixNano() >= e.expiresAt
}
