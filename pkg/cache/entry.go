package cache

import "time"

// TTL is how long an entry may be served after it was written.
const TTL = 60 * time.Second

// CacheEntry is a cached response together with the time it was stored.
type CacheEntry[V any] struct {
	// Value is the cached response.
	Value V

	// StoredAt is when the entry was written.
	StoredAt time.Time
}

// IsExpired reports whether the entry may no longer be served at now.
// An entry is valid only while now - StoredAt < TTL.
func (e *CacheEntry[V]) IsExpired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= TTL
}

// Remaining returns the time left before the entry expires.
// Returns 0 if already expired.
func (e *CacheEntry[V]) Remaining(now time.Time) time.Duration {
	left := TTL - now.Sub(e.StoredAt)
	if left < 0 {
		return 0
	}
	return left
}
