// Package cache provides the in-process response cache for listing queries.
//
// The cache manager implements short-lived memoization with the following
// properties:
//
// - Fixed 60 second TTL measured from the last write of a key
// - Lazy expiration: stale entries are evicted by the lookup that finds them
// - One entry per key; a write replaces both value and timestamp
// - Optional capacity bound with least-recently-used eviction
// - Prometheus metrics for observability
// - Deterministic cache key generation
//
// # Basic Usage
//
//	manager, err := cache.NewManager[search.Listing](cache.Config{})
//	if err != nil {
//		return err
//	}
//
//	key := cache.CacheKey{
//		Query:    "oil",
//		Order:    cache.OrderAsc,
//		Page:     0,
//		PageSize: 15,
//	}
//
//	if listing, ok := manager.Get(key); ok {
//		return listing
//	}
//	// Cache miss - fetch from the catalog, then
//	manager.Put(key, listing)
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - catalog_cache_hits_total - Cache hits
//   - catalog_cache_misses_total{reason} - Misses, reason "absent" or "expired"
//   - catalog_cache_evictions_total{reason} - Removals, reason "expired" or "capacity"
//   - catalog_cache_entries - Entries currently held
//
// A capacity bound never extends the lifetime of an entry: entries older
// than the TTL are not served even when the cache is far from full.
package cache
