// Package cache provides the two cache tiers used for tracking results.
//
// The memory tier is a bounded LRU with a per-entry freshness window. It is
// process local and always present. The Redis tier is optional and shared
// between instances; it stores serialized entries whose TTL is taken from
// the entry's Expires field.
//
// # Memory Tier
//
//	mem := cache.NewMemory[*Result]("memory", 1000, 5*time.Minute)
//	mem.Add("PGS123", result)
//	if r, ok := mem.Get("PGS123"); ok {
//		// fresh hit
//	}
//
// Entries older than the TTL are reported as misses and dropped. When the
// tier is full the least recently used entry is evicted.
//
// # Redis Tier
//
//	manager := cache.NewManager(redisClient)
//	key := cache.CacheKey{Kind: "result", ID: "PGS123"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the provider
//	}
//
//	_ = manager.Set(ctx, key, cache.NewEntry(data, 5*time.Minute))
//
// # Metrics
//
//   - tracking_cache_hits_total{layer} - Cache hits by layer
//   - tracking_cache_misses_total{layer} - Cache misses by layer
//   - tracking_cache_evictions_total{layer} - Entries dropped for capacity or age
//   - tracking_cache_entries{layer} - Current entry count of the memory tier
//   - tracking_cache_errors_total{operation} - Redis operation errors
package cache
