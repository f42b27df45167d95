// Package cache provides an optional Redis-backed cache for successful
// Registry GET payloads.
//
// The Registry publishes no cache-validator headers, so entries are stored
// under a fixed, configurable TTL. The cache is plumbing, not a persistence
// contract: the client works identically without it, and a cache failure is
// never allowed to fail a request.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.Key{
//		Path:  "/company/01234567/officers",
//		Query: url.Values{"items_per_page": []string{"100"}},
//	}
//
//	body, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the Registry, then manager.Set(ctx, key, body)
//	}
//
// # Metrics
//
//   - registry_cache_hits_total{layer="redis"} - cache hits
//   - registry_cache_misses_total - cache misses
//   - registry_cache_errors_total{operation} - cache operation errors
package cache
