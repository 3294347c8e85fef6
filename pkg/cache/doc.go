// Package cache provides listing API caching with a Redis backend.
//
// The cache manager implements quota-friendly caching for the KIS
// listing gateway with the following features:
//
// - Strict respect of the gateway expires header (protects the API quota)
// - ETag support for conditional requests (If-None-Match)
// - Last-Modified support (If-Modified-Since)
// - Automatic TTL management based on the expires header
// - Prometheus metrics for observability
// - Deterministic cache key generation
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Create cache key
//	key := cache.Key{
//		Path:  "/v1/stocks",
//		Query: url.Values{"page": []string{"2"}},
//	}
//
//	// Get from cache
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - fetch from the gateway
//	}
//
// # HTTP Response Caching
//
//	// Convert HTTP response to cache entry
//	entry, err := cache.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	// Store in cache
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Conditional Requests
//
//	// Check if we should make a conditional request
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// Make request - the gateway returns 304 if not modified
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - kis_cache_hits_total{layer="redis"} - Cache hits
//   - kis_cache_misses_total - Cache misses
//   - kis_cache_size_bytes{layer="redis"} - Cache size
//   - kis_304_responses_total - Conditional request successes
//   - kis_cache_errors_total{operation} - Cache operation errors
//
// # Gateway Compliance
//
// This package follows the KIS gateway caching rules:
//
// - MUST respect the expires header (serve from cache at least that long)
// - SHOULD use conditional requests (If-None-Match) when possible
// - 304 Not Modified responses do NOT count against the request quota
package cache
