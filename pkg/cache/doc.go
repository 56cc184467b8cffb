// Package cache implements the in-memory request cache and GET
// de-duplication used by the storefront API client.
//
// Every outbound call is described by a Key (method, fully qualified URL,
// serialized body). The Manager then:
//
//   - joins a GET to an identical GET that is still in flight, so N
//     concurrent callers cause one network round trip and all observe the
//     same result or the same error,
//   - answers a GET from memory while its entry is younger than the TTL
//     (30 seconds by default),
//   - evicts, before dispatch, every entry whose key contains the path of a
//     POST, PUT, PATCH or DELETE,
//   - never caches failures, and never registers or caches non-GET calls.
//
// Population of the cache and removal from the in-flight registry both
// happen before any caller receives the result.
//
// # Usage
//
//	manager := cache.NewManager(cache.WithTTL(30 * time.Second))
//
//	key := cache.Key{Method: http.MethodGet, URL: "https://api.example.com/api/products"}
//	payload, err := manager.Do(ctx, key, "/api/products", func(ctx context.Context) ([]byte, error) {
//		return fetchFromNetwork(ctx)
//	})
//
// The Manager is scoped to one process. There is no coordination between
// processes or between Manager instances.
//
// # Metrics
//
//   - storefront_cache_hits_total
//   - storefront_cache_misses_total
//   - storefront_cache_shared_total        - callers that joined an in-flight GET
//   - storefront_cache_invalidations_total - entries evicted by mutating calls
//   - storefront_cache_entries             - entries currently held
//   - storefront_cache_inflight            - GETs currently in flight
package cache
