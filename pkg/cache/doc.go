// Package cache provides the in-memory response cache used by the offline
// orchestrator.
//
// The store maps a request fingerprint to a timestamped response:
//
// - Entries carry an absolute expiry computed when they are stored
// - Expiry is checked lazily on lookup, there is no background sweep
// - Stores overwrite unconditionally, there is no size bound
// - The store is policy-agnostic; callers decide what is cacheable
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore()
//
//	req := request.New(request.MethodGet, "https://api.example.com/items").
//		WithQuery("page", "1")
//	fp := cache.Fingerprint(req)
//
//	if entry, ok := store.Get(fp); ok {
//		return entry.Response, nil
//	}
//
//	// ... call the transport ...
//	store.Set(fp, resp, policy.TTL)
//
// # Policies
//
// A Policy switches caching on or off per call and supplies the TTL.
// Disabled is the shared opt-out value:
//
//	orchestrator.Execute(ctx, req, offline.WithCachePolicy(cache.Disabled))
//
// # Metrics
//
//   - resilient_cache_hits_total - Live entries returned
//   - resilient_cache_misses_total{reason} - Lookups without a live entry
//   - resilient_cache_entries - Entries held (live or expired)
package cache
