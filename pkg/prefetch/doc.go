// Package prefetch warms the listing cache by fetching remaining pages in parallel.
//
// The KIS listing endpoint reports the collection size in the X-Total-Pages
// header. This package fetches page 1 to learn the page count, then spreads
// the remaining pages across a worker pool so that later on-demand loads are
// served from the Redis cache.
//
// Example usage:
//
//	warmer := prefetch.NewWarmer(kisClient, prefetch.DefaultConfig())
//	pages, err := warmer.WarmAll(ctx)
//
// The warmer:
//   - Fetches page 1 to determine the total page count
//   - Spawns a worker pool (default 4 workers)
//   - Distributes the remaining pages across workers
//   - Treats 304 revalidations of already-cached pages as warm
//   - Handles errors gracefully (returns partial data)
package prefetch
