// Package framecache caches loaded frames and frame metadata with automatic
// fetching on a miss. The memory backend keeps decoded frames of the active
// image set hot between replays; the redis backend shares entries between
// vision processes on the same host.
package framecache

import (
	"context"
	"time"
)

// FetchFunc loads a value from its source when the cache misses.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cache stores values of type T by string key. Implementations are safe for
// concurrent use and collapse concurrent misses for the same key into one
// fetch.
type Cache[T any] interface {
	// GetOrFetch returns the cached value for key, or fetches, stores (with
	// the given TTL), and returns it on a miss.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: Time-to-live for a newly stored value
	//   - fetch: Loader invoked on a miss
	//
	// Returns:
	//   - The cached or freshly fetched value
	//   - An error if the lookup or the fetch failed
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error)

	// Delete removes key from the cache. Removing an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// ItemCount returns the number of entries currently stored.
	ItemCount(ctx context.Context) (int, error)
}
