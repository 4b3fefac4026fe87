package framecache

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Memory is the in-process Cache backend, built on go-cache with a
// singleflight group so concurrent misses for the same key run the fetch
// exactly once.
type Memory[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemory creates an in-memory cache.
//
// Parameters:
//   - defaultTTL: Default expiration for entries (cache.NoExpiration for none)
//   - cleanupInterval: How often expired entries are purged
func NewMemory[T any](defaultTTL, cleanupInterval time.Duration) *Memory[T] {
	return &Memory[T]{
		cache: cache.New(defaultTTL, cleanupInterval),
	}
}

// GetOrFetch implements Cache.
func (m *Memory[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var zero T

	if val, found := m.cache.Get(key); found {
		if typed, ok := val.(T); ok {
			return typed, nil
		}
	}

	val, err, _ := m.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have populated the entry while this one
		// waited its turn in the group.
		if cached, found := m.cache.Get(key); found {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return zero, err
		}
		m.cache.Set(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected cached type for key %s", key)
	}
	return typed, nil
}

// Delete implements Cache.
func (m *Memory[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.cache.Delete(key)
	return nil
}

// Clear implements Cache.
func (m *Memory[T]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.cache.Flush()
	return nil
}

// ItemCount implements Cache.
func (m *Memory[T]) ItemCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.cache.ItemCount(), nil
}
