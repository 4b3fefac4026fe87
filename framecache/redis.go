package framecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Redis is the shared Cache backend, holding JSON-encoded entries in a redis
// database under a common key prefix. Concurrent local misses for a key
// collapse through singleflight; distinct processes may still fetch the same
// key once each, which is acceptable for frame data (fetches are idempotent
// reads of the image store).
type Redis[T any] struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedis creates a redis-backed cache. All keys are stored under
// prefix + ":".
//
// Parameters:
//   - client: Connected redis client
//   - prefix: Namespace for this cache's keys, e.g. "imageset"
func NewRedis[T any](client *redis.Client, prefix string) *Redis[T] {
	return &Redis[T]{
		client: client,
		prefix: prefix,
	}
}

func (r *Redis[T]) key(key string) string {
	return r.prefix + ":" + key
}

// GetOrFetch implements Cache.
func (r *Redis[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var zero T

	full := r.key(key)
	if val, err := r.get(ctx, full); err == nil {
		return val, nil
	} else if !errors.Is(err, redis.Nil) {
		return zero, err
	}

	val, err, _ := r.group.Do(full, func() (interface{}, error) {
		if cached, err := r.get(ctx, full); err == nil {
			return cached, nil
		} else if !errors.Is(err, redis.Nil) {
			return zero, err
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return zero, fmt.Errorf("fetch failed: %w", err)
		}

		data, err := json.Marshal(fetched)
		if err != nil {
			return zero, fmt.Errorf("marshal cached value: %w", err)
		}
		if err := r.client.Set(ctx, full, data, ttl).Err(); err != nil {
			return zero, fmt.Errorf("store cached value: %w", err)
		}
		return fetched, nil
	})
	if err != nil {
		return zero, err
	}
	return val.(T), nil
}

// get fetches and decodes one entry; it returns redis.Nil when absent.
func (r *Redis[T]) get(ctx context.Context, fullKey string) (T, error) {
	var zero T

	raw, err := r.client.Get(ctx, fullKey).Result()
	if err != nil {
		return zero, err
	}

	var val T
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return zero, fmt.Errorf("unmarshal cached value: %w", err)
	}
	return val, nil
}

// Delete implements Cache.
func (r *Redis[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("delete cached value: %w", err)
	}
	return nil
}

// Clear implements Cache. Only keys under this cache's prefix are removed.
func (r *Redis[T]) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached keys: %w", err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete cached keys: %w", err)
		}
	}
	return nil
}

// ItemCount implements Cache.
func (r *Redis[T]) ItemCount(ctx context.Context) (int, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()

	count := 0
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan cached keys: %w", err)
	}
	return count, nil
}
