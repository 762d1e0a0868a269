package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCacher keeps values in process memory using go-cache. Concurrent
// misses on one key share a single fetch through singleflight.
type MemoryCacher[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCacher returns an empty cache whose expired entries are purged
// every cleanupInterval.
//
// Parameters:
//   - cleanupInterval: Interval at which expired items are removed
//
// Returns:
//   - A new MemoryCacher
func NewMemoryCacher[T any](cleanupInterval time.Duration) *MemoryCacher[T] {
	return &MemoryCacher[T]{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cacher. A zero ttl keeps the value until Delete.
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// another caller may have filled it while we waited
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		v, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		if ttl <= 0 {
			ttl = cache.NoExpiration
		}
		c.cache.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return zero, err
	}

	v, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return v, nil
}

func (c *MemoryCacher[T]) lookup(key string) (T, bool) {
	if raw, found := c.cache.Get(key); found {
		if v, ok := raw.(T); ok {
			return v, true
		}
	}

	var zero T
	return zero, false
}

// Delete implements Cacher.
func (c *MemoryCacher[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// ItemCount implements Cacher. Expired but not yet purged items count.
func (c *MemoryCacher[T]) ItemCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.cache.ItemCount(), nil
}
