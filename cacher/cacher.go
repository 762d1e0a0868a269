// Package cacher memoizes expensive lookups behind a read-through cache.
// Concurrent misses on the same key trigger a single fetch.
package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// FetchFunc produces the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher is a read-through cache.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, stores
	// its result for ttl and returns it.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: Time-to-live of a freshly fetched value
	//   - fetchFn: Called on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if the cache or the fetch fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// ItemCount returns the number of cached entries.
	ItemCount(ctx context.Context) (int, error)
}

// New returns the cacher named by backend. client is only used by the redis
// backend and keys are stored under prefix there.
func New[T any](backend string, client *redis.Client, prefix string) (Cacher[T], error) {
	switch backend {
	case BackendNone, "":
		return NopCacher[T]{}, nil
	case BackendMemory:
		return NewMemoryCacher[T](time.Minute), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("cacher: redis backend needs a client")
		}
		return NewRedisCacher[T](client, prefix), nil
	default:
		return nil, fmt.Errorf("cacher: unknown backend %q", backend)
	}
}

// NopCacher caches nothing; every call fetches.
type NopCacher[T any] struct{}

// GetOrFetch calls fetchFn.
func (NopCacher[T]) GetOrFetch(ctx context.Context, _ string, _ time.Duration, fetchFn FetchFunc[T]) (T, error) {
	return fetchFn(ctx)
}

// Delete does nothing.
func (NopCacher[T]) Delete(context.Context, string) error { return nil }

// ItemCount is always zero.
func (NopCacher[T]) ItemCount(context.Context) (int, error) { return 0, nil }
