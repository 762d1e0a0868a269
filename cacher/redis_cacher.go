package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL     = 10 * time.Second
	waitTimeout = 10 * time.Second
)

// releaseLock deletes the lock only while we still own it.
var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCacher stores JSON-encoded values in Redis under a key prefix. A miss
// takes a SETNX lock so that only one process fetches; the others poll for
// the result with exponential backoff.
type RedisCacher[T any] struct {
	client *redis.Client
	prefix string
}

// NewRedisCacher returns a cacher storing keys as prefix+key.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	primes := NewRedisCacher[bool](client, "primetime:")
func NewRedisCacher[T any](client *redis.Client, prefix string) *RedisCacher[T] {
	return &RedisCacher[T]{client: client, prefix: prefix}
}

// GetOrFetch implements Cacher.
func (c *RedisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	key = c.prefix + key

	v, found, err := c.get(ctx, key)
	if err != nil || found {
		return v, err
	}

	lockKey := key + ":lock"
	token := strconv.FormatInt(time.Now().UnixNano(), 10)
	acquired, err := c.client.SetNX(ctx, lockKey, token, lockTTL).Result()
	if err != nil {
		return zero, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		return c.wait(ctx, key, lockKey)
	}
	defer releaseLock.Run(context.Background(), c.client, []string{lockKey}, token)

	v, err = fetchFn(ctx)
	if err != nil {
		return zero, fmt.Errorf("fetch function failed: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return zero, fmt.Errorf("failed to cache result: %w", err)
	}

	return v, nil
}

func (c *RedisCacher[T]) get(ctx context.Context, key string) (T, bool, error) {
	var v T

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return v, true, nil
}

// wait polls for the value another caller is fetching. It gives up when the
// lock disappears without a value or after waitTimeout.
func (c *RedisCacher[T]) wait(ctx context.Context, key, lockKey string) (T, error) {
	var zero T

	b := &backoff.Backoff{Min: 10 * time.Millisecond, Max: 500 * time.Millisecond}
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		v, found, err := c.get(ctx, key)
		if err != nil || found {
			return v, err
		}

		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return zero, fmt.Errorf("failed to check lock existence: %w", err)
		}
		if exists == 0 {
			if v, found, err := c.get(ctx, key); err != nil || found {
				return v, err
			}
			return zero, errors.New("fetch operation failed or cache not populated")
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}

	return zero, errors.New("timeout waiting for cache")
}

// Delete implements Cacher.
func (c *RedisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// ItemCount implements Cacher by scanning the prefix.
func (c *RedisCacher[T]) ItemCount(ctx context.Context) (int, error) {
	n := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if !strings.HasSuffix(iter.Val(), ":lock") {
			n++
		}
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan keys: %w", err)
	}

	return n, nil
}
