package cacher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v bool, calls *int32) FetchFunc[bool] {
	return func(context.Context) (bool, error) {
		atomic.AddInt32(calls, 1)
		return v, nil
	}
}

func TestMemoryCacher_GetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("miss then hit", func(t *testing.T) {
		c := NewMemoryCacher[bool](time.Minute)
		var calls int32

		v, err := c.GetOrFetch(ctx, "7", time.Minute, constant(true, &calls))
		require.NoError(t, err)
		assert.True(t, v)

		v, err = c.GetOrFetch(ctx, "7", time.Minute, constant(false, &calls))
		require.NoError(t, err)
		assert.True(t, v)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		c := NewMemoryCacher[bool](time.Minute)

		_, err := c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (bool, error) {
			return false, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		n, err := c.ItemCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("expired values are fetched again", func(t *testing.T) {
		c := NewMemoryCacher[bool](time.Minute)
		var calls int32

		_, err := c.GetOrFetch(ctx, "k", 10*time.Millisecond, constant(true, &calls))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)

		_, err = c.GetOrFetch(ctx, "k", 10*time.Millisecond, constant(true, &calls))
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		c := NewMemoryCacher[bool](time.Minute)
		var calls int32

		_, err := c.GetOrFetch(ctx, "k", 0, constant(true, &calls))
		require.NoError(t, err)
		_, err = c.GetOrFetch(ctx, "k", 0, constant(true, &calls))
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("concurrent misses fetch once", func(t *testing.T) {
		c := NewMemoryCacher[bool](time.Minute)
		var calls int32
		slow := func(context.Context) (bool, error) {
			atomic.AddInt32(&calls, 1)
			time.Sleep(20 * time.Millisecond)
			return true, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.GetOrFetch(ctx, "same", time.Minute, slow)
				assert.NoError(t, err)
				assert.True(t, v)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), calls)
	})
}

func TestMemoryCacher_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCacher[bool](time.Minute)
	var calls int32

	_, err := c.GetOrFetch(ctx, "k", time.Minute, constant(true, &calls))
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "missing"))

	n, err := c.ItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, c.Delete(cancelled, "k"), context.Canceled)
	_, err = c.ItemCount(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNopCacher(t *testing.T) {
	ctx := context.Background()
	var c Cacher[bool] = NopCacher[bool]{}
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := c.GetOrFetch(ctx, "k", time.Minute, constant(true, &calls))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls)
	assert.NoError(t, c.Delete(ctx, "k"))

	n, err := c.ItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNew(t *testing.T) {
	c, err := New[bool](BackendNone, nil, "")
	require.NoError(t, err)
	assert.IsType(t, NopCacher[bool]{}, c)

	c, err = New[bool](BackendMemory, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCacher[bool]{}, c)

	_, err = New[bool](BackendRedis, nil, "p:")
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	c, err = New[bool](BackendRedis, client, "p:")
	require.NoError(t, err)
	assert.IsType(t, &RedisCacher[bool]{}, c)

	_, err = New[bool]("disk", nil, "")
	assert.Error(t, err)
}

func TestRedisCacher_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	var calls int32
	c := NewRedisCacher[bool](client, "primetime:")
	_, err := c.GetOrFetch(context.Background(), "7", time.Minute, constant(true, &calls))
	assert.Error(t, err)
	assert.Equal(t, int32(0), calls)
}
