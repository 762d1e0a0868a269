package kvstore

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "foo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "foo", "bar"))
	require.NoError(t, s.Set(ctx, "foo", "baz"))
	require.NoError(t, s.Set(ctx, "", "empty key"))

	v, ok, err := s.Get(ctx, "foo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "baz", v)

	v, ok, _ = s.Get(ctx, "")
	assert.True(t, ok)
	assert.Equal(t, "empty key", v)
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, "k", "v"))
			_, _, err := s.Get(ctx, "k")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestNew(t *testing.T) {
	s, err := New(BackendMemory, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(BackendRedis, nil, "")
	assert.Error(t, err)

	_, err = New("etcd", nil, "")
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	s, err = New(BackendRedis, client, "kvdb:")
	require.NoError(t, err)

	_, _, err = s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, s.Set(context.Background(), "k", "v"))
}
