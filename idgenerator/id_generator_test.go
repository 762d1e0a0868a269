package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("returns non-nil generator", func(t *testing.T) {
		require.NotNil(t, NewIdGenerator(0))
	})

	t.Run("first Id is startValue+1", func(t *testing.T) {
		assert.Equal(t, uint64(1), NewIdGenerator(0).Id())
		assert.Equal(t, uint64(101), NewIdGenerator(100).Id())
	})

	t.Run("wraps at max uint64", func(t *testing.T) {
		assert.Equal(t, uint64(0), NewIdGenerator(^uint64(0)).Id())
	})
}

func TestIdGenerator_Last(t *testing.T) {
	gen := NewIdGenerator(10)
	assert.Equal(t, uint64(10), gen.Last())

	gen.Id()
	gen.Id()
	assert.Equal(t, uint64(12), gen.Last())
}

func TestIdGenerator_Id_sequential(t *testing.T) {
	gen := NewIdGenerator(0)
	for want := uint64(1); want <= 10; want++ {
		assert.Equal(t, want, gen.Id())
	}
}

func TestIdGenerator_Id_concurrent(t *testing.T) {
	gen := NewIdGenerator(0)
	const n = 500
	ids := make([]uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Id()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.GreaterOrEqual(t, id, uint64(1))
		assert.LessOrEqual(t, id, uint64(n))
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
