package workers

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		name            string
		numWorkers      int
		expectedWorkers int
	}{
		{"positive workers", 5, 5},
		{"zero workers defaults to 10", 0, 10},
		{"negative workers defaults to 10", -1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.numWorkers)
			assert.Equal(t, tt.expectedWorkers, pool.Size())
		})
	}
}

func TestMap_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	results, err := Map(context.Background(), pool, []int(nil), func(i int) int { return i }, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMap_PreservesOrder(t *testing.T) {
	pool := NewWorkerPool(4)
	items := make([]int, 200)
	for i := range items {
		items[i] = i
	}

	var calls []int
	results, err := Map(context.Background(), pool, items, func(i int) int { return i * i }, func(current, total int) {
		calls = append(calls, current)
		assert.Equal(t, 200, total)
	})
	require.NoError(t, err)

	require.Len(t, results, 200)
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
	assert.Len(t, calls, 200, "progress should be called for each completed item")
	assert.Equal(t, 200, calls[len(calls)-1])
}

func TestMap_MoreWorkersThanItems(t *testing.T) {
	pool := NewWorkerPool(50)
	var running int32
	results, err := Map(context.Background(), pool, []string{"a", "b"}, func(s string) string {
		atomic.AddInt32(&running, 1)
		return s + s
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, results)
	assert.Equal(t, int32(2), atomic.LoadInt32(&running))
}

func TestMap_Cancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	results, err := Map(ctx, pool, []int{1, 2, 3}, func(i int) int {
		atomic.AddInt32(&calls, 1)
		return i
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 3)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
