package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAlignsResultsWithInputs(t *testing.T) {
	inputs := []int{1, 2, 3, 4, 5}

	results := Settle(context.Background(), 2, inputs, func(_ context.Context, n int) (int, error) {
		return n * 10, nil
	})

	require.Len(t, results, len(inputs))
	for i, res := range results {
		assert.NoError(t, res.Err)
		assert.Equal(t, inputs[i]*10, res.Value)
	}
}

func TestSettleIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")

	results := Settle(context.Background(), 3, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, boom
		}
		return n, nil
	})

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
}

func TestSettleRecoversPanics(t *testing.T) {
	results := Settle(context.Background(), 2, []int{1, 2}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			panic("unexpected")
		}
		return n, nil
	})

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.Contains(t, results[1].Err.Error(), "unexpected")
}

func TestSettleRespectsConcurrencyBound(t *testing.T) {
	const bound = 5

	var (
		mu      sync.Mutex
		active  int
		highest int
	)

	inputs := make([]int, 20)
	Settle(context.Background(), bound, inputs, func(_ context.Context, _ int) (struct{}, error) {
		mu.Lock()
		active++
		if active > highest {
			highest = active
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, highest, bound)
	assert.Greater(t, highest, 1, "work should actually overlap")
}

func TestSettleCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Settle(ctx, 1, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, ctx.Err()
	})

	for i, res := range results {
		assert.Error(t, res.Err, fmt.Sprintf("input %d", i))
	}
}

func TestSettleEmptyInput(t *testing.T) {
	results := Settle(context.Background(), 3, nil, func(_ context.Context, _ int) (int, error) {
		return 0, nil
	})
	assert.Nil(t, results)
}
