package fgpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTaskRunsAndWaitBlocksUntilDone(t *testing.T) {
	p := New(context.Background(), 4)
	var counter atomic.Int32
	for i := 0; i < 20; i++ {
		p.AddTask(context.Background(), func(ctx context.Context) error {
			counter.Add(1)
			return nil
		})
	}
	require.NoError(t, p.Wait())
	assert.Equal(t, int32(20), counter.Load())
}

func TestAddSequenceTaskCoversEveryIndex(t *testing.T) {
	p := New(context.Background(), 4)
	seen := make([]atomic.Bool, 10)
	p.AddSequenceTask(context.Background(), 0, 10, func(ctx context.Context, i int) error {
		seen[i].Store(true)
		return nil
	})
	require.NoError(t, p.Wait())
	for i := range seen {
		assert.True(t, seen[i].Load(), "index %d not visited", i)
	}
}

func TestAddBlocksTaskPartitionsWithoutGapOrOverlap(t *testing.T) {
	p := New(context.Background(), 3)
	var total atomic.Int64
	p.AddBlocksTask(context.Background(), 0, 97, 5, func(ctx context.Context, lo, hi int) error {
		total.Add(int64(hi - lo))
		return nil
	})
	require.NoError(t, p.Wait())
	assert.Equal(t, int64(97), total.Load())
}

func TestAddLoopTaskVisitsEveryIndexOnce(t *testing.T) {
	p := New(context.Background(), 3)
	var counters [50]atomic.Int32
	p.AddLoopTask(context.Background(), 0, 50, 0, func(ctx context.Context, i int) error {
		counters[i].Add(1)
		return nil
	})
	require.NoError(t, p.Wait())
	for i := range counters {
		assert.Equal(t, int32(1), counters[i].Load(), "index %d", i)
	}
}

func TestWaitAggregatesErrors(t *testing.T) {
	p := New(context.Background(), 2)
	p.AddTask(context.Background(), func(ctx context.Context) error { return errors.New("boom1") })
	p.AddTask(context.Background(), func(ctx context.Context) error { return errors.New("boom2") })
	err := p.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom1")
	assert.Contains(t, err.Error(), "boom2")
}

func TestPanickingTaskIsRecoveredAsError(t *testing.T) {
	p := New(context.Background(), 1)
	p.AddTask(context.Background(), func(ctx context.Context) error {
		panic("kaboom")
	})
	err := p.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestWaitResetsErrorsForNextRound(t *testing.T) {
	p := New(context.Background(), 1)
	p.AddTask(context.Background(), func(ctx context.Context) error { return errors.New("first") })
	require.Error(t, p.Wait())

	p.AddTask(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, p.Wait())
}
