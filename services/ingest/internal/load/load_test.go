package load

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceScanner serves pre-built batches, optionally ending with a
// structural error.
type sliceScanner struct {
	batches [][]int
	pos     int
	err     error
}

func (s *sliceScanner) Scan() bool {
	if s.pos >= len(s.batches) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceScanner) Batch() []int { return s.batches[s.pos-1] }

func (s *sliceScanner) Err() error {
	if s.pos >= len(s.batches) {
		return s.err
	}
	return nil
}

func TestRunAllBatchesSucceed(t *testing.T) {
	src := &sliceScanner{batches: [][]int{{1, 2, 3}, {4, 5}}}
	upsert := func(ctx context.Context, batch []int) (int, error) {
		return len(batch), nil
	}

	res, err := Run[int](context.Background(), src, upsert, "test")
	require.NoError(t, err)

	assert.Equal(t, "test", res.Source)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Loaded)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.FailedBatches)
	assert.Empty(t, res.Errors)
	assert.NotZero(t, res.Duration)
}

func TestRunCountsConflictsAsSkipped(t *testing.T) {
	src := &sliceScanner{batches: [][]int{{1, 2, 3, 4}}}
	upsert := func(ctx context.Context, batch []int) (int, error) {
		return len(batch) - 1, nil // one row hit ON CONFLICT DO NOTHING
	}

	res, err := Run[int](context.Background(), src, upsert, "test")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Loaded)
	assert.Equal(t, 1, res.Skipped)
}

func TestRunIsolatesFailedBatches(t *testing.T) {
	src := &sliceScanner{batches: [][]int{{1, 2}, {3, 4}, {5, 6}}}
	calls := 0
	upsert := func(ctx context.Context, batch []int) (int, error) {
		calls++
		if calls == 2 {
			return 0, errors.New("deadlock detected")
		}
		return len(batch), nil
	}

	res, err := Run[int](context.Background(), src, upsert, "test")
	require.NoError(t, err)

	// The run continued past the failed batch.
	assert.Equal(t, 3, calls)
	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 4, res.Loaded)
	assert.Equal(t, 1, res.FailedBatches)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "batch 2")
	assert.Contains(t, res.Errors[0], "deadlock detected")
}

func TestRunSurfacesStructuralError(t *testing.T) {
	structural := errors.New("corrupt archive")
	src := &sliceScanner{batches: [][]int{{1, 2}}, err: structural}
	upsert := func(ctx context.Context, batch []int) (int, error) {
		return len(batch), nil
	}

	res, err := Run[int](context.Background(), src, upsert, "test")
	require.ErrorIs(t, err, structural)
	// Batches delivered before the error were still loaded.
	assert.Equal(t, 2, res.Loaded)
	assert.NotZero(t, res.Duration)
}

func TestRunReleasesSignalWatcher(t *testing.T) {
	upsert := func(ctx context.Context, batch []int) (int, error) {
		return len(batch), nil
	}

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		src := &sliceScanner{batches: [][]int{{1, 2}}}
		_, err := Run[int](context.Background(), src, upsert, "test")
		require.NoError(t, err)
	}

	// The watcher goroutine exits once Run returns; give the scheduler a
	// moment before counting.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := &sliceScanner{batches: [][]int{{1}, {2}, {3}}}
	calls := 0
	upsert := func(ctx context.Context, batch []int) (int, error) {
		calls++
		cancel() // cancel mid-run; checked at the next batch boundary
		return len(batch), nil
	}

	res, err := Run[int](ctx, src, upsert, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Loaded)
	assert.NotZero(t, res.Duration)
}
