package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_Do(t *testing.T) {
	t.Run("result is handed to the callback", func(t *testing.T) {
		w := &worker[int]{Name: "worker", Queue: make(chan *worker[int], 1)}

		var result WorkItemResult[int]

		w.Do(context.Background(), func(item WorkItemResult[int]) { result = item }, func(_ context.Context) (int, error) {
			return 10, fmt.Errorf("error")
		})

		assert.Equal(t, 10, result.Data)
		assert.EqualError(t, result.Err, "error")
		assert.Equal(t, "worker", result.Worker)
		assert.Len(t, w.Queue, 1, "worker should return itself to the queue")
	})

	t.Run("cancelled context skips the item", func(t *testing.T) {
		// unbuffered so a blocked queue would hang the test
		w := &worker[int]{Name: "worker", Queue: make(chan *worker[int])}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var called bool
		var result WorkItemResult[int]

		w.Do(ctx, func(item WorkItemResult[int]) { result = item }, func(_ context.Context) (int, error) {
			called = true

			return 1, nil
		})

		assert.False(t, called)
		assert.ErrorIs(t, result.Err, context.Canceled)
	})
}

func TestWorkerGroup_DoAll(t *testing.T) {
	t.Run("results keep item order", func(t *testing.T) {
		wg := NewWorkerGroup[int](3)
		defer wg.Stop()

		items := make([]WorkItem[int], 20)
		for idx := range items {
			value := idx

			items[idx] = func(_ context.Context) (int, error) {
				// later items finish first
				time.Sleep(time.Duration(20-value) * 100 * time.Microsecond)

				return value * 2, nil
			}
		}

		results := wg.DoAll(context.Background(), items)

		require.Len(t, results, 20)
		for idx, result := range results {
			assert.NoError(t, result.Err)
			assert.Equal(t, idx*2, result.Data)
		}
	})

	t.Run("concurrency is bounded by the worker count", func(t *testing.T) {
		wg := NewWorkerGroup[int](2)
		defer wg.Stop()

		var active, peak atomic.Int32

		items := make([]WorkItem[int], 10)
		for idx := range items {
			items[idx] = func(_ context.Context) (int, error) {
				now := active.Add(1)
				for {
					old := peak.Load()
					if now <= old || peak.CompareAndSwap(old, now) {
						break
					}
				}

				time.Sleep(time.Millisecond)
				active.Add(-1)

				return 0, nil
			}
		}

		wg.DoAll(context.Background(), items)

		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("errors are returned per item", func(t *testing.T) {
		wg := NewWorkerGroup[string](0)
		defer wg.Stop()

		results := wg.DoAll(context.Background(), []WorkItem[string]{
			func(_ context.Context) (string, error) { return "ok", nil },
			func(_ context.Context) (string, error) { return "", fmt.Errorf("failed") },
		})

		assert.NoError(t, results[0].Err)
		assert.Equal(t, "ok", results[0].Data)
		assert.EqualError(t, results[1].Err, "failed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		wg := NewWorkerGroup[int](1)
		defer wg.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := wg.DoAll(ctx, []WorkItem[int]{
			func(_ context.Context) (int, error) { return 1, nil },
			func(_ context.Context) (int, error) { return 2, nil },
		})

		for _, result := range results {
			assert.Error(t, result.Err)
			assert.Zero(t, result.Data)
		}
	})

	t.Run("stopped group rejects batches", func(t *testing.T) {
		wg := NewWorkerGroup[int](1)
		wg.Stop()

		results := wg.DoAll(context.Background(), []WorkItem[int]{
			func(_ context.Context) (int, error) { return 1, nil },
		})

		assert.ErrorIs(t, results[0].Err, ErrProcessStopped)
	})
}
