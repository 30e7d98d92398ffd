package util

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var (
	ErrProcessStopped   = fmt.Errorf("worker process has stopped")
	ErrContextCancelled = fmt.Errorf("worker context cancelled")
)

type WorkItemResult[T any] struct {
	Worker string
	Data   T
	Err    error
	Time   time.Duration
}

type WorkItem[T any] func(context.Context) (T, error)

type worker[T any] struct {
	Name  string
	Queue chan *worker[T]
}

func (w *worker[T]) Do(ctx context.Context, r func(WorkItemResult[T]), wrk WorkItem[T]) {
	start := time.Now()

	var data T
	var err error

	if ctx.Err() != nil {
		err = ctx.Err()
	} else {
		data, err = wrk(ctx)
	}

	r(WorkItemResult[T]{
		Worker: w.Name,
		Data:   data,
		Err:    err,
		Time:   time.Since(start),
	})

	// put itself back on the queue when done
	select {
	case w.Queue <- w:
	default:
	}
}

// WorkerGroup runs batches of work items on a bounded set of workers.
// Results of a batch come back in the order the items were given.
type WorkerGroup[T any] struct {
	workers chan *worker[T]

	mu      sync.Mutex
	stopped bool
	running sync.WaitGroup
}

func NewWorkerGroup[T any](workers int) *WorkerGroup[T] {
	if workers < 1 {
		workers = 1
	}

	wg := &WorkerGroup[T]{
		workers: make(chan *worker[T], workers),
	}

	for idx := 0; idx < workers; idx++ {
		wg.workers <- &worker[T]{
			Name:  fmt.Sprintf("worker-%d", idx+1),
			Queue: wg.workers,
		}
	}

	return wg
}

// DoAll runs every item and blocks until all results are in. Items that
// could not be scheduled carry ErrContextCancelled or ErrProcessStopped.
func (wg *WorkerGroup[T]) DoAll(ctx context.Context, items []WorkItem[T]) []WorkItemResult[T] {
	results := make([]WorkItemResult[T], len(items))

	wg.mu.Lock()
	if wg.stopped {
		wg.mu.Unlock()

		for idx := range results {
			results[idx].Err = ErrProcessStopped
		}

		return results
	}
	wg.running.Add(1)
	wg.mu.Unlock()

	defer wg.running.Done()

	var batch sync.WaitGroup

	for idx, item := range items {
		var w *worker[T]

		select {
		case w = <-wg.workers:
		case <-ctx.Done():
			for rest := idx; rest < len(items); rest++ {
				results[rest].Err = ErrContextCancelled
			}

			batch.Wait()

			return results
		}

		batch.Add(1)

		go func(pos int, w *worker[T], item WorkItem[T]) {
			defer batch.Done()

			w.Do(ctx, func(result WorkItemResult[T]) {
				results[pos] = result
			}, item)
		}(idx, w, item)
	}

	batch.Wait()

	return results
}

// Stop rejects new batches and waits for running ones to finish.
func (wg *WorkerGroup[T]) Stop() {
	wg.mu.Lock()
	wg.stopped = true
	wg.mu.Unlock()

	wg.running.Wait()
}
