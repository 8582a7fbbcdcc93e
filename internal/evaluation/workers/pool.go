// Package workers runs pure per-item computations on a bounded set of goroutines.
package workers

import (
	"context"
	"sync"
)

// DefaultWorkers is used when a pool is created with a non-positive size.
const DefaultWorkers = 10

// ProgressCallback is invoked once per completed item. Calls are serialized.
type ProgressCallback func(current, total int)

// WorkerPool manages a pool of worker goroutines for parallel candidate evaluation
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Map applies fn to every item on the pool and returns the results in input order.
//
// fn must be safe to call concurrently. When ctx is cancelled, queued items
// are skipped and their results are left as the zero value; the returned
// error is ctx.Err().
func Map[T, R any](ctx context.Context, wp *WorkerPool, items []T, fn func(T) R, progress ProgressCallback) ([]R, error) {
	n := len(items)
	if n == 0 {
		return []R{}, nil
	}

	jobs := make(chan jobItem[T], n)
	results := make(chan resultItem[R], n)

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n
	}
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- resultItem[R]{index: job.index, value: fn(job.item)}
			}
		}()
	}

	for idx, item := range items {
		jobs <- jobItem[T]{index: idx, item: item}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, n)
	done := 0
	for r := range results {
		out[r.index] = r.value
		done++
		if progress != nil {
			progress(done, n)
		}
	}
	return out, ctx.Err()
}

// jobItem is one queued input
type jobItem[T any] struct {
	index int
	item  T
}

// resultItem carries a result back with its input position
type resultItem[R any] struct {
	index int
	value R
}
