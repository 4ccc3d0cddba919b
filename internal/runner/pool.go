package runner

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WorkerQueue bounds how many worker operations run at once across all
// pipelines. It implements executor.Limiter.
type WorkerQueue struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	active int
	peak   int
}

func NewWorkerQueue(n int) *WorkerQueue {
	if n < 1 {
		n = 1
	}
	return &WorkerQueue{sem: semaphore.NewWeighted(int64(n))}
}

// Do runs fn once a slot is free. A cancelled ctx gives up waiting.
func (q *WorkerQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return context.Cause(ctx)
	}
	defer q.sem.Release(1)

	q.mu.Lock()
	q.active++
	q.peak = max(q.peak, q.active)
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
	}()

	return fn(ctx)
}

// Active is the number of operations currently running.
func (q *WorkerQueue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Peak is the largest Active value seen.
func (q *WorkerQueue) Peak() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peak
}

// Concurrency resolves the outer and inner limits. Zero app means 80% of
// the CPUs; zero worker means half of app. Both are at least 1.
func Concurrency(app, worker, numCPU int) (int, int) {
	if app <= 0 {
		app = int(math.Floor(float64(numCPU) * 0.8))
	}
	app = max(app, 1)
	if worker <= 0 {
		worker = int(math.Floor(float64(app) * 0.5))
	}
	return app, max(worker, 1)
}
