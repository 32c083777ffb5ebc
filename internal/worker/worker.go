package worker

import (
	"context"
	"log/slog"
	"sync"
)

type ProcessFunc[T any] func(ctx context.Context, job T) error

// WorkerPool runs a fixed number of workers over a buffered job queue.
type WorkerPool[T any] struct {
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	wg         sync.WaitGroup
}

func NewWorkerPool[T any](numWorkers int, bufferSize int, processor ProcessFunc[T]) *WorkerPool[T] {
	return &WorkerPool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
	}
}

func (wp *WorkerPool[T]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// worker keeps draining after ctx is cancelled so queued jobs are not lost;
// it exits once Stop closes the queue.
func (wp *WorkerPool[T]) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		if err := wp.processor(ctx, job); err != nil {
			slog.Error("job failed", "worker", id, "error", err)
		}
	}
}

func (wp *WorkerPool[T]) Submit(job T) {
	wp.jobs <- job
}

// Stop closes the queue and waits for every queued job to finish.
func (wp *WorkerPool[T]) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
}
