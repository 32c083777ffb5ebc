package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(2, 10, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		pool.Submit(i)
	}

	cancel()
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(4, 100, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pool.Submit(n)
		}(i)
	}
	wg.Wait()

	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_DrainsQueueAfterCancel(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job string) error {
		time.Sleep(time.Millisecond) // Simulate work
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(2, 50, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit("job")
	}

	// Cancel immediately
	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	if processed.Load() != 20 {
		t.Errorf("expected all 20 queued jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_ProcessorErrorDoesNotStopWorker(t *testing.T) {
	var calls atomic.Int64
	processor := func(ctx context.Context, job int) error {
		calls.Add(1)
		if job%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}

	pool := NewWorkerPool(1, 10, processor)
	pool.Start(context.Background())

	for i := 0; i < 6; i++ {
		pool.Submit(i)
	}
	pool.Stop()

	if calls.Load() != 6 {
		t.Errorf("expected 6 calls, got %d", calls.Load())
	}
}

func TestWorkerPool_ContextVisibleToProcessor(t *testing.T) {
	var sawCancel atomic.Bool
	release := make(chan struct{})

	processor := func(ctx context.Context, job int) error {
		<-release
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return nil
	}

	pool := NewWorkerPool(1, 1, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	pool.Submit(1)

	cancel()
	close(release)
	pool.Stop()

	if !sawCancel.Load() {
		t.Error("expected processor to observe cancelled context")
	}
}
