package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360/splice/metric"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
}

func TestNewPool_Defaults(t *testing.T) {
	processor := func(context.Context, testWork) error { return nil }

	pool := NewPool(5, 100, processor)
	if pool.workers != 5 || pool.queueSize != 100 {
		t.Errorf("unexpected sizes %d/%d", pool.workers, pool.queueSize)
	}

	pool = NewPool(0, 0, processor)
	if pool.workers != 4 {
		t.Errorf("expected default 4 workers, got %d", pool.workers)
	}
	if pool.queueSize != 64 {
		t.Errorf("expected default queue 64, got %d", pool.queueSize)
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected panic for nil processor")
		}
	}()
	NewPool[testWork](1, 1, nil)
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, testWork) error { return nil })
	if err := pool.Submit(testWork{}); !errors.Is(err, ErrPoolNotStarted) {
		t.Errorf("expected ErrPoolNotStarted, got %v", err)
	}
}

func TestPool_ProcessesAllWork(t *testing.T) {
	var processed atomic.Int64
	var wg sync.WaitGroup
	pool := NewPool(3, 20, func(_ context.Context, w testWork) error {
		defer wg.Done()
		processed.Add(1)
		if w.fail {
			return errors.New("failed")
		}
		return nil
	})

	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := pool.Start(ctx); !errors.Is(err, ErrPoolAlreadyStarted) {
		t.Errorf("expected ErrPoolAlreadyStarted, got %v", err)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := pool.Submit(testWork{id: i, fail: i%5 == 0}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	wg.Wait()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	stats := pool.Stats()
	if stats.Submitted != 10 || stats.Processed != 10 {
		t.Errorf("expected 10/10, got %d/%d", stats.Submitted, stats.Processed)
	}
	if stats.Failed != 2 {
		t.Errorf("expected 2 failures, got %d", stats.Failed)
	}
	if processed.Load() != 10 {
		t.Errorf("expected 10 processed, got %d", processed.Load())
	}
	if pool.Running() {
		t.Error("pool should not be running after stop")
	}
	if err := pool.Submit(testWork{}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		started <- struct{}{}
		<-release
		return nil
	})
	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := pool.Submit(testWork{id: 1}); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := pool.Submit(testWork{id: 2}); err != nil {
		t.Fatal(err)
	}
	if err := pool.Submit(testWork{id: 3}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if pool.Stats().Rejected != 1 {
		t.Errorf("expected 1 rejection, got %d", pool.Stats().Rejected)
	}

	close(release)
	if err := pool.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if pool.Stats().Processed != 2 {
		t.Errorf("queued work should drain on stop, processed %d", pool.Stats().Processed)
	}
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		<-release
		return nil
	})
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := pool.Submit(testWork{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("expected ErrStopTimeout, got %v", err)
	}
}

func TestPool_WithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var wg sync.WaitGroup
	pool := NewPool(2, 4, func(context.Context, testWork) error {
		wg.Done()
		return nil
	}, WithMetricsRegistry[testWork](registry, "test_pool"))

	if pool.metrics == nil {
		t.Fatal("expected metrics to be initialized")
	}
	ctx := context.Background()
	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}
	wg.Add(1)
	if err := pool.Submit(testWork{}); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	if err := pool.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
