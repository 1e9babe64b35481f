// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package future_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-a2a/aiplatform-go/future"
)

func TestFutureBasicLifecycle(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(2)

	f := future.Submit(m, ctx, "echo", nil, func(ctx context.Context) (string, error) {
		return "success", nil
	})

	result, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != "success" {
		t.Errorf("Wait() = %q, want %q", result, "success")
	}
	if !f.Done() {
		t.Error("future should be done after Wait")
	}
	if got := f.State(); got != future.StateDone {
		t.Errorf("State() = %v, want %v", got, future.StateDone)
	}

	// Wait is idempotent.
	again, err := f.Wait(ctx)
	if err != nil || again != "success" {
		t.Errorf("second Wait() = (%q, %v), want (%q, nil)", again, err, "success")
	}
}

func TestFutureError(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(1)
	boom := errors.New("permission denied")

	f := future.Submit(m, ctx, "create", nil, func(ctx context.Context) (int, error) {
		return 0, boom
	})

	if _, err := f.Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("Wait() error = %v, want %v", err, boom)
	}
	if got := f.State(); got != future.StateFailed {
		t.Errorf("State() = %v, want %v", got, future.StateFailed)
	}
}

func TestSubmitWaitsForDependencies(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(4)

	release := make(chan struct{})
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	a := future.Submit(m, ctx, "dataset.create", nil, func(ctx context.Context) (string, error) {
		<-release
		record("dataset.create")
		return "projects/p1/locations/us-central1/datasets/1", nil
	})
	b := future.Submit(m, ctx, "pipeline.create", []future.Awaitable{a}, func(ctx context.Context) (string, error) {
		record("pipeline.create")
		return "projects/p1/locations/us-central1/trainingPipelines/2", nil
	})

	// B must not run while A is blocked, even with free workers.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if len(order) != 0 {
		mu.Unlock()
		t.Fatalf("dependent future ran before dependency: %v", order)
	}
	mu.Unlock()

	close(release)
	if _, err := b.Wait(ctx); err != nil {
		t.Fatalf("dependent Wait() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "dataset.create" || order[1] != "pipeline.create" {
		t.Errorf("execution order = %v, want [dataset.create pipeline.create]", order)
	}
}

func TestDependencyFailurePropagates(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(2)
	cause := errors.New("permission denied")

	a := future.Submit(m, ctx, "dataset.create", nil, func(ctx context.Context) (string, error) {
		return "", cause
	})

	var invoked atomic.Bool
	b := future.Submit(m, ctx, "pipeline.create", []future.Awaitable{a}, func(ctx context.Context) (string, error) {
		invoked.Store(true)
		return "", nil
	})

	_, err := b.Wait(ctx)
	if err == nil {
		t.Fatal("dependent Wait() expected error")
	}

	var depErr *future.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("Wait() error = %T, want *DependencyError", err)
	}
	if depErr.Dep != "dataset.create" {
		t.Errorf("DependencyError.Dep = %q, want %q", depErr.Dep, "dataset.create")
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause chain lost: errors.Is(err, cause) = false, err = %v", err)
	}
	if invoked.Load() {
		t.Error("dependent callable ran despite failed dependency")
	}
}

func TestDependencyFailureChainsTransitively(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(2)
	cause := errors.New("not found")

	a := future.Submit(m, ctx, "a", nil, func(ctx context.Context) (int, error) { return 0, cause })
	b := future.Submit(m, ctx, "b", []future.Awaitable{a}, func(ctx context.Context) (int, error) { return 1, nil })
	c := future.Submit(m, ctx, "c", []future.Awaitable{b}, func(ctx context.Context) (int, error) { return 2, nil })

	_, err := c.Wait(ctx)
	if !errors.Is(err, cause) {
		t.Fatalf("transitive cause lost: Wait() error = %v, want chain to %v", err, cause)
	}
}

func TestCancelPendingFuture(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(2)

	release := make(chan struct{})
	defer close(release)
	a := future.Submit(m, ctx, "a", nil, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	var invoked atomic.Bool
	b := future.Submit(m, ctx, "b", []future.Awaitable{a}, func(ctx context.Context) (int, error) {
		invoked.Store(true)
		return 2, nil
	})

	if !b.Cancel() {
		t.Fatal("Cancel() on pending future = false, want true")
	}

	if _, err := b.Wait(ctx); err == nil {
		t.Fatal("cancelled Wait() expected error")
	}
	if b.State() != future.StateCancelled {
		t.Errorf("State() = %v, want %v", b.State(), future.StateCancelled)
	}
	if invoked.Load() {
		t.Error("cancelled callable should not run")
	}
}

func TestCancelledDependencyYieldsDependencyError(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(2)

	release := make(chan struct{})
	defer close(release)
	gate := future.Submit(m, ctx, "gate", nil, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})

	a := future.Submit(m, ctx, "endpoint.create", []future.Awaitable{gate}, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	a.Cancel()

	b := future.Submit(m, ctx, "endpoint.deploy", []future.Awaitable{a}, func(ctx context.Context) (int, error) {
		return 2, nil
	})

	_, err := b.Wait(ctx)
	var depErr *future.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("Wait() error = %T (%v), want *DependencyError", err, err)
	}
	var cancelled *future.CancelledError
	if !errors.As(err, &cancelled) {
		t.Errorf("DependencyError cause = %v, want *CancelledError in chain", depErr.Cause)
	}
}

func TestCancelRunningFutureIsCooperative(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(1)

	started := make(chan struct{})
	f := future.Submit(m, ctx, "slow", nil, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})

	<-started
	if !f.Cancel() {
		t.Fatal("Cancel() on running future = false, want true")
	}

	if _, err := f.Wait(ctx); err == nil {
		t.Fatal("Wait() expected cancellation error")
	}
	if f.State() != future.StateCancelled {
		t.Errorf("State() = %v, want %v", f.State(), future.StateCancelled)
	}
}

func TestCancelRunningFutureThatCompletesAnyway(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(1)

	started := make(chan struct{})
	finish := make(chan struct{})
	f := future.Submit(m, ctx, "stubborn", nil, func(ctx context.Context) (string, error) {
		close(started)
		// Ignores the cancellation request, as an RPC that already hit the
		// server would.
		<-finish
		return "committed", nil
	})

	<-started
	f.Cancel()
	close(finish)

	result, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != "committed" {
		t.Errorf("Wait() = %q, want %q", result, "committed")
	}
	if f.State() != future.StateDone {
		t.Errorf("State() = %v, want %v; terminal state must reflect the call outcome", f.State(), future.StateDone)
	}
}

func TestCancelTerminalFutureRejected(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(1)

	f := future.Submit(m, ctx, "quick", nil, func(ctx context.Context) (int, error) { return 1, nil })
	if _, err := f.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if f.Cancel() {
		t.Error("Cancel() on terminal future = true, want false")
	}
}

func TestManagerBoundsConcurrency(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	const workers = 2
	m := future.NewManager(workers)

	var running, peak atomic.Int64
	var futures []*future.Future[int]
	for range 8 {
		f := future.Submit(m, ctx, "work", nil, func(ctx context.Context) (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return 0, nil
		})
		futures = append(futures, f)
	}

	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got := peak.Load(); got > workers {
		t.Errorf("peak concurrency = %d, want <= %d", got, workers)
	}
}

func TestManagerDrain(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	m := future.NewManager(4)

	var done atomic.Int64
	for range 5 {
		future.Submit(m, ctx, "work", nil, func(ctx context.Context) (int, error) {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return 0, nil
		})
	}

	if err := m.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if done.Load() != 5 {
		t.Errorf("Drain() returned before all futures finished: %d/5", done.Load())
	}
}

func TestCompleted(t *testing.T) {
	t.Parallel()

	f := future.Completed("existing", "projects/p1/locations/us-central1/datasets/9")
	if !f.Done() {
		t.Fatal("Completed() future should be terminal")
	}
	result, err := f.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if want := "projects/p1/locations/us-central1/datasets/9"; result != want {
		t.Errorf("Result() = %q, want %q", result, want)
	}
}

func TestWorkerFloorIsOne(t *testing.T) {
	t.Parallel()

	m := future.NewManager(0)
	if got := m.Workers(); got != 1 {
		t.Errorf("Workers() = %d, want 1", got)
	}
}
