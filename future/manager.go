// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package future

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Manager executes submitted callables on a bounded worker pool while
// honoring explicit dependency edges between futures.
//
// Waiting for dependencies does not occupy a worker slot; only running
// callables count against the bound.
type Manager struct {
	sem     *semaphore.Weighted
	workers int
	logger  *slog.Logger

	wg sync.WaitGroup
}

// ManagerOption is a functional option for configuring a [Manager].
type ManagerOption func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager with the given worker bound.
//
// A non-positive worker count is clamped to 1.
func NewManager(workers int, opts ...ManagerOption) *Manager {
	if workers < 1 {
		workers = 1
	}

	m := &Manager{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Workers returns the configured worker bound.
func (m *Manager) Workers() int {
	return m.workers
}

// Drain blocks until every future submitted so far is terminal.
//
// The context bounds the wait; on expiry the remaining futures keep running
// and the context error is returned.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	defaultOnce    sync.Once
	defaultManager *Manager
)

// Default returns the process-wide manager shared by resources that were not
// given an explicit one.
//
// The worker bound is the number of CPUs, with a floor of 4 so that purely
// IO-bound RPC fan-out is not throttled on small machines.
func Default() *Manager {
	defaultOnce.Do(func() {
		workers := runtime.NumCPU()
		if workers < 4 {
			workers = 4
		}
		defaultManager = NewManager(workers)
	})
	return defaultManager
}

// Submit registers fn to run once every dependency is terminal and a worker
// slot is free, and returns the future tracking its outcome.
//
// If any dependency ends in a failed or cancelled state, fn is never invoked
// and the returned future fails with a [DependencyError] whose cause is the
// dependency's own error. Cancelling the returned future while it is pending
// also prevents fn from running.
//
// ctx governs fn's execution; it is additionally cancelled when
// [Future.Cancel] is called on an already-running future.
func Submit[T any](m *Manager, ctx context.Context, name string, deps []Awaitable, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{
		name:            name,
		fn:              fn,
		deps:            deps,
		done:            make(chan struct{}),
		cancelRequested: make(chan struct{}),
		created:         time.Now(),
	}
	f.state.Store(int64(StatePending))

	m.wg.Add(1)
	go run(m, ctx, f)

	return f
}

// run drives a single future through its lifecycle: dependency wait, worker
// slot acquisition, execution, terminal-state classification.
func run[T any](m *Manager, ctx context.Context, f *Future[T]) {
	defer m.wg.Done()

	var zero T

	// Derive a context that is additionally torn down by Cancel, so both the
	// dependency wait and the callable observe cancellation requests.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-f.cancelRequested:
			stop()
		case <-runCtx.Done():
		}
	}()

	for _, dep := range f.deps {
		select {
		case <-dep.DoneChan():
		case <-runCtx.Done():
			f.finish(cancelState(f, ctx), zero, cancelErr(f, ctx))
			return
		}

		if s := dep.State(); s == StateFailed || s == StateCancelled {
			err := &DependencyError{Op: f.name, Dep: dep.Name(), Cause: dep.Err()}
			m.logger.Warn("future dependency failed",
				slog.String("operation", f.name),
				slog.String("dependency", dep.Name()),
				slog.String("error", err.Cause.Error()),
			)
			f.finish(StateFailed, zero, err)
			return
		}
	}

	if err := m.sem.Acquire(runCtx, 1); err != nil {
		f.finish(cancelState(f, ctx), zero, cancelErr(f, ctx))
		return
	}
	defer m.sem.Release(1)

	// Last pre-flight check: a cancel that raced the slot acquisition still
	// prevents the callable from running.
	select {
	case <-f.cancelRequested:
		f.finish(StateCancelled, zero, &CancelledError{Op: f.name})
		return
	default:
	}

	f.mu.Lock()
	f.started = time.Now()
	f.cancelRun = stop
	f.mu.Unlock()
	f.state.Store(int64(StateRunning))

	result, err := f.fn(runCtx)
	switch {
	case err == nil:
		f.finish(StateDone, result, nil)
	case isCancellation(err):
		f.finish(StateCancelled, zero, &CancelledError{Op: f.name})
	default:
		f.finish(StateFailed, zero, err)
	}
}

// cancelState distinguishes an explicit Cancel from submission-context expiry
// for a future that never ran.
func cancelState[T any](f *Future[T], ctx context.Context) State {
	select {
	case <-f.cancelRequested:
		return StateCancelled
	default:
	}
	if ctx.Err() != nil {
		return StateFailed
	}
	return StateCancelled
}

func cancelErr[T any](f *Future[T], ctx context.Context) error {
	select {
	case <-f.cancelRequested:
		return &CancelledError{Op: f.name}
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return &CancelledError{Op: f.name}
}

// isCancellation reports whether err is a cooperative cancellation outcome
// rather than a genuine failure.
func isCancellation(err error) bool {
	var cancelled *CancelledError
	return errors.Is(err, context.Canceled) || errors.As(err, &cancelled)
}
