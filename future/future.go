// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package future

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State represents the current state of a future.
type State int

const (
	// StatePending indicates the future has been submitted but its callable
	// has not started, either because dependencies are still in flight or
	// because no worker slot is free.
	StatePending State = iota
	// StateRunning indicates the callable is currently executing.
	StateRunning
	// StateDone indicates the callable completed successfully.
	StateDone
	// StateFailed indicates the callable returned an error, or a dependency
	// failed and the callable was never invoked.
	StateFailed
	// StateCancelled indicates the future was cancelled before running, or
	// the in-flight call observed cancellation.
	StateCancelled
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Awaitable is the type-erased view of a [Future] used for dependency edges.
//
// Err and State are only meaningful once the channel returned by DoneChan is
// closed.
type Awaitable interface {
	// DoneChan returns a channel that is closed when the future reaches a
	// terminal state.
	DoneChan() <-chan struct{}
	// Err returns the stored error, nil on success.
	Err() error
	// State returns the current state.
	State() State
	// Name returns the operation name the future was submitted under.
	Name() string
}

// Future represents the in-flight or completed outcome of a submitted
// callable.
type Future[T any] struct {
	mu sync.RWMutex

	// state is stored as int64 for atomic fast-path reads.
	state atomic.Int64

	name string
	fn   func(context.Context) (T, error)
	deps []Awaitable

	result T
	err    error

	// done is closed when the future reaches a terminal state.
	done chan struct{}
	// cancelRequested is closed by Cancel while the future is still pending.
	cancelRequested chan struct{}
	cancelOnce      sync.Once
	// cancelRun cancels the context handed to a running callable.
	cancelRun context.CancelFunc

	created  time.Time
	started  time.Time
	finished time.Time

	// callbacks registered via OnDone, drained once on finish.
	callbacks []func()
}

var _ Awaitable = (*Future[any])(nil)

// Name returns the operation name the future was submitted under.
func (f *Future[T]) Name() string {
	return f.name
}

// State returns the current state of the future.
func (f *Future[T]) State() State {
	return State(f.state.Load())
}

// Done reports whether the future has reached a terminal state.
func (f *Future[T]) Done() bool {
	return f.State().Terminal()
}

// Cancelled reports whether the future was cancelled.
func (f *Future[T]) Cancelled() bool {
	return f.State() == StateCancelled
}

// DoneChan implements [Awaitable].
func (f *Future[T]) DoneChan() <-chan struct{} {
	return f.done
}

// Err returns the stored error without blocking.
//
// The value is only meaningful once the future is terminal; before that it is
// always nil.
func (f *Future[T]) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// Cancel requests cancellation of the future.
//
// A pending future transitions directly to cancelled and its callable is
// never invoked. For a running future the callable's context is cancelled;
// the terminal state then reflects what the callable returns, so an RPC that
// completes despite the request still produces a done or failed future.
//
// Returns true if the cancellation request was accepted, false if the future
// was already terminal.
func (f *Future[T]) Cancel() bool {
	if f.Done() {
		return false
	}

	f.cancelOnce.Do(func() { close(f.cancelRequested) })

	f.mu.RLock()
	cancelRun := f.cancelRun
	f.mu.RUnlock()
	if cancelRun != nil {
		cancelRun()
	}
	return true
}

// Wait blocks until the future is terminal and returns the stored outcome.
//
// The context bounds the wait only; it does not cancel the future itself.
// Wait can be called any number of times and always returns the same result.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.result, f.err

	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome of the future without blocking.
//
// If the future is not yet terminal, an error is returned.
func (f *Future[T]) Result() (T, error) {
	var zero T
	if !f.Done() {
		return zero, errors.New("future is not yet done")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.result, f.err
}

// Created returns the time the future was submitted.
func (f *Future[T]) Created() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.created
}

// Started returns the time the callable started executing, or the zero time
// if it has not started.
func (f *Future[T]) Started() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.started
}

// Finished returns the time the future reached a terminal state, or the zero
// time if it has not.
func (f *Future[T]) Finished() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.finished
}

// OnDone registers fn to run after the future reaches a terminal state.
// Callbacks run in registration order on one goroutine; registering on an
// already-terminal future runs fn immediately on its own goroutine.
func (f *Future[T]) OnDone(fn func()) {
	f.mu.Lock()
	if State(f.state.Load()).Terminal() {
		f.mu.Unlock()
		go fn()
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// finish records the terminal outcome exactly once.
func (f *Future[T]) finish(state State, result T, err error) {
	f.mu.Lock()
	f.finished = time.Now()
	f.result = result
	f.err = err
	f.state.Store(int64(state))
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()
	close(f.done)

	if len(cbs) > 0 {
		go func() {
			for _, cb := range cbs {
				cb()
			}
		}()
	}
}

// Completed returns an already-terminal future holding result.
//
// It is used for resources constructed from an existing canonical name, whose
// creation "future" is vacuously done.
func Completed[T any](name string, result T) *Future[T] {
	f := &Future[T]{
		name:            name,
		done:            make(chan struct{}),
		cancelRequested: make(chan struct{}),
		created:         time.Now(),
	}
	f.mu.Lock()
	f.result = result
	f.finished = f.created
	f.state.Store(int64(StateDone))
	f.mu.Unlock()
	close(f.done)
	return f
}
