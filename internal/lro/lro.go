// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package lro adapts the service's long-running-operation protocol to the
// SDK's future abstraction.
//
// Every resource package funnels its generated operation wrappers through
// [Wait] or [WaitEmpty]; no resource implements its own polling loop. The
// poll cadence is a bounded exponential backoff, and transient RPC errors are
// retried until the context's budget runs out while permanent errors fail
// immediately.
package lro

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/go-a2a/aiplatform-go/pkg/logging"
)

// Poller is the subset of a generated operation wrapper the adapter needs.
// Poll returns the zero value until the operation is done.
type Poller[T any] interface {
	Poll(ctx context.Context, opts ...gax.CallOption) (T, error)
	Done() bool
	Name() string
}

// EmptyPoller is the analogue of [Poller] for operations with an empty
// terminal response, such as deletions.
type EmptyPoller interface {
	Poll(ctx context.Context, opts ...gax.CallOption) error
	Done() bool
	Name() string
}

// Options control the polling cadence.
type Options struct {
	// Initial is the first poll interval. Defaults to 1s.
	Initial time.Duration
	// Max caps the interval growth. Defaults to 60s.
	Max time.Duration
	// Multiplier grows the interval after each poll. Defaults to 1.5.
	Multiplier float64
	// Timeout bounds the whole wait. Zero means the ctx deadline alone
	// applies.
	Timeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for [Wait] and [WaitEmpty].
type Option func(*Options)

// WithPollInterval sets the initial poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.Initial = d
	}
}

// WithMaxPollInterval caps the backoff growth.
func WithMaxPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.Max = d
	}
}

// WithTimeout bounds the total wait.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func buildOptions(ctx context.Context, opts []Option) Options {
	o := Options{
		Initial:    time.Second,
		Max:        60 * time.Second,
		Multiplier: 1.5,
		Logger:     logging.FromContext(ctx),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// retryable reports whether err is a transient condition worth polling
// through.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

// Wait polls op until it reports a terminal state and returns the decoded
// response.
func Wait[T any](ctx context.Context, op Poller[T], opts ...Option) (T, error) {
	var zero T
	o := buildOptions(ctx, opts)

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	backoff := gax.Backoff{Initial: o.Initial, Max: o.Max, Multiplier: o.Multiplier}
	for {
		resp, err := op.Poll(ctx)
		switch {
		case err == nil:
			if op.Done() {
				return resp, nil
			}
		case retryable(err):
			o.Logger.DebugContext(ctx, "transient poll error, retrying",
				slog.String("operation", op.Name()),
				slog.String("error", err.Error()),
			)
		default:
			return zero, fmt.Errorf("operation %q failed: %w", op.Name(), err)
		}

		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return zero, fmt.Errorf("waiting for operation %q: %w", op.Name(), err)
		}
	}
}

// WaitEmpty polls op until it reports a terminal state.
func WaitEmpty(ctx context.Context, op EmptyPoller, opts ...Option) error {
	o := buildOptions(ctx, opts)

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	backoff := gax.Backoff{Initial: o.Initial, Max: o.Max, Multiplier: o.Multiplier}
	for {
		err := op.Poll(ctx)
		switch {
		case err == nil:
			if op.Done() {
				return nil
			}
		case retryable(err):
			o.Logger.DebugContext(ctx, "transient poll error, retrying",
				slog.String("operation", op.Name()),
				slog.String("error", err.Error()),
			)
		default:
			return fmt.Errorf("operation %q failed: %w", op.Name(), err)
		}

		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return fmt.Errorf("waiting for operation %q: %w", op.Name(), err)
		}
	}
}

// PollUntil repeatedly invokes probe until it reports done, with the same
// backoff and retry classification as [Wait]. It serves resources whose
// progress is exposed as a state field on the resource body rather than as an
// operation, such as training pipelines and custom jobs.
func PollUntil[T any](ctx context.Context, name string, probe func(context.Context) (T, bool, error), opts ...Option) (T, error) {
	var zero T
	o := buildOptions(ctx, opts)

	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	backoff := gax.Backoff{Initial: o.Initial, Max: o.Max, Multiplier: o.Multiplier}
	for {
		resp, done, err := probe(ctx)
		switch {
		case err == nil:
			if done {
				return resp, nil
			}
		case retryable(err):
			o.Logger.DebugContext(ctx, "transient poll error, retrying",
				slog.String("operation", name),
				slog.String("error", err.Error()),
			)
		default:
			return zero, fmt.Errorf("operation %q failed: %w", name, err)
		}

		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return zero, fmt.Errorf("waiting for operation %q: %w", name, err)
		}
	}
}
