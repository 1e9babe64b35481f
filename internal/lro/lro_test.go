// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package lro

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeOp is a scripted Poller: each Poll consumes the next step.
type fakeOp struct {
	steps []fakeStep
	polls int
	done  bool
}

type fakeStep struct {
	resp string
	err  error
	done bool
}

func (f *fakeOp) Poll(ctx context.Context, opts ...gax.CallOption) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	step := f.steps[min(f.polls, len(f.steps)-1)]
	f.polls++
	f.done = step.done
	return step.resp, step.err
}

func (f *fakeOp) Done() bool { return f.done }
func (f *fakeOp) Name() string { return "operations/fake-123" }

func fastOpts() []Option {
	return []Option{WithPollInterval(time.Millisecond), WithMaxPollInterval(2 * time.Millisecond)}
}

func TestWaitPollsUntilDone(t *testing.T) {
	t.Parallel()

	op := &fakeOp{steps: []fakeStep{
		{},
		{},
		{resp: "projects/p/locations/l/datasets/1", done: true},
	}}

	resp, err := Wait[string](t.Context(), op, fastOpts()...)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if want := "projects/p/locations/l/datasets/1"; resp != want {
		t.Errorf("Wait() = %q, want %q", resp, want)
	}
	if op.polls != 3 {
		t.Errorf("polls = %d, want 3", op.polls)
	}
}

func TestWaitRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	op := &fakeOp{steps: []fakeStep{
		{err: status.Error(codes.Unavailable, "try again")},
		{err: status.Error(codes.DeadlineExceeded, "slow")},
		{err: status.Error(codes.Aborted, "conflict")},
		{resp: "ok", done: true},
	}}

	resp, err := Wait[string](t.Context(), op, fastOpts()...)
	if err != nil {
		t.Fatalf("Wait() error = %v, want retries through transient codes", err)
	}
	if resp != "ok" {
		t.Errorf("Wait() = %q, want %q", resp, "ok")
	}
}

func TestWaitFailsFastOnPermanentError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code codes.Code
	}{
		{name: "permission denied", code: codes.PermissionDenied},
		{name: "invalid argument", code: codes.InvalidArgument},
		{name: "failed precondition", code: codes.FailedPrecondition},
		{name: "not found", code: codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			op := &fakeOp{steps: []fakeStep{
				{err: status.Error(tt.code, "nope")},
				{resp: "never", done: true},
			}}

			_, err := Wait[string](t.Context(), op, fastOpts()...)
			if err == nil {
				t.Fatal("Wait() expected error")
			}
			if got := status.Code(err); got != tt.code {
				t.Errorf("status code = %v, want %v", got, tt.code)
			}
			if op.polls != 1 {
				t.Errorf("polls = %d, want 1 (no retry on permanent errors)", op.polls)
			}
			if !strings.Contains(err.Error(), "operations/fake-123") {
				t.Errorf("error %q does not name the operation", err)
			}
		})
	}
}

func TestWaitHonorsTimeout(t *testing.T) {
	t.Parallel()

	op := &fakeOp{steps: []fakeStep{{}}} // never done

	start := time.Now()
	_, err := Wait[string](t.Context(), op,
		WithPollInterval(5*time.Millisecond),
		WithTimeout(25*time.Millisecond),
	)
	if err == nil {
		t.Fatal("Wait() expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Wait() blocked %v past its budget", elapsed)
	}
}

type fakeEmptyOp struct {
	remaining int
	done      bool
}

func (f *fakeEmptyOp) Poll(ctx context.Context, opts ...gax.CallOption) error {
	if f.remaining > 0 {
		f.remaining--
		return nil
	}
	f.done = true
	return nil
}

func (f *fakeEmptyOp) Done() bool { return f.done }
func (f *fakeEmptyOp) Name() string { return "operations/delete-7" }

func TestWaitEmpty(t *testing.T) {
	t.Parallel()

	op := &fakeEmptyOp{remaining: 2}
	if err := WaitEmpty(t.Context(), op, fastOpts()...); err != nil {
		t.Fatalf("WaitEmpty() error = %v", err)
	}
	if !op.done {
		t.Error("WaitEmpty() returned before the operation was done")
	}
}

func TestPollUntil(t *testing.T) {
	t.Parallel()

	var calls int
	resp, err := PollUntil(t.Context(), "trainingPipelines/9", func(ctx context.Context) (int, bool, error) {
		calls++
		if calls < 3 {
			return 0, false, nil
		}
		return 42, true, nil
	}, fastOpts()...)
	if err != nil {
		t.Fatalf("PollUntil() error = %v", err)
	}
	if resp != 42 || calls != 3 {
		t.Errorf("PollUntil() = (%d, %d calls), want (42, 3 calls)", resp, calls)
	}
}
