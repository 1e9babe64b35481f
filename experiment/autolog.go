// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Notifier is the sink an attached [Integration] reports through. Calls are
// routed to the tracker's active run.
type Notifier interface {
	// NotifyParams reports hyperparameters captured from the framework.
	NotifyParams(ctx context.Context, params map[string]any) error

	// NotifyMetrics reports summary metrics captured from the framework.
	NotifyMetrics(ctx context.Context, metrics map[string]any) error

	// NotifyTimeSeries reports step-wise scalars captured from the
	// framework.
	NotifyTimeSeries(ctx context.Context, values map[string]float64, opts ...TimeSeriesOption) error
}

// Integration hooks a training framework's own callback mechanism up to a
// [Notifier], so parameters and metrics flow into the experiment without
// explicit logging calls.
type Integration interface {
	// Name identifies the integration in logs.
	Name() string

	// Attach starts forwarding framework events to n. It is called at most
	// once per Autolog call.
	Attach(n Notifier) error

	// Detach stops forwarding and releases any framework hooks.
	Detach() error
}

// trackerNotifier routes integration events to the tracker's active run.
type trackerNotifier struct {
	t *Tracker
}

func (n *trackerNotifier) NotifyParams(ctx context.Context, params map[string]any) error {
	r, err := n.t.ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogParams(ctx, params)
}

func (n *trackerNotifier) NotifyMetrics(ctx context.Context, metrics map[string]any) error {
	r, err := n.t.ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogMetrics(ctx, metrics)
}

func (n *trackerNotifier) NotifyTimeSeries(ctx context.Context, values map[string]float64, opts ...TimeSeriesOption) error {
	r, err := n.t.ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogTimeSeries(ctx, values, opts...)
}

var (
	autologMu       sync.Mutex
	autologAttached []Integration
)

// Autolog attaches the given integrations to the default tracker. An attach
// failure detaches everything attached by the same call.
func Autolog(integrations ...Integration) error {
	t := Default()
	notifier := &trackerNotifier{t: t}

	autologMu.Lock()
	defer autologMu.Unlock()
	for i, integ := range integrations {
		if err := integ.Attach(notifier); err != nil {
			for _, prev := range integrations[:i] {
				if derr := prev.Detach(); derr != nil {
					t.logger.Warn("failed to detach integration",
						slog.String("integration", prev.Name()),
						slog.Any("error", derr),
					)
				}
			}
			return fmt.Errorf("failed to attach integration %s: %w", integ.Name(), err)
		}
		t.logger.Info("autolog integration attached", slog.String("integration", integ.Name()))
	}
	autologAttached = append(autologAttached, integrations...)
	return nil
}

// StopAutolog detaches every integration attached through [Autolog].
func StopAutolog() error {
	autologMu.Lock()
	defer autologMu.Unlock()

	var firstErr error
	for _, integ := range autologAttached {
		if err := integ.Detach(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to detach integration %s: %w", integ.Name(), err)
		}
	}
	autologAttached = nil
	return firstErr
}
