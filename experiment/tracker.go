// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package experiment tracks training experiments: named runs carrying
// write-once parameters, summary metrics, and TensorBoard-backed time
// series. Experiments and runs are stored as metadata contexts.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/resource"
	"github.com/go-a2a/aiplatform-go/tensorboard"
)

// Metadata schema constants for experiment contexts.
const (
	metadataStoreID             = "default"
	experimentSchema            = "system.Experiment"
	runSchema                   = "system.ExperimentRun"
	classificationMetricsSchema = "google.ClassificationMetrics"
	schemaVersion               = "0.0.1"
)

// Tracker manages the runs of the configured experiment. A process normally
// uses the package-level functions backed by [Default]; independent trackers
// exist for tests and multi-experiment tooling.
type Tracker struct {
	factory *client.Factory
	logger  *slog.Logger

	mu            sync.Mutex
	region        string
	experiment    string
	experimentCtx string
	tb            *tensorboard.Tensorboard
	tbExperiment  string
	stack         []*Run
}

// TrackerOption configures a [Tracker].
type TrackerOption func(*Tracker)

// WithClientFactory overrides the process-wide client factory.
func WithClientFactory(f *client.Factory) TrackerOption {
	return func(t *Tracker) { t.factory = f }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker returns a tracker bound to the configured experiment.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		factory: client.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var (
	defaultTracker     *Tracker
	defaultTrackerOnce sync.Once
)

// Default returns the process-wide tracker. The first call subscribes it to
// configuration changes: switching the configured experiment ends any runs
// still open under the previous one.
func Default() *Tracker {
	defaultTrackerOnce.Do(func() {
		defaultTracker = NewTracker()
		config.OnChange(defaultTracker.handleConfigChange)
	})
	return defaultTracker
}

// handleConfigChange ends open runs when the configured experiment moves
// away from the one this tracker is bound to.
func (t *Tracker) handleConfigChange(_, next config.Config) {
	t.mu.Lock()
	bound := t.experiment
	changed := bound != "" && next.Experiment != bound
	var open []*Run
	if changed {
		open = append(open, t.stack...)
		t.stack = nil
		t.experiment = ""
		t.experimentCtx = ""
		t.tb = nil
		t.tbExperiment = ""
	}
	t.mu.Unlock()

	if !changed {
		return
	}
	t.logger.Info("experiment switched; ending open runs",
		slog.String("previous", bound),
		slog.String("current", next.Experiment),
		slog.Int("open_runs", len(open)),
	)
	ctx, cancel := context.WithTimeout(context.Background(), endRunGrace)
	defer cancel()
	for _, r := range open {
		r.End(ctx)
	}
}

// metadataStorePath returns the default metadata store under the configured
// parent.
func metadataStorePath(ctx context.Context) (string, error) {
	common, err := config.CommonLocationPath(ctx, "", "")
	if err != nil {
		return "", err
	}
	return common + "/metadataStores/" + metadataStoreID, nil
}

// ensureContext creates the metadata context or fetches it when it already
// exists, reporting which of the two happened.
func (t *Tracker) ensureContext(ctx context.Context, store, contextID, schema string) (*aiplatformpb.Context, bool, error) {
	cl, err := t.factory.Metadata(ctx, t.region)
	if err != nil {
		return nil, false, err
	}

	created, err := cl.CreateContext(client.ContextWithMetadata(ctx), &aiplatformpb.CreateContextRequest{
		Parent:    store,
		ContextId: contextID,
		Context: &aiplatformpb.Context{
			DisplayName:   contextID,
			SchemaTitle:   schema,
			SchemaVersion: schemaVersion,
		},
	})
	if err == nil {
		return created, false, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, false, fmt.Errorf("failed to create metadata context %q: %w", contextID, err)
	}

	existing, err := cl.GetContext(client.ContextWithMetadata(ctx), &aiplatformpb.GetContextRequest{
		Name: store + "/contexts/" + contextID,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch metadata context %q: %w", contextID, err)
	}
	return existing, true, nil
}

// ensureExperiment binds the tracker to the configured experiment, creating
// its metadata context and TensorBoard experiment on first use.
func (t *Tracker) ensureExperiment(ctx context.Context) error {
	snap := config.Snapshot()
	if snap.Experiment == "" {
		return &config.ConfigurationError{
			Parameter: "experiment",
			Message:   "no experiment configured; pass config.WithExperiment to config.Init",
		}
	}

	t.mu.Lock()
	if t.experiment == snap.Experiment && t.experimentCtx != "" {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	region, err := config.Location()
	if err != nil {
		return err
	}
	store, err := metadataStorePath(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.region = region
	t.mu.Unlock()

	expCtx, _, err := t.ensureContext(ctx, store, snap.Experiment, experimentSchema)
	if err != nil {
		return err
	}

	var tb *tensorboard.Tensorboard
	var tbExp string
	if !snap.TensorboardDisabled && snap.ExperimentTensorboard != "" {
		tb, err = tensorboard.Get(ctx, snap.ExperimentTensorboard,
			tensorboard.WithClientFactory(t.factory),
			tensorboard.WithLogger(t.logger),
		)
		if err != nil {
			return fmt.Errorf("failed to resolve experiment tensorboard: %w", err)
		}
		exp, err := tb.EnsureExperiment(ctx, snap.Experiment, snap.Experiment)
		if err != nil {
			return err
		}
		tbExp = exp.GetName()
	}

	t.mu.Lock()
	t.experiment = snap.Experiment
	t.experimentCtx = expCtx.GetName()
	t.tb = tb
	t.tbExperiment = tbExp
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "experiment ready",
		slog.String("experiment", snap.Experiment),
		slog.Bool("tensorboard_backed", tb != nil),
	)
	return nil
}

// RunOption configures a StartRun call.
type RunOption func(*runOptions)

type runOptions struct {
	resume bool
}

// Resume allows StartRun to reopen an existing run of the same name,
// reloading its previously logged parameters and metrics and moving its
// state back to RUNNING.
func Resume(resume bool) RunOption {
	return func(o *runOptions) { o.resume = resume }
}

// reopenExisting decides whether a run context that already exists may be
// reopened. Without Resume(true) a duplicate run name is an error.
func reopenExisting(experiment, runName string, resume bool) error {
	if resume {
		return nil
	}
	return &resource.ValidationError{
		Field:   "run_name",
		Message: fmt.Sprintf("run %q already exists in experiment %q; pass Resume(true) to resume it", runName, experiment),
	}
}

// StartRun opens a named run under the configured experiment and pushes it
// onto the tracker's run stack.
//
// Starting a run whose metadata context already exists fails with a
// validation error unless Resume(true) is given, in which case the run's
// logged parameters and metrics are reloaded and its state moves back to
// RUNNING.
func (t *Tracker) StartRun(ctx context.Context, runName string, opts ...RunOption) (*Run, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if runName == "" {
		runName = "run-" + time.Now().UTC().Format("20060102-150405")
	}
	if err := t.ensureExperiment(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	experiment := t.experiment
	experimentCtx := t.experimentCtx
	tb := t.tb
	tbExperiment := t.tbExperiment
	region := t.region
	t.mu.Unlock()

	store, err := metadataStorePath(ctx)
	if err != nil {
		return nil, err
	}

	// Run contexts are namespaced by experiment so run names only need to be
	// unique within one experiment.
	contextID := experiment + "-" + runName
	runCtx, resumed, err := t.ensureContext(ctx, store, contextID, runSchema)
	if err != nil {
		return nil, err
	}

	cl, err := t.factory.Metadata(ctx, region)
	if err != nil {
		return nil, err
	}
	_, err = cl.AddContextChildren(client.ContextWithMetadata(ctx), &aiplatformpb.AddContextChildrenRequest{
		Context:       experimentCtx,
		ChildContexts: []string{runCtx.GetName()},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists && status.Code(err) != codes.FailedPrecondition {
		return nil, fmt.Errorf("failed to link run %q to experiment: %w", runName, err)
	}

	r := &Run{
		tracker:      t,
		name:         runName,
		ctxName:      runCtx.GetName(),
		params:       make(map[string]any),
		metrics:      make(map[string]any),
		steps:        make(map[string]int64),
		queue:        make(chan batch, timeSeriesQueueDepth),
		consumerDone: make(chan struct{}),
	}
	if resumed {
		if err := reopenExisting(experiment, runName, o.resume); err != nil {
			return nil, err
		}
		r.restore(runCtx.GetMetadata())
	}

	if tb != nil {
		tbRun, err := tb.EnsureRun(ctx, tbExperiment, runName)
		if err != nil {
			return nil, err
		}
		r.writer = tensorboard.NewWriter(t.factory, region, tbRun.GetName())
	}

	if err := r.persist(ctx, stateRunning); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.stack = append(t.stack, r)
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "run started",
		slog.String("experiment", experiment),
		slog.String("run", runName),
		slog.Bool("resumed", resumed),
	)
	return r, nil
}

// forget removes an ended run from the stack.
func (t *Tracker) forget(r *Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i] == r {
			t.stack = append(t.stack[:i], t.stack[i+1:]...)
			return
		}
	}
}

type runContextKey struct{}

// WithRun binds a run to the context, scoping subsequent package-level
// logging calls on that context to this run regardless of the process-wide
// stack.
func WithRun(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runContextKey{}, r)
}

// RunFromContext returns the run bound to ctx, if any.
func RunFromContext(ctx context.Context) (*Run, bool) {
	r, ok := ctx.Value(runContextKey{}).(*Run)
	return r, ok
}

// ActiveRun resolves the run logging calls should target: a context-bound
// run first, otherwise the most recently started run still open.
func (t *Tracker) ActiveRun(ctx context.Context) (*Run, error) {
	if r, ok := RunFromContext(ctx); ok {
		return r, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return nil, fmt.Errorf("no active run; call StartRun first")
	}
	return t.stack[len(t.stack)-1], nil
}

// StartRun opens a run on the default tracker.
func StartRun(ctx context.Context, runName string, opts ...RunOption) (*Run, error) {
	return Default().StartRun(ctx, runName, opts...)
}

// LogParams logs write-once parameters on the active run.
func LogParams(ctx context.Context, params map[string]any) error {
	r, err := Default().ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogParams(ctx, params)
}

// LogMetrics logs summary metrics on the active run.
func LogMetrics(ctx context.Context, metrics map[string]any) error {
	r, err := Default().ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogMetrics(ctx, metrics)
}

// LogClassificationMetrics logs classification evaluation metrics on the
// active run.
func LogClassificationMetrics(ctx context.Context, m *ClassificationMetrics) error {
	r, err := Default().ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogClassificationMetrics(ctx, m)
}

// LogTimeSeries queues scalar time-series points on the active run.
func LogTimeSeries(ctx context.Context, values map[string]float64, opts ...TimeSeriesOption) error {
	r, err := Default().ActiveRun(ctx)
	if err != nil {
		return err
	}
	return r.LogTimeSeries(ctx, values, opts...)
}

// EndRun ends the active run.
func EndRun(ctx context.Context) error {
	r, err := Default().ActiveRun(ctx)
	if err != nil {
		return err
	}
	r.End(ctx)
	return nil
}
