// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"github.com/google/uuid"
	deepcopy "github.com/tiendc/go-deepcopy"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/resource"
)

// Run states persisted on the run's metadata context.
const (
	stateRunning  = "RUNNING"
	stateComplete = "COMPLETE"
	stateFailed   = "FAILED"
)

// timeSeriesQueueDepth bounds unsent time-series batches per run.
const timeSeriesQueueDepth = 256

// endRunGrace is how long EndRun waits for queued time-series points to
// flush before dropping them.
const endRunGrace = 10 * time.Second

// batch is one LogTimeSeries call queued for the run's writer goroutine.
type batch struct {
	step     int64
	stepSet  bool
	wallTime time.Time
	values   map[string]float64
}

// scalarSink receives the run's ordered scalar batches. Satisfied by the
// tensorboard package's Writer.
type scalarSink interface {
	WriteScalars(ctx context.Context, step int64, wallTime time.Time, values map[string]float64) error
}

// Run is an experiment run: a metadata context holding parameters and
// summary metrics, optionally backed by a TensorBoard run for step-wise
// time series.
type Run struct {
	tracker *Tracker
	name    string
	ctxName string
	writer  scalarSink

	mu      sync.Mutex
	params  map[string]any
	metrics map[string]any
	steps   map[string]int64
	ended   bool

	queue        chan batch
	consumerOnce sync.Once
	consumerDone chan struct{}
	discard      atomic.Bool
}

// Name returns the run name within the experiment.
func (r *Run) Name() string {
	return r.name
}

// ContextName returns the canonical metadata context name of the run.
func (r *Run) ContextName() string {
	return r.ctxName
}

// Params returns a deep copy of the parameters logged so far.
func (r *Run) Params() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out map[string]any
	if err := deepcopy.Copy(&out, r.params); err != nil {
		return nil, err
	}
	return out, nil
}

// Metrics returns a deep copy of the summary metrics logged so far.
func (r *Run) Metrics() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out map[string]any
	if err := deepcopy.Copy(&out, r.metrics); err != nil {
		return nil, err
	}
	return out, nil
}

// LogParams records hyperparameters on the run. Parameters are write-once:
// re-logging a key with a different value fails with a validation error and
// nothing is persisted. Re-logging the same value is a no-op.
func (r *Run) LogParams(ctx context.Context, params map[string]any) error {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return fmt.Errorf("run %s already ended", r.name)
	}
	for k, v := range params {
		prev, dup := r.params[k]
		if dup && !reflect.DeepEqual(prev, v) {
			r.mu.Unlock()
			return &resource.ValidationError{
				Field:   "params",
				Message: fmt.Sprintf("parameter %q already logged with a different value; parameters are write-once", k),
			}
		}
	}
	for k, v := range params {
		r.params[k] = v
	}
	r.mu.Unlock()

	return r.persist(ctx, stateRunning)
}

// LogMetrics records summary metrics on the run. Unlike parameters, metrics
// are last-write-wins.
func (r *Run) LogMetrics(ctx context.Context, metrics map[string]any) error {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return fmt.Errorf("run %s already ended", r.name)
	}
	for k, v := range metrics {
		r.metrics[k] = v
	}
	r.mu.Unlock()

	return r.persist(ctx, stateRunning)
}

// metadataStore returns the metadata store prefix of the run's context name.
func (r *Run) metadataStore() string {
	if i := strings.Index(r.ctxName, "/contexts/"); i >= 0 {
		return r.ctxName[:i]
	}
	return r.ctxName
}

// LogClassificationMetrics records a confusion matrix and/or ROC curve as a
// google.ClassificationMetrics artifact linked to the run.
func (r *Run) LogClassificationMetrics(ctx context.Context, m *ClassificationMetrics) error {
	if err := m.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	ended := r.ended
	r.mu.Unlock()
	if ended {
		return fmt.Errorf("run %s already ended", r.name)
	}

	st, err := toStruct(m.asMap())
	if err != nil {
		return err
	}

	cl, err := r.tracker.factory.Metadata(ctx, r.tracker.region)
	if err != nil {
		return err
	}
	artifactID := "classification-metrics-" + uuid.NewString()[:8]
	artifact, err := cl.CreateArtifact(client.ContextWithMetadata(ctx), &aiplatformpb.CreateArtifactRequest{
		Parent:     r.metadataStore(),
		ArtifactId: artifactID,
		Artifact: &aiplatformpb.Artifact{
			DisplayName:   m.DisplayName,
			SchemaTitle:   classificationMetricsSchema,
			SchemaVersion: schemaVersion,
			State:         aiplatformpb.Artifact_LIVE,
			Metadata:      st,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create classification metrics artifact: %w", err)
	}

	_, err = cl.AddContextArtifactsAndExecutions(client.ContextWithMetadata(ctx), &aiplatformpb.AddContextArtifactsAndExecutionsRequest{
		Context:   r.ctxName,
		Artifacts: []string{artifact.GetName()},
	})
	if err != nil {
		return fmt.Errorf("failed to link classification metrics to run %s: %w", r.name, err)
	}
	return nil
}

// TimeSeriesOption tunes one LogTimeSeries call.
type TimeSeriesOption func(*batch)

// AtStep pins the points to an explicit step instead of the default
// (one past the highest step seen for any of the tags). Step 0 is a valid
// explicit step.
func AtStep(step int64) TimeSeriesOption {
	return func(b *batch) {
		b.step = step
		b.stepSet = true
	}
}

// AtWallTime overrides the wall-clock timestamp of the points.
func AtWallTime(t time.Time) TimeSeriesOption {
	return func(b *batch) { b.wallTime = t }
}

// LogTimeSeries queues scalar points for asynchronous upload to the run's
// TensorBoard run. Points are written in order by a single goroutine per
// run; the call itself only blocks when the queue is full.
func (r *Run) LogTimeSeries(ctx context.Context, values map[string]float64, opts ...TimeSeriesOption) error {
	if r.writer == nil {
		return &config.ConfigurationError{
			Parameter: "experiment_tensorboard",
			Message:   "run has no TensorBoard backing; configure one with config.WithExperimentTensorboard",
		}
	}
	if len(values) == 0 {
		return nil
	}

	b := batch{wallTime: time.Now()}
	for _, opt := range opts {
		opt(&b)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return fmt.Errorf("run %s already ended", r.name)
	}
	b.step = nextStep(r.steps, values, b.step, b.stepSet)
	for tag := range values {
		if b.step > r.steps[tag] {
			r.steps[tag] = b.step
		}
	}
	b.values = make(map[string]float64, len(values))
	for k, v := range values {
		b.values[k] = v
	}

	r.consumerOnce.Do(r.startConsumer)

	// The send happens under the mutex: end sets ended under the same mutex
	// before closing the queue, so no send can race the close.
	select {
	case r.queue <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextStep picks the step for a batch: the explicit one when given,
// otherwise one past the highest step already seen for any of the tags.
func nextStep(steps map[string]int64, values map[string]float64, explicit int64, haveExplicit bool) int64 {
	if haveExplicit {
		return explicit
	}
	var maxStep int64
	for tag := range values {
		if s := steps[tag]; s > maxStep {
			maxStep = s
		}
	}
	return maxStep + 1
}

// startConsumer launches the single writer goroutine for this run.
func (r *Run) startConsumer() {
	go func() {
		defer close(r.consumerDone)
		// Uploads outlive the caller's request context on purpose; the run
		// owns flushing.
		ctx := context.Background()
		for b := range r.queue {
			if r.discard.Load() {
				continue
			}
			if err := r.writer.WriteScalars(ctx, b.step, b.wallTime, b.values); err != nil {
				r.tracker.logger.Warn("dropping time-series batch",
					slog.String("run", r.name),
					slog.Int64("step", b.step),
					slog.Any("error", err),
				)
			}
		}
	}()
}

// persist pushes the run's parameters, metrics, and state to its metadata
// context.
func (r *Run) persist(ctx context.Context, state string) error {
	r.mu.Lock()
	md := map[string]any{
		"state":    state,
		"_params":  copyMap(r.params),
		"_metrics": copyMap(r.metrics),
	}
	r.mu.Unlock()

	st, err := toStruct(md)
	if err != nil {
		return err
	}

	cl, err := r.tracker.factory.Metadata(ctx, r.tracker.region)
	if err != nil {
		return err
	}
	_, err = cl.UpdateContext(client.ContextWithMetadata(ctx), &aiplatformpb.UpdateContextRequest{
		Context: &aiplatformpb.Context{
			Name:     r.ctxName,
			Metadata: st,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update run context %s: %w", r.ctxName, err)
	}
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// restore seeds params and metrics from a resumed run's context metadata.
func (r *Run) restore(md *structpb.Struct) {
	if md == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if params, ok := md.GetFields()["_params"]; ok {
		for k, v := range params.GetStructValue().GetFields() {
			r.params[k] = v.AsInterface()
		}
	}
	if metrics, ok := md.GetFields()["_metrics"]; ok {
		for k, v := range metrics.GetStructValue().GetFields() {
			r.metrics[k] = v.AsInterface()
		}
	}
}

// End marks the run complete, flushes queued time-series points within a
// grace period, and persists the final state. Upload failures are logged,
// never returned: a training process must not fail at the finish line over
// telemetry.
func (r *Run) End(ctx context.Context) {
	r.end(ctx, stateComplete)
}

// Fail marks the run failed and finalizes it like [Run.End].
func (r *Run) Fail(ctx context.Context) {
	r.end(ctx, stateFailed)
}

func (r *Run) end(ctx context.Context, state string) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.mu.Unlock()

	// If no consumer ever started there is nothing queued; satisfy the wait
	// below directly.
	r.consumerOnce.Do(func() { close(r.consumerDone) })
	close(r.queue)
	select {
	case <-r.consumerDone:
	case <-time.After(endRunGrace):
		// The consumer discards whatever is still queued; at most the write
		// already in flight completes.
		r.discard.Store(true)
		r.tracker.logger.Warn("time-series flush timed out; dropping queued points",
			slog.String("run", r.name),
		)
	}

	if err := r.persist(ctx, state); err != nil {
		r.tracker.logger.Warn("failed to finalize run state",
			slog.String("run", r.name),
			slog.Any("error", err),
		)
	}
	r.tracker.forget(r)
}
