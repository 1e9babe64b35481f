// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-a2a/aiplatform-go/resource"
)

func TestToStruct(t *testing.T) {
	t.Parallel()

	type hyperparams struct {
		LearningRate float64 `json:"learning_rate"`
		Layers       []int   `json:"layers"`
	}

	st, err := toStruct(map[string]any{
		"epochs": 10,
		"optim":  "adam",
		"nested": hyperparams{LearningRate: 0.01, Layers: []int{128, 64}},
	})
	if err != nil {
		t.Fatalf("toStruct = %v", err)
	}

	got := st.AsMap()
	want := map[string]any{
		"epochs": float64(10),
		"optim":  "adam",
		"nested": map[string]any{
			"learning_rate": 0.01,
			"layers":        []any{float64(128), float64(64)},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toStruct mismatch (-want +got):\n%s", diff)
	}
}

func TestToStructRejectsUnencodable(t *testing.T) {
	t.Parallel()

	if _, err := toStruct(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("toStruct with a channel value succeeded, want error")
	}
}

func TestClassificationMetricsValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		m       *ClassificationMetrics
		wantErr bool
	}{
		"empty": {
			m:       &ClassificationMetrics{},
			wantErr: true,
		},
		"valid_matrix": {
			m: &ClassificationMetrics{
				Labels: []string{"cat", "dog"},
				Matrix: [][]int64{{9, 1}, {2, 8}},
			},
		},
		"row_count_mismatch": {
			m: &ClassificationMetrics{
				Labels: []string{"cat", "dog"},
				Matrix: [][]int64{{9, 1}},
			},
			wantErr: true,
		},
		"ragged_row": {
			m: &ClassificationMetrics{
				Labels: []string{"cat", "dog"},
				Matrix: [][]int64{{9, 1}, {2}},
			},
			wantErr: true,
		},
		"valid_curve": {
			m: &ClassificationMetrics{
				FPR:       []float64{0, 0.5, 1},
				TPR:       []float64{0, 0.8, 1},
				Threshold: []float64{0.9, 0.5, 0.1},
			},
		},
		"curve_length_mismatch": {
			m: &ClassificationMetrics{
				FPR:       []float64{0, 0.5, 1},
				TPR:       []float64{0, 0.8},
				Threshold: []float64{0.9, 0.5, 0.1},
			},
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.m.validate()
			if tt.wantErr && err == nil {
				t.Fatal("validate succeeded, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("validate = %v", err)
			}
		})
	}
}

func TestNextStep(t *testing.T) {
	t.Parallel()

	steps := map[string]int64{"loss": 5, "accuracy": 3}

	if got := nextStep(steps, map[string]float64{"loss": 0.1}, 0, false); got != 6 {
		t.Errorf("nextStep(loss) = %d, want 6", got)
	}
	if got := nextStep(steps, map[string]float64{"accuracy": 0.9}, 0, false); got != 4 {
		t.Errorf("nextStep(accuracy) = %d, want 4", got)
	}
	if got := nextStep(steps, map[string]float64{"loss": 0.1, "accuracy": 0.9}, 0, false); got != 6 {
		t.Errorf("nextStep(both) = %d, want max+1 = 6", got)
	}
	if got := nextStep(steps, map[string]float64{"f1": 0.7}, 0, false); got != 1 {
		t.Errorf("nextStep(new tag) = %d, want 1", got)
	}
	if got := nextStep(steps, map[string]float64{"loss": 0.1}, 42, true); got != 42 {
		t.Errorf("nextStep(explicit) = %d, want 42", got)
	}
	if got := nextStep(steps, map[string]float64{"loss": 0.1}, 0, true); got != 0 {
		t.Errorf("nextStep(explicit zero) = %d, want 0", got)
	}
}

func TestAtStepZeroIsExplicit(t *testing.T) {
	t.Parallel()

	var b batch
	AtStep(0)(&b)
	if !b.stepSet {
		t.Error("AtStep(0) did not mark the step as explicitly set")
	}
	if b.step != 0 {
		t.Errorf("AtStep(0) set step %d, want 0", b.step)
	}
}

func newTestRun(name string) *Run {
	return &Run{
		tracker:      NewTracker(),
		name:         name,
		ctxName:      "projects/p/locations/us-central1/metadataStores/default/contexts/exp-" + name,
		params:       make(map[string]any),
		metrics:      make(map[string]any),
		steps:        make(map[string]int64),
		queue:        make(chan batch, timeSeriesQueueDepth),
		consumerDone: make(chan struct{}),
	}
}

func TestMetadataStore(t *testing.T) {
	t.Parallel()

	r := newTestRun("train")
	want := "projects/p/locations/us-central1/metadataStores/default"
	if got := r.metadataStore(); got != want {
		t.Errorf("metadataStore() = %q, want %q", got, want)
	}
}

func TestLogParamsWriteOnce(t *testing.T) {
	t.Parallel()

	r := newTestRun("train")
	r.params["learning_rate"] = 0.01

	err := r.LogParams(t.Context(), map[string]any{"learning_rate": 0.02})
	var verr *resource.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("re-logging a parameter with a new value returned %v, want *resource.ValidationError", err)
	}
	if got := r.params["learning_rate"]; got != 0.01 {
		t.Errorf("params[learning_rate] = %v, want original 0.01 untouched", got)
	}
}

func TestRestoreSplitsParamsAndMetrics(t *testing.T) {
	t.Parallel()

	md, err := structpb.NewStruct(map[string]any{
		"state":    stateRunning,
		"_params":  map[string]any{"epochs": float64(10)},
		"_metrics": map[string]any{"accuracy": 0.92},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := newTestRun("resumed")
	r.restore(md)

	if got := r.params["epochs"]; got != float64(10) {
		t.Errorf("params[epochs] = %v, want 10", got)
	}
	if got := r.metrics["accuracy"]; got != 0.92 {
		t.Errorf("metrics[accuracy] = %v, want 0.92", got)
	}
	if _, leaked := r.params["state"]; leaked {
		t.Error("state leaked into params")
	}
}

func TestParamsReturnsDeepCopy(t *testing.T) {
	t.Parallel()

	r := newTestRun("copy")
	r.params["nested"] = map[string]any{"a": float64(1)}

	got, err := r.Params()
	if err != nil {
		t.Fatalf("Params = %v", err)
	}
	got["nested"].(map[string]any)["a"] = float64(99)

	if r.params["nested"].(map[string]any)["a"] != float64(1) {
		t.Error("mutating the returned map reached the run's internal state")
	}
}

func TestActiveRunPrefersContext(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	stacked := newTestRun("stacked")
	bound := newTestRun("bound")
	tr.stack = append(tr.stack, stacked)

	got, err := tr.ActiveRun(t.Context())
	if err != nil {
		t.Fatalf("ActiveRun = %v", err)
	}
	if got != stacked {
		t.Errorf("ActiveRun = %s, want stack top", got.Name())
	}

	ctx := WithRun(t.Context(), bound)
	got, err = tr.ActiveRun(ctx)
	if err != nil {
		t.Fatalf("ActiveRun = %v", err)
	}
	if got != bound {
		t.Errorf("ActiveRun = %s, want context-bound run", got.Name())
	}
}

func TestActiveRunWithoutRuns(t *testing.T) {
	t.Parallel()

	if _, err := NewTracker().ActiveRun(t.Context()); err == nil {
		t.Fatal("ActiveRun with no runs succeeded, want error")
	}
}

func TestForget(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	a, b := newTestRun("a"), newTestRun("b")
	tr.stack = []*Run{a, b}

	tr.forget(b)
	if len(tr.stack) != 1 || tr.stack[0] != a {
		t.Errorf("stack after forget = %d runs, want just %q", len(tr.stack), a.Name())
	}
	tr.forget(b) // forgetting twice is a no-op
	if len(tr.stack) != 1 {
		t.Errorf("stack = %d runs after double forget, want 1", len(tr.stack))
	}
}

type fakeIntegration struct {
	name      string
	attachErr error
	attached  bool
	detached  bool
}

func (f *fakeIntegration) Name() string { return f.name }

func (f *fakeIntegration) Attach(Notifier) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = true
	return nil
}

func (f *fakeIntegration) Detach() error {
	f.detached = true
	return nil
}

func TestAutologRollsBackOnAttachFailure(t *testing.T) {
	ok := &fakeIntegration{name: "frameworkA"}
	bad := &fakeIntegration{name: "frameworkB", attachErr: errors.New("hook refused")}

	if err := Autolog(ok, bad); err == nil {
		t.Fatal("Autolog with failing integration succeeded, want error")
	}
	if !ok.detached {
		t.Error("earlier integration not detached after attach failure")
	}
}

func TestAutologAndStop(t *testing.T) {
	integ := &fakeIntegration{name: "frameworkC"}
	if err := Autolog(integ); err != nil {
		t.Fatalf("Autolog = %v", err)
	}
	if !integ.attached {
		t.Error("integration not attached")
	}
	if err := StopAutolog(); err != nil {
		t.Fatalf("StopAutolog = %v", err)
	}
	if !integ.detached {
		t.Error("integration not detached")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	t.Parallel()

	r := newTestRun("done")
	r.ended = true
	// A second End must return immediately without touching the closed
	// queue.
	r.End(context.Background())
}

// recordingSink captures scalar batches in the order the consumer delivers
// them.
type recordingSink struct {
	mu    sync.Mutex
	steps []int64
}

func (s *recordingSink) WriteScalars(_ context.Context, step int64, _ time.Time, _ map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
	return nil
}

func (s *recordingSink) recorded() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.steps...)
}

func TestEndDrainsTimeSeriesInOrder(t *testing.T) {
	t.Parallel()

	r := newTestRun("drain")
	sink := &recordingSink{}
	r.writer = sink

	for i := 0; i < 3; i++ {
		if err := r.LogTimeSeries(t.Context(), map[string]float64{"loss": 1.0 / float64(i+1)}); err != nil {
			t.Fatalf("LogTimeSeries(%d) = %v", i, err)
		}
	}
	r.End(context.Background())

	want := []int64{1, 2, 3}
	if diff := cmp.Diff(want, sink.recorded()); diff != "" {
		t.Errorf("sink steps after End (-want +got):\n%s", diff)
	}
}

func TestLogTimeSeriesConcurrentWithEnd(t *testing.T) {
	t.Parallel()

	r := newTestRun("concurrent")
	r.writer = &recordingSink{}

	logged := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			err := r.LogTimeSeries(context.Background(), map[string]float64{"loss": float64(i)})
			if i == 0 {
				close(logged)
			}
			if err != nil {
				return
			}
		}
	}()

	<-logged
	r.End(context.Background())
	<-done

	if err := r.LogTimeSeries(context.Background(), map[string]float64{"loss": 0}); err == nil {
		t.Error("LogTimeSeries after End succeeded, want error")
	}
}

func TestConsumerDiscardsQueuedPointsWhenFlagged(t *testing.T) {
	t.Parallel()

	r := newTestRun("timeout")
	sink := &recordingSink{}
	r.writer = sink

	r.discard.Store(true)
	r.queue <- batch{step: 1, values: map[string]float64{"loss": 0.5}}
	r.queue <- batch{step: 2, values: map[string]float64{"loss": 0.4}}
	r.consumerOnce.Do(r.startConsumer)
	close(r.queue)
	<-r.consumerDone

	if got := sink.recorded(); len(got) != 0 {
		t.Errorf("sink received %v while discarding, want nothing", got)
	}
}

func TestStartRunDuplicateRequiresResume(t *testing.T) {
	t.Parallel()

	err := reopenExisting("churn-model", "trial-1", false)
	var verr *resource.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("reopening without resume returned %v, want *resource.ValidationError", err)
	}
	if err := reopenExisting("churn-model", "trial-1", true); err != nil {
		t.Errorf("reopening with resume = %v, want nil", err)
	}
}
