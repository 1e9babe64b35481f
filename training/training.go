// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package training runs custom jobs and training pipelines. Both are
// synchronous creates on the wire; completion is tracked by polling the
// resource state until it turns terminal.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/future"
	"github.com/go-a2a/aiplatform-go/internal/lro"
	"github.com/go-a2a/aiplatform-go/resource"
)

// Canonical-name segments.
const (
	JobCollection      = "customJobs"
	PipelineCollection = "trainingPipelines"
)

// Default dataset split fractions when a pipeline trains on a managed
// dataset without explicit fractions.
const (
	DefaultTrainingFraction   = 0.8
	DefaultValidationFraction = 0.1
	DefaultTestFraction       = 0.1
)

type options struct {
	project  string
	location string
	labels   map[string]string

	baseOutputDir  string
	serviceAccount string
	network        string

	sync    bool
	deps    []future.Awaitable
	manager *future.Manager
	factory *client.Factory
	logger  *slog.Logger
	lroOpts []lro.Option
}

// Option is a functional option for training operations.
type Option func(*options)

// WithProject overrides the configured default project.
func WithProject(project string) Option {
	return func(o *options) { o.project = project }
}

// WithLocation overrides the configured default location.
func WithLocation(location string) Option {
	return func(o *options) { o.location = location }
}

// WithLabels sets user labels. The SDK provenance label is merged in.
func WithLabels(labels map[string]string) Option {
	return func(o *options) { o.labels = labels }
}

// WithBaseOutputDir sets the Cloud Storage prefix for job outputs. Defaults
// to the configured staging bucket.
func WithBaseOutputDir(uri string) Option {
	return func(o *options) { o.baseOutputDir = uri }
}

// WithServiceAccount runs the training workload as the given service account
// instead of the configured default.
func WithServiceAccount(sa string) Option {
	return func(o *options) { o.serviceAccount = sa }
}

// WithNetwork peers the training workload with the given VPC network instead
// of the configured default.
func WithNetwork(network string) Option {
	return func(o *options) { o.network = network }
}

// WithSync makes the call block until the workload reaches a terminal state.
// Training defaults to synchronous.
func WithSync(sync bool) Option {
	return func(o *options) { o.sync = sync }
}

// WithDependencies declares futures that must resolve before the RPC is
// issued.
func WithDependencies(deps ...future.Awaitable) Option {
	return func(o *options) { o.deps = append(o.deps, deps...) }
}

// WithManager overrides the process-wide future manager.
func WithManager(mgr *future.Manager) Option {
	return func(o *options) { o.manager = mgr }
}

// WithClientFactory overrides the process-wide client factory.
func WithClientFactory(f *client.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPollOptions tunes the state-poll cadence and deadline.
func WithPollOptions(opts ...lro.Option) Option {
	return func(o *options) { o.lroOpts = append(o.lroOpts, opts...) }
}

func buildOptions(opts []Option) *options {
	o := &options{
		sync:    true,
		factory: client.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolveParent returns the parent path and region for a submission.
func resolveParent(ctx context.Context, o *options) (parent, region string, err error) {
	parent, err = config.CommonLocationPath(ctx, o.project, o.location)
	if err != nil {
		return "", "", err
	}
	region = o.location
	if region == "" {
		if region, err = config.Location(); err != nil {
			return "", "", err
		}
	}
	return parent, region, nil
}

// jobTerminal classifies a job state. done is true on success; err is
// non-nil on failure, carrying the server-reported status.
func jobTerminal(job *aiplatformpb.CustomJob) (done bool, err error) {
	switch job.GetState() {
	case aiplatformpb.JobState_JOB_STATE_SUCCEEDED:
		return true, nil
	case aiplatformpb.JobState_JOB_STATE_FAILED, aiplatformpb.JobState_JOB_STATE_EXPIRED:
		return false, fmt.Errorf("custom job %s failed: %w", job.GetName(), status.ErrorProto(job.GetError()))
	case aiplatformpb.JobState_JOB_STATE_CANCELLED:
		return false, fmt.Errorf("custom job %s was cancelled", job.GetName())
	default:
		return false, nil
	}
}

// CustomJob is a submitted custom training job.
type CustomJob struct {
	*resource.Noun

	factory *client.Factory
	region  string

	mu      sync.Mutex
	jobName string
}

// setJobName records the server-assigned name as soon as the create RPC
// returns, before the state poll completes.
func (j *CustomJob) setJobName(name string) {
	j.mu.Lock()
	j.jobName = name
	j.mu.Unlock()
}

// JobName returns the canonical job name, or "" while the create RPC is
// still in flight. Unlike ResourceName it does not wait for the job to
// finish.
func (j *CustomJob) JobName() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jobName
}

// RunCustomJob submits a custom training job and tracks it to completion.
//
// The create RPC returns immediately; the returned job's creation future
// resolves only when the job reaches a terminal state.
func RunCustomJob(ctx context.Context, displayName string, workerPools []*aiplatformpb.WorkerPoolSpec, opts ...Option) (*CustomJob, error) {
	if displayName == "" {
		return nil, &resource.ValidationError{Field: "display_name", Message: "must not be empty"}
	}
	if len(workerPools) == 0 {
		return nil, &resource.ValidationError{Field: "worker_pool_specs", Message: "must not be empty"}
	}
	o := buildOptions(opts)
	snap := config.Snapshot()

	parent, region, err := resolveParent(ctx, o)
	if err != nil {
		return nil, err
	}

	jobSpec := &aiplatformpb.CustomJobSpec{
		WorkerPoolSpecs: workerPools,
		ServiceAccount:  firstNonEmpty(o.serviceAccount, snap.ServiceAccount),
		Network:         firstNonEmpty(o.network, snap.Network),
	}
	if dir := firstNonEmpty(o.baseOutputDir, snap.StagingBucket); dir != "" {
		jobSpec.BaseOutputDirectory = &aiplatformpb.GcsDestination{OutputUriPrefix: dir}
	}
	pb := &aiplatformpb.CustomJob{
		DisplayName: displayName,
		JobSpec:     jobSpec,
		Labels:      resource.MergeLabels(o.labels),
	}
	if snap.EncryptionSpecKeyName != "" {
		pb.EncryptionSpec = &aiplatformpb.EncryptionSpec{KmsKeyName: snap.EncryptionSpecKeyName}
	}

	j := &CustomJob{
		Noun:    resource.NewPending(o.manager, o.logger),
		factory: o.factory,
		region:  region,
	}

	f := j.StartCreation(ctx, "training.custom_job", o.deps, func(ctx context.Context) (proto.Message, error) {
		cl, err := o.factory.Job(ctx, region)
		if err != nil {
			return nil, err
		}
		created, err := cl.CreateCustomJob(client.ContextWithMetadata(ctx), &aiplatformpb.CreateCustomJobRequest{
			Parent:    parent,
			CustomJob: pb,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create custom job %q: %w", displayName, err)
		}
		j.setJobName(created.GetName())
		o.logger.InfoContext(ctx, "custom job submitted",
			slog.String("job_name", created.GetName()),
		)

		return lro.PollUntil(ctx, created.GetName(), func(ctx context.Context) (*aiplatformpb.CustomJob, bool, error) {
			job, err := cl.GetCustomJob(client.ContextWithMetadata(ctx), &aiplatformpb.GetCustomJobRequest{Name: created.GetName()})
			if err != nil {
				return nil, false, err
			}
			done, err := jobTerminal(job)
			return job, done, err
		}, o.lroOpts...)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// Cancel asks the service to stop the job. The creation future then resolves
// with a cancellation failure once the job reports its terminal state.
func (j *CustomJob) Cancel(ctx context.Context) error {
	name := j.JobName()
	if name == "" {
		return fmt.Errorf("custom job not yet submitted")
	}
	cl, err := j.factory.Job(ctx, j.region)
	if err != nil {
		return err
	}
	if err := cl.CancelCustomJob(client.ContextWithMetadata(ctx), &aiplatformpb.CancelCustomJobRequest{Name: name}); err != nil {
		return fmt.Errorf("failed to cancel custom job %s: %w", name, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
