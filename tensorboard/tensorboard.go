// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package tensorboard provides the Vertex TensorBoard resource and the write
// path for experiment time-series metrics. Experiments, runs, and time
// series under a TensorBoard instance are created lazily on first use.
package tensorboard

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/future"
	"github.com/go-a2a/aiplatform-go/internal/lro"
	"github.com/go-a2a/aiplatform-go/resource"
)

// Collection is the canonical-name segment of tensorboards.
const Collection = "tensorboards"

// Tensorboard is a Vertex TensorBoard instance.
type Tensorboard struct {
	*resource.Noun

	factory *client.Factory
	region  string
}

type options struct {
	project     string
	location    string
	labels      map[string]string
	description string

	sync    bool
	deps    []future.Awaitable
	manager *future.Manager
	factory *client.Factory
	logger  *slog.Logger
}

// Option is a functional option for tensorboard operations.
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

// WithDescription sets the instance description.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithSync makes the call block until the remote operation completes.
// Creation defaults to synchronous.
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

// Create creates a TensorBoard instance.
func Create(ctx context.Context, displayName string, opts ...Option) (*Tensorboard, error) {
	if displayName == "" {
		return nil, &resource.ValidationError{Field: "display_name", Message: "must not be empty"}
	}
	o := buildOptions(opts)
	snap := config.Snapshot()

	parent, err := config.CommonLocationPath(ctx, o.project, o.location)
	if err != nil {
		return nil, err
	}
	region := o.location
	if region == "" {
		if region, err = config.Location(); err != nil {
			return nil, err
		}
	}

	pb := &aiplatformpb.Tensorboard{
		DisplayName: displayName,
		Description: o.description,
		Labels:      resource.MergeLabels(o.labels),
	}
	if snap.EncryptionSpecKeyName != "" {
		pb.EncryptionSpec = &aiplatformpb.EncryptionSpec{KmsKeyName: snap.EncryptionSpecKeyName}
	}

	tb := &Tensorboard{
		Noun:    resource.NewPending(o.manager, o.logger),
		factory: o.factory,
		region:  region,
	}

	f := tb.StartCreation(ctx, "tensorboard.create", o.deps, func(ctx context.Context) (proto.Message, error) {
		cl, err := o.factory.Tensorboard(ctx, region)
		if err != nil {
			return nil, err
		}
		op, err := cl.CreateTensorboard(client.ContextWithMetadata(ctx), &aiplatformpb.CreateTensorboardRequest{
			Parent:      parent,
			Tensorboard: pb,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create tensorboard %q: %w", displayName, err)
		}
		return lro.Wait(ctx, op)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

// Get retrieves an existing TensorBoard instance by short id or canonical
// name.
func Get(ctx context.Context, nameOrID string, opts ...Option) (*Tensorboard, error) {
	o := buildOptions(opts)

	name, err := resource.ResolveName(ctx, Collection, nameOrID, o.project, o.location)
	if err != nil {
		return nil, err
	}

	tb := &Tensorboard{
		Noun:    resource.NewFromName(name, o.manager, o.logger),
		factory: o.factory,
		region:  name.Location,
	}
	if err := tb.Refresh(ctx, tb.fetch); err != nil {
		return nil, err
	}
	return tb, nil
}

func (tb *Tensorboard) fetch(ctx context.Context, name string) (proto.Message, error) {
	cl, err := tb.factory.Tensorboard(ctx, tb.region)
	if err != nil {
		return nil, err
	}
	return cl.GetTensorboard(client.ContextWithMetadata(ctx), &aiplatformpb.GetTensorboardRequest{Name: name})
}

// Body returns the cached tensorboard proto, blocking until creation
// resolves.
func (tb *Tensorboard) Body(ctx context.Context) (*aiplatformpb.Tensorboard, error) {
	msg, err := tb.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return msg.(*aiplatformpb.Tensorboard), nil
}

// Delete deletes the TensorBoard instance.
func (tb *Tensorboard) Delete(ctx context.Context, opts ...Option) (*future.Future[struct{}], error) {
	o := buildOptions(opts)

	f := tb.StartDeletion(ctx, "tensorboard.delete", func(ctx context.Context) error {
		name, err := tb.ResourceName(ctx)
		if err != nil {
			return err
		}
		cl, err := tb.factory.Tensorboard(ctx, tb.region)
		if err != nil {
			return err
		}
		op, err := cl.DeleteTensorboard(client.ContextWithMetadata(ctx), &aiplatformpb.DeleteTensorboardRequest{Name: name})
		if err != nil {
			return fmt.Errorf("failed to delete tensorboard %s: %w", name, err)
		}
		return lro.WaitEmpty(ctx, op)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// alreadyExists reports whether err is the service telling us the child is
// already there.
func alreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// EnsureExperiment returns the TensorBoard experiment with the given id
// under tb, creating it on first use.
func (tb *Tensorboard) EnsureExperiment(ctx context.Context, experimentID, displayName string) (*aiplatformpb.TensorboardExperiment, error) {
	parent, err := tb.ResourceName(ctx)
	if err != nil {
		return nil, err
	}
	cl, err := tb.factory.Tensorboard(ctx, tb.region)
	if err != nil {
		return nil, err
	}

	exp, err := cl.CreateTensorboardExperiment(client.ContextWithMetadata(ctx), &aiplatformpb.CreateTensorboardExperimentRequest{
		Parent:                  parent,
		TensorboardExperimentId: experimentID,
		TensorboardExperiment: &aiplatformpb.TensorboardExperiment{
			DisplayName: displayName,
		},
	})
	if err == nil {
		return exp, nil
	}
	if !alreadyExists(err) {
		return nil, fmt.Errorf("failed to create tensorboard experiment %q: %w", experimentID, err)
	}
	return cl.GetTensorboardExperiment(client.ContextWithMetadata(ctx), &aiplatformpb.GetTensorboardExperimentRequest{
		Name: parent + "/experiments/" + experimentID,
	})
}

// EnsureRun returns the run with the given id under the experiment, creating
// it on first use.
func (tb *Tensorboard) EnsureRun(ctx context.Context, experimentName, runID string) (*aiplatformpb.TensorboardRun, error) {
	cl, err := tb.factory.Tensorboard(ctx, tb.region)
	if err != nil {
		return nil, err
	}

	run, err := cl.CreateTensorboardRun(client.ContextWithMetadata(ctx), &aiplatformpb.CreateTensorboardRunRequest{
		Parent:           experimentName,
		TensorboardRunId: runID,
		TensorboardRun: &aiplatformpb.TensorboardRun{
			DisplayName: runID,
		},
	})
	if err == nil {
		return run, nil
	}
	if !alreadyExists(err) {
		return nil, fmt.Errorf("failed to create tensorboard run %q: %w", runID, err)
	}
	return cl.GetTensorboardRun(client.ContextWithMetadata(ctx), &aiplatformpb.GetTensorboardRunRequest{
		Name: experimentName + "/runs/" + runID,
	})
}
