// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package model provides the model registry resource: uploading trained
// artifacts, retrieving and deleting registered models.
package model

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/proto"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/future"
	"github.com/go-a2a/aiplatform-go/internal/lro"
	"github.com/go-a2a/aiplatform-go/resource"
	"github.com/go-a2a/aiplatform-go/staging"
)

// Collection is the canonical-name segment of models.
const Collection = "models"

// Model is a registered model.
type Model struct {
	*resource.Noun

	factory *client.Factory
	region  string
}

type options struct {
	project     string
	location    string
	labels      map[string]string
	description string

	artifactURI    string
	localArtifacts string
	containerImage string
	predictRoute   string
	healthRoute    string
	parentModel    string

	sync    bool
	deps    []future.Awaitable
	manager *future.Manager
	factory *client.Factory
	logger  *slog.Logger
}

// Option is a functional option for model operations.
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

// WithDescription sets the model description.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithArtifactURI points the upload at artifacts already in Cloud Storage.
func WithArtifactURI(uri string) Option {
	return func(o *options) { o.artifactURI = uri }
}

// WithLocalArtifacts stages a local file or directory to the configured
// staging bucket before the upload and uses the staged URI as the artifact
// location. Mutually exclusive with [WithArtifactURI].
func WithLocalArtifacts(path string) Option {
	return func(o *options) { o.localArtifacts = path }
}

// WithServingContainerImage sets the serving container image URI. Required
// for Upload.
func WithServingContainerImage(image string) Option {
	return func(o *options) { o.containerImage = image }
}

// WithPredictRoute sets the serving container's HTTP predict route.
func WithPredictRoute(route string) Option {
	return func(o *options) { o.predictRoute = route }
}

// WithHealthRoute sets the serving container's HTTP health route.
func WithHealthRoute(route string) Option {
	return func(o *options) { o.healthRoute = route }
}

// WithParentModel uploads the model as a new version of an existing model.
func WithParentModel(name string) Option {
	return func(o *options) { o.parentModel = name }
}

// WithSync makes the call block until the remote operation completes.
// Upload defaults to synchronous.
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

func validateUpload(o *options) error {
	if o.containerImage == "" {
		return &resource.ValidationError{Field: "serving_container_image", Message: "must not be empty"}
	}
	if o.artifactURI != "" && o.localArtifacts != "" {
		return &resource.ValidationError{Field: "artifact_uri", Message: "mutually exclusive with local artifacts"}
	}
	return nil
}

// buildProto assembles the model body for an upload request.
func buildProto(displayName string, o *options, snap config.Config) *aiplatformpb.Model {
	pb := &aiplatformpb.Model{
		DisplayName: displayName,
		Description: o.description,
		ArtifactUri: o.artifactURI,
		Labels:      resource.MergeLabels(o.labels),
		ContainerSpec: &aiplatformpb.ModelContainerSpec{
			ImageUri:     o.containerImage,
			PredictRoute: o.predictRoute,
			HealthRoute:  o.healthRoute,
		},
	}
	if snap.EncryptionSpecKeyName != "" {
		pb.EncryptionSpec = &aiplatformpb.EncryptionSpec{KmsKeyName: snap.EncryptionSpecKeyName}
	}
	return pb
}

// Upload registers a model from serving artifacts.
//
// When WithLocalArtifacts is given, the artifacts are staged to the
// configured staging bucket inside the returned future, so the staging step
// participates in dependency ordering like the RPC itself.
func Upload(ctx context.Context, displayName string, opts ...Option) (*Model, error) {
	if displayName == "" {
		return nil, &resource.ValidationError{Field: "display_name", Message: "must not be empty"}
	}
	o := buildOptions(opts)
	if err := validateUpload(o); err != nil {
		return nil, err
	}
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

	m := &Model{
		Noun:    resource.NewPending(o.manager, o.logger),
		factory: o.factory,
		region:  region,
	}

	f := m.StartCreation(ctx, "model.upload", o.deps, func(ctx context.Context) (proto.Message, error) {
		pb := buildProto(displayName, o, snap)
		if o.localArtifacts != "" {
			uri, err := staging.Stage(ctx, o.localArtifacts, staging.WithLogger(o.logger))
			if err != nil {
				return nil, err
			}
			pb.ArtifactUri = uri
		}

		cl, err := o.factory.Model(ctx, region)
		if err != nil {
			return nil, err
		}
		op, err := cl.UploadModel(client.ContextWithMetadata(ctx), &aiplatformpb.UploadModelRequest{
			Parent:      parent,
			ParentModel: o.parentModel,
			Model:       pb,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload model %q: %w", displayName, err)
		}
		resp, err := lro.Wait(ctx, op)
		if err != nil {
			return nil, err
		}
		// The operation response only names the model; fetch the body so the
		// cache is complete.
		return cl.GetModel(client.ContextWithMetadata(ctx), &aiplatformpb.GetModelRequest{Name: resp.GetModel()})
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Pending returns a model handle with no creation registered yet, for models
// produced as a side effect of another operation (a training pipeline's
// uploaded model). The producer registers the creation via StartCreation.
func Pending(region string, factory *client.Factory, mgr *future.Manager, logger *slog.Logger) *Model {
	if factory == nil {
		factory = client.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		Noun:    resource.NewPending(mgr, logger),
		factory: factory,
		region:  region,
	}
}

// Fetch retrieves the model body by canonical name through this handle's
// client, without touching the cache.
func (m *Model) Fetch(ctx context.Context, name string) (proto.Message, error) {
	return m.fetch(ctx, name)
}

// Get retrieves an existing model by short id or canonical name.
func Get(ctx context.Context, nameOrID string, opts ...Option) (*Model, error) {
	o := buildOptions(opts)

	name, err := resource.ResolveName(ctx, Collection, nameOrID, o.project, o.location)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Noun:    resource.NewFromName(name, o.manager, o.logger),
		factory: o.factory,
		region:  name.Location,
	}
	if err := m.Refresh(ctx, m.fetch); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) fetch(ctx context.Context, name string) (proto.Message, error) {
	cl, err := m.factory.Model(ctx, m.region)
	if err != nil {
		return nil, err
	}
	return cl.GetModel(client.ContextWithMetadata(ctx), &aiplatformpb.GetModelRequest{Name: name})
}

// ListOptions narrow a List call. The v1beta1 model service does not accept
// a server-side ordering clause, so only filtering is exposed.
type ListOptions struct {
	Filter string
}

// List returns the models under the configured (or overridden) parent.
func List(ctx context.Context, listOpts ListOptions, opts ...Option) ([]*Model, error) {
	o := buildOptions(opts)

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

	cl, err := o.factory.Model(ctx, region)
	if err != nil {
		return nil, err
	}

	it := cl.ListModels(client.ContextWithMetadata(ctx), &aiplatformpb.ListModelsRequest{
		Parent: parent,
		Filter: listOpts.Filter,
	})

	var out []*Model
	for {
		pb, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list models under %s: %w", parent, err)
		}
		name, err := resource.ParseName(pb.GetName())
		if err != nil {
			return nil, err
		}
		m := &Model{
			Noun:    resource.NewFromName(name, o.manager, o.logger),
			factory: o.factory,
			region:  name.Location,
		}
		m.SetBody(pb)
		out = append(out, m)
	}
	return out, nil
}

// Body returns the cached model proto, blocking until the upload resolves.
func (m *Model) Body(ctx context.Context) (*aiplatformpb.Model, error) {
	msg, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return msg.(*aiplatformpb.Model), nil
}

// Delete removes the model from the registry. Fails while the model is
// deployed to any endpoint.
func (m *Model) Delete(ctx context.Context, opts ...Option) (*future.Future[struct{}], error) {
	o := buildOptions(opts)

	f := m.StartDeletion(ctx, "model.delete", func(ctx context.Context) error {
		name, err := m.ResourceName(ctx)
		if err != nil {
			return err
		}
		cl, err := m.factory.Model(ctx, m.region)
		if err != nil {
			return err
		}
		op, err := cl.DeleteModel(client.ContextWithMetadata(ctx), &aiplatformpb.DeleteModelRequest{Name: name})
		if err != nil {
			return fmt.Errorf("failed to delete model %s: %w", name, err)
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
