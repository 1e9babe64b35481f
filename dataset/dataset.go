// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset provides the managed dataset resource.
package dataset

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/future"
	"github.com/go-a2a/aiplatform-go/internal/lro"
	"github.com/go-a2a/aiplatform-go/resource"
)

// Collection is the canonical-name segment of datasets.
const Collection = "datasets"

// Well-known metadata schema URIs.
const (
	TabularSchema    = "gs://google-cloud-aiplatform/schema/dataset/metadata/tabular_1.0.0.yaml"
	ImageSchema      = "gs://google-cloud-aiplatform/schema/dataset/metadata/image_1.0.0.yaml"
	TextSchema       = "gs://google-cloud-aiplatform/schema/dataset/metadata/text_1.0.0.yaml"
	VideoSchema      = "gs://google-cloud-aiplatform/schema/dataset/metadata/video_1.0.0.yaml"
	TimeSeriesSchema = "gs://google-cloud-aiplatform/schema/dataset/metadata/time_series_1.0.0.yaml"
)

// Dataset is a managed dataset resource.
type Dataset struct {
	*resource.Noun

	factory *client.Factory
	region  string
}

type options struct {
	project     string
	location    string
	labels      map[string]string
	description string
	schemaURI   string
	metadata    *structpb.Value

	sync    bool
	deps    []future.Awaitable
	manager *future.Manager
	factory *client.Factory
	logger  *slog.Logger
}

// Option is a functional option for dataset operations.
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

// WithDescription sets the dataset description.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithMetadataSchemaURI selects the dataset kind. Defaults to [TabularSchema].
func WithMetadataSchemaURI(uri string) Option {
	return func(o *options) { o.schemaURI = uri }
}

// WithMetadata sets the schema-specific dataset metadata.
func WithMetadata(md *structpb.Value) Option {
	return func(o *options) { o.metadata = md }
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
		schemaURI: TabularSchema,
		sync:      true,
		factory:   client.Default(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// buildProto assembles the create request body from the options and the
// configured defaults.
func buildProto(displayName string, o *options, snap config.Config) *aiplatformpb.Dataset {
	pb := &aiplatformpb.Dataset{
		DisplayName:       displayName,
		Description:       o.description,
		MetadataSchemaUri: o.schemaURI,
		Metadata:          o.metadata,
		Labels:            resource.MergeLabels(o.labels),
	}
	if pb.Metadata == nil {
		pb.Metadata = structpb.NewStructValue(&structpb.Struct{})
	}
	if snap.EncryptionSpecKeyName != "" {
		pb.EncryptionSpec = &aiplatformpb.EncryptionSpec{KmsKeyName: snap.EncryptionSpecKeyName}
	}
	return pb
}

// Create creates a managed dataset.
//
// With WithSync(false) the returned Dataset exists before the remote resource
// does: its canonical name is unknown and reads block on the creation future.
func Create(ctx context.Context, displayName string, opts ...Option) (*Dataset, error) {
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

	pb := buildProto(displayName, o, snap)
	d := &Dataset{
		Noun:    resource.NewPending(o.manager, o.logger),
		factory: o.factory,
		region:  region,
	}

	f := d.StartCreation(ctx, "dataset.create", o.deps, func(ctx context.Context) (proto.Message, error) {
		cl, err := o.factory.Dataset(ctx, region)
		if err != nil {
			return nil, err
		}
		op, err := cl.CreateDataset(client.ContextWithMetadata(ctx), &aiplatformpb.CreateDatasetRequest{
			Parent:  parent,
			Dataset: pb,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create dataset %q: %w", displayName, err)
		}
		return lro.Wait(ctx, op)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Get retrieves an existing dataset by short id or canonical name and
// populates its cached body.
func Get(ctx context.Context, nameOrID string, opts ...Option) (*Dataset, error) {
	o := buildOptions(opts)

	name, err := resource.ResolveName(ctx, Collection, nameOrID, o.project, o.location)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		Noun:    resource.NewFromName(name, o.manager, o.logger),
		factory: o.factory,
		region:  name.Location,
	}
	if err := d.Refresh(ctx, d.fetch); err != nil {
		return nil, err
	}
	return d, nil
}

// fetch is the GET closure handed to the resource base.
func (d *Dataset) fetch(ctx context.Context, name string) (proto.Message, error) {
	cl, err := d.factory.Dataset(ctx, d.region)
	if err != nil {
		return nil, err
	}
	return cl.GetDataset(client.ContextWithMetadata(ctx), &aiplatformpb.GetDatasetRequest{Name: name})
}

// ListOptions narrow a List call.
type ListOptions struct {
	Filter  string
	OrderBy string
}

// List returns the datasets under the configured (or overridden) parent.
func List(ctx context.Context, listOpts ListOptions, opts ...Option) ([]*Dataset, error) {
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

	cl, err := o.factory.Dataset(ctx, region)
	if err != nil {
		return nil, err
	}

	it := cl.ListDatasets(client.ContextWithMetadata(ctx), &aiplatformpb.ListDatasetsRequest{
		Parent:  parent,
		Filter:  listOpts.Filter,
		OrderBy: listOpts.OrderBy,
	})

	var out []*Dataset
	for {
		pb, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list datasets under %s: %w", parent, err)
		}
		name, err := resource.ParseName(pb.GetName())
		if err != nil {
			return nil, err
		}
		d := &Dataset{
			Noun:    resource.NewFromName(name, o.manager, o.logger),
			factory: o.factory,
			region:  name.Location,
		}
		d.SetBody(pb)
		out = append(out, d)
	}
	return out, nil
}

// Body returns the cached dataset proto, blocking until creation resolves.
func (d *Dataset) Body(ctx context.Context) (*aiplatformpb.Dataset, error) {
	msg, err := d.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return msg.(*aiplatformpb.Dataset), nil
}

// ImportData imports data files into the dataset. The mutation is chained
// after the instance's previous mutation.
func (d *Dataset) ImportData(ctx context.Context, configs []*aiplatformpb.ImportDataConfig, opts ...Option) (*future.Future[proto.Message], error) {
	if len(configs) == 0 {
		return nil, &resource.ValidationError{Field: "import_configs", Message: "must not be empty"}
	}
	o := buildOptions(opts)

	f := d.StartMutation(ctx, "dataset.import", o.deps, func(ctx context.Context) (proto.Message, error) {
		name, err := d.ResourceName(ctx)
		if err != nil {
			return nil, err
		}
		cl, err := d.factory.Dataset(ctx, d.region)
		if err != nil {
			return nil, err
		}
		op, err := cl.ImportData(client.ContextWithMetadata(ctx), &aiplatformpb.ImportDataRequest{
			Name:          name,
			ImportConfigs: configs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to import data into %s: %w", name, err)
		}
		if _, err := lro.Wait(ctx, op); err != nil {
			return nil, err
		}
		// Refetch so the cache sees the new item count.
		return d.fetch(ctx, name)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ExportData exports the dataset to outputURIPrefix on Cloud Storage and
// returns the URIs of the exported files. The call blocks until the export
// operation finishes.
func (d *Dataset) ExportData(ctx context.Context, outputURIPrefix string) ([]string, error) {
	if outputURIPrefix == "" {
		return nil, &resource.ValidationError{Field: "output_uri_prefix", Message: "must not be empty"}
	}

	name, err := d.ResourceName(ctx)
	if err != nil {
		return nil, err
	}
	cl, err := d.factory.Dataset(ctx, d.region)
	if err != nil {
		return nil, err
	}
	op, err := cl.ExportData(client.ContextWithMetadata(ctx), &aiplatformpb.ExportDataRequest{
		Name: name,
		ExportConfig: &aiplatformpb.ExportDataConfig{
			Destination: &aiplatformpb.ExportDataConfig_GcsDestination{
				GcsDestination: &aiplatformpb.GcsDestination{OutputUriPrefix: outputURIPrefix},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export data from %s: %w", name, err)
	}
	resp, err := lro.Wait(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("export from %s did not complete: %w", name, err)
	}
	return resp.GetExportedFiles(), nil
}

// Delete deletes the dataset. The deletion depends on the instance's last
// mutation.
func (d *Dataset) Delete(ctx context.Context, opts ...Option) (*future.Future[struct{}], error) {
	o := buildOptions(opts)

	f := d.StartDeletion(ctx, "dataset.delete", func(ctx context.Context) error {
		name, err := d.ResourceName(ctx)
		if err != nil {
			return err
		}
		cl, err := d.factory.Dataset(ctx, d.region)
		if err != nil {
			return err
		}
		op, err := cl.DeleteDataset(client.ContextWithMetadata(ctx), &aiplatformpb.DeleteDatasetRequest{Name: name})
		if err != nil {
			return fmt.Errorf("failed to delete dataset %s: %w", name, err)
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
