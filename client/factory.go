// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	aiplatform "cloud.google.com/go/aiplatform/apiv1beta1"
	"google.golang.org/api/option"

	"github.com/go-a2a/aiplatform-go/config"
)

// Service identifies one of the remote service surfaces.
type Service string

const (
	ServiceDataset     Service = "dataset"
	ServiceModel       Service = "model"
	ServiceEndpoint    Service = "endpoint"
	ServiceJob         Service = "job"
	ServicePipeline    Service = "pipeline"
	ServiceTensorboard Service = "tensorboard"
	ServiceMetadata    Service = "metadata"
	ServicePrediction  Service = "prediction"
)

// Key identifies one cached client.
type Key struct {
	Service   Service
	Region    string
	Transport config.Transport
	// Generation is the config generation the client was built under; it
	// stands in for a credentials fingerprint, since credentials only change
	// through config.Init.
	Generation int64
}

// Factory memoizes one client per [Key]. The cache is append-only and safe
// for concurrent use.
type Factory struct {
	mu      sync.Mutex
	clients map[Key]any
	logger  *slog.Logger
}

// FactoryOption is a functional option for configuring a [Factory].
type FactoryOption func(*Factory)

// WithLogger sets a custom logger for the factory.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// NewFactory creates an empty client factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		clients: make(map[Key]any),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var (
	defaultOnce    sync.Once
	defaultFactory *Factory
)

// Default returns the process-wide factory.
func Default() *Factory {
	defaultOnce.Do(func() {
		defaultFactory = NewFactory()
	})
	return defaultFactory
}

// resolveRegion applies the default location when region is empty.
func resolveRegion(region string) (string, error) {
	if region != "" {
		if err := config.ValidateRegion(region); err != nil {
			return "", err
		}
		return region, nil
	}
	return config.Location()
}

// clientOptions assembles the credential and endpoint options for one region.
func clientOptions(ctx context.Context, snap config.Config, region string) ([]option.ClientOption, error) {
	opts := make([]option.ClientOption, 0, 2)

	switch {
	case snap.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(snap.TokenSource))
	default:
		creds, err := config.DetectCredentials(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithAuthCredentials(creds))
	}

	if snap.APITransport.REST() {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)))
	} else {
		opts = append(opts, option.WithEndpoint(config.RegionalEndpoint(region)))
	}
	return opts, nil
}

// get memoizes the client built by grpcNew or restNew for the key derived
// from the current config.
func get[T any](f *Factory, ctx context.Context, svc Service, region string, grpcNew, restNew func(context.Context, ...option.ClientOption) (T, error)) (T, error) {
	var zero T

	region, err := resolveRegion(region)
	if err != nil {
		return zero, err
	}

	snap := config.Snapshot()
	key := Key{Service: svc, Region: region, Transport: snap.APITransport, Generation: snap.Generation}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.clients[key]; ok {
		return cached.(T), nil
	}

	opts, err := clientOptions(ctx, snap, region)
	if err != nil {
		return zero, err
	}

	construct := grpcNew
	if snap.APITransport.REST() {
		construct = restNew
	}
	cl, err := construct(ctx, opts...)
	if err != nil {
		return zero, fmt.Errorf("failed to create %s client for %s: %w", svc, region, err)
	}

	f.clients[key] = cl
	f.logger.InfoContext(ctx, "service client created",
		slog.String("service", string(svc)),
		slog.String("region", region),
		slog.String("transport", string(snap.APITransport)),
	)
	return cl, nil
}

// Dataset returns the dataset service client for region ("" means the
// configured default).
func (f *Factory) Dataset(ctx context.Context, region string) (*aiplatform.DatasetClient, error) {
	return get(f, ctx, ServiceDataset, region, aiplatform.NewDatasetClient, aiplatform.NewDatasetRESTClient)
}

// Model returns the model service client for region.
func (f *Factory) Model(ctx context.Context, region string) (*aiplatform.ModelClient, error) {
	return get(f, ctx, ServiceModel, region, aiplatform.NewModelClient, aiplatform.NewModelRESTClient)
}

// Endpoint returns the endpoint service client for region.
func (f *Factory) Endpoint(ctx context.Context, region string) (*aiplatform.EndpointClient, error) {
	return get(f, ctx, ServiceEndpoint, region, aiplatform.NewEndpointClient, aiplatform.NewEndpointRESTClient)
}

// Job returns the job service client for region.
func (f *Factory) Job(ctx context.Context, region string) (*aiplatform.JobClient, error) {
	return get(f, ctx, ServiceJob, region, aiplatform.NewJobClient, aiplatform.NewJobRESTClient)
}

// Pipeline returns the pipeline service client for region.
func (f *Factory) Pipeline(ctx context.Context, region string) (*aiplatform.PipelineClient, error) {
	return get(f, ctx, ServicePipeline, region, aiplatform.NewPipelineClient, aiplatform.NewPipelineRESTClient)
}

// Tensorboard returns the tensorboard service client for region.
func (f *Factory) Tensorboard(ctx context.Context, region string) (*aiplatform.TensorboardClient, error) {
	return get(f, ctx, ServiceTensorboard, region, aiplatform.NewTensorboardClient, aiplatform.NewTensorboardRESTClient)
}

// Metadata returns the metadata service client for region.
func (f *Factory) Metadata(ctx context.Context, region string) (*aiplatform.MetadataClient, error) {
	return get(f, ctx, ServiceMetadata, region, aiplatform.NewMetadataClient, aiplatform.NewMetadataRESTClient)
}

// Prediction returns the prediction service client for region.
func (f *Factory) Prediction(ctx context.Context, region string) (*aiplatform.PredictionClient, error) {
	return get(f, ctx, ServicePrediction, region, aiplatform.NewPredictionClient, aiplatform.NewPredictionRESTClient)
}

// Close closes every cached client and empties the cache.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for key, cl := range f.clients {
		if closer, ok := cl.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to close %s client: %w", key.Service, err)
			}
		}
	}
	f.clients = make(map[Key]any)
	return firstErr
}
