// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package endpoint provides the serving endpoint resource: creation, model
// deployment with traffic management, and online prediction.
package endpoint

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
	"github.com/go-a2a/aiplatform-go/internal/xmaps"
	"github.com/go-a2a/aiplatform-go/model"
	"github.com/go-a2a/aiplatform-go/resource"
)

// Collection is the canonical-name segment of endpoints.
const Collection = "endpoints"

// Endpoint is a serving endpoint.
type Endpoint struct {
	*resource.Noun

	factory *client.Factory
	region  string
}

type options struct {
	project     string
	location    string
	labels      map[string]string
	description string

	trafficPercentage int32
	machineType       string
	minReplicas       int32
	maxReplicas       int32
	serviceAccount    string
	deployedName      string

	sync    bool
	deps    []future.Awaitable
	manager *future.Manager
	factory *client.Factory
	logger  *slog.Logger
}

// Option is a functional option for endpoint operations.
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

// WithDescription sets the endpoint description.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithTrafficPercentage directs this share of traffic at a newly deployed
// model; existing deployed models keep the remainder in their current
// proportions. Defaults to 100.
func WithTrafficPercentage(pct int32) Option {
	return func(o *options) { o.trafficPercentage = pct }
}

// WithMachineType selects dedicated serving hardware. Without it the deploy
// uses automatic resources.
func WithMachineType(machineType string) Option {
	return func(o *options) { o.machineType = machineType }
}

// WithReplicaRange bounds the autoscaler for a deployment.
func WithReplicaRange(minReplicas, maxReplicas int32) Option {
	return func(o *options) {
		o.minReplicas = minReplicas
		o.maxReplicas = maxReplicas
	}
}

// WithDeployedDisplayName names the deployed model on the endpoint.
func WithDeployedDisplayName(name string) Option {
	return func(o *options) { o.deployedName = name }
}

// WithServiceAccount runs the deployed container as the given service
// account instead of the configured default.
func WithServiceAccount(sa string) Option {
	return func(o *options) { o.serviceAccount = sa }
}

// WithSync makes the call block until the remote operation completes.
// Endpoint operations default to synchronous.
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
		trafficPercentage: 100,
		minReplicas:       1,
		maxReplicas:       1,
		sync:              true,
		factory:           client.Default(),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Create creates a serving endpoint.
func Create(ctx context.Context, displayName string, opts ...Option) (*Endpoint, error) {
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

	pb := &aiplatformpb.Endpoint{
		DisplayName: displayName,
		Description: o.description,
		Labels:      resource.MergeLabels(o.labels),
		Network:     snap.Network,
	}
	if snap.EncryptionSpecKeyName != "" {
		pb.EncryptionSpec = &aiplatformpb.EncryptionSpec{KmsKeyName: snap.EncryptionSpecKeyName}
	}

	e := &Endpoint{
		Noun:    resource.NewPending(o.manager, o.logger),
		factory: o.factory,
		region:  region,
	}

	f := e.StartCreation(ctx, "endpoint.create", o.deps, func(ctx context.Context) (proto.Message, error) {
		cl, err := o.factory.Endpoint(ctx, region)
		if err != nil {
			return nil, err
		}
		op, err := cl.CreateEndpoint(client.ContextWithMetadata(ctx), &aiplatformpb.CreateEndpointRequest{
			Parent:   parent,
			Endpoint: pb,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create endpoint %q: %w", displayName, err)
		}
		return lro.Wait(ctx, op)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Get retrieves an existing endpoint by short id or canonical name.
func Get(ctx context.Context, nameOrID string, opts ...Option) (*Endpoint, error) {
	o := buildOptions(opts)

	name, err := resource.ResolveName(ctx, Collection, nameOrID, o.project, o.location)
	if err != nil {
		return nil, err
	}

	e := &Endpoint{
		Noun:    resource.NewFromName(name, o.manager, o.logger),
		factory: o.factory,
		region:  name.Location,
	}
	if err := e.Refresh(ctx, e.fetch); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Endpoint) fetch(ctx context.Context, name string) (proto.Message, error) {
	cl, err := e.factory.Endpoint(ctx, e.region)
	if err != nil {
		return nil, err
	}
	return cl.GetEndpoint(client.ContextWithMetadata(ctx), &aiplatformpb.GetEndpointRequest{Name: name})
}

// ListOptions narrow a List call. The v1beta1 endpoint service does not
// accept a server-side ordering clause, so only filtering is exposed.
type ListOptions struct {
	Filter string
}

// List returns the endpoints under the configured (or overridden) parent.
func List(ctx context.Context, listOpts ListOptions, opts ...Option) ([]*Endpoint, error) {
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

	cl, err := o.factory.Endpoint(ctx, region)
	if err != nil {
		return nil, err
	}

	it := cl.ListEndpoints(client.ContextWithMetadata(ctx), &aiplatformpb.ListEndpointsRequest{
		Parent: parent,
		Filter: listOpts.Filter,
	})

	var out []*Endpoint
	for {
		pb, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list endpoints under %s: %w", parent, err)
		}
		name, err := resource.ParseName(pb.GetName())
		if err != nil {
			return nil, err
		}
		e := &Endpoint{
			Noun:    resource.NewFromName(name, o.manager, o.logger),
			factory: o.factory,
			region:  name.Location,
		}
		e.SetBody(pb)
		out = append(out, e)
	}
	return out, nil
}

// Body returns the cached endpoint proto, blocking until creation resolves.
func (e *Endpoint) Body(ctx context.Context) (*aiplatformpb.Endpoint, error) {
	msg, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return msg.(*aiplatformpb.Endpoint), nil
}

// allocateTraffic computes the new traffic split after deploying newID.
// Existing deployed models share the remainder in their current proportions;
// rounding drift lands on the new model so the split always sums to 100.
func allocateTraffic(current map[string]int32, newID string, pct int32) map[string]int32 {
	out := make(map[string]int32, len(current)+1)
	if pct >= 100 || len(current) == 0 {
		out[newID] = 100
		return out
	}

	var total int32
	for _, v := range current {
		total += v
	}
	remainder := 100 - pct
	var assigned int32
	for id, v := range current {
		share := int32(0)
		if total > 0 {
			share = v * remainder / total
		}
		out[id] = share
		assigned += share
	}
	out[newID] = 100 - assigned
	return out
}

// removeTraffic drops deployedID from the split and rescales the rest to sum
// to 100. When every survivor had zero traffic the split is divided evenly.
func removeTraffic(current map[string]int32, deployedID string) map[string]int32 {
	out := make(map[string]int32, len(current))
	var total int32
	for id, v := range current {
		if id == deployedID {
			continue
		}
		out[id] = v
		total += v
	}
	if len(out) == 0 {
		return out
	}

	ids := xmaps.SortedKeys(out)
	var assigned int32
	for _, id := range ids {
		if total == 0 {
			out[id] = 100 / int32(len(ids))
		} else {
			out[id] = out[id] * 100 / total
		}
		assigned += out[id]
	}
	out[ids[len(ids)-1]] += 100 - assigned
	return out
}

// Deploy deploys m to the endpoint. It runs as a mutation on the endpoint
// chained after the model's creation, so an in-flight upload is awaited
// automatically.
func (e *Endpoint) Deploy(ctx context.Context, m *model.Model, opts ...Option) (*future.Future[proto.Message], error) {
	o := buildOptions(opts)
	if o.trafficPercentage < 0 || o.trafficPercentage > 100 {
		return nil, &resource.ValidationError{Field: "traffic_percentage", Message: "must be in [0, 100]"}
	}
	snap := config.Snapshot()

	deps := append(o.deps, m.Creation())
	f := e.StartMutation(ctx, "endpoint.deploy", deps, func(ctx context.Context) (proto.Message, error) {
		endpointName, err := e.ResourceName(ctx)
		if err != nil {
			return nil, err
		}
		modelName, err := m.ResourceName(ctx)
		if err != nil {
			return nil, err
		}

		// Fetch a fresh body so the traffic split reflects deployments made
		// outside this instance.
		cur, err := e.fetch(ctx, endpointName)
		if err != nil {
			return nil, err
		}
		body := cur.(*aiplatformpb.Endpoint)

		deployed := &aiplatformpb.DeployedModel{
			Model:       modelName,
			DisplayName: o.deployedName,
		}
		sa := o.serviceAccount
		if sa == "" {
			sa = snap.ServiceAccount
		}
		deployed.ServiceAccount = sa
		if o.machineType != "" {
			deployed.PredictionResources = &aiplatformpb.DeployedModel_DedicatedResources{
				DedicatedResources: &aiplatformpb.DedicatedResources{
					MachineSpec:     &aiplatformpb.MachineSpec{MachineType: o.machineType},
					MinReplicaCount: o.minReplicas,
					MaxReplicaCount: o.maxReplicas,
				},
			}
		} else {
			deployed.PredictionResources = &aiplatformpb.DeployedModel_AutomaticResources{
				AutomaticResources: &aiplatformpb.AutomaticResources{
					MinReplicaCount: o.minReplicas,
					MaxReplicaCount: o.maxReplicas,
				},
			}
		}

		cl, err := e.factory.Endpoint(ctx, e.region)
		if err != nil {
			return nil, err
		}
		op, err := cl.DeployModel(client.ContextWithMetadata(ctx), &aiplatformpb.DeployModelRequest{
			Endpoint:      endpointName,
			DeployedModel: deployed,
			// Server substitutes the assigned id for the empty key.
			TrafficSplit: allocateTraffic(body.GetTrafficSplit(), "0", o.trafficPercentage),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to deploy model %s to %s: %w", modelName, endpointName, err)
		}
		if _, err := lro.Wait(ctx, op); err != nil {
			return nil, err
		}
		return e.fetch(ctx, endpointName)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Undeploy removes a deployed model and rescales remaining traffic.
func (e *Endpoint) Undeploy(ctx context.Context, deployedModelID string, opts ...Option) (*future.Future[proto.Message], error) {
	if deployedModelID == "" {
		return nil, &resource.ValidationError{Field: "deployed_model_id", Message: "must not be empty"}
	}
	o := buildOptions(opts)

	f := e.StartMutation(ctx, "endpoint.undeploy", o.deps, func(ctx context.Context) (proto.Message, error) {
		endpointName, err := e.ResourceName(ctx)
		if err != nil {
			return nil, err
		}
		cur, err := e.fetch(ctx, endpointName)
		if err != nil {
			return nil, err
		}
		body := cur.(*aiplatformpb.Endpoint)

		cl, err := e.factory.Endpoint(ctx, e.region)
		if err != nil {
			return nil, err
		}
		op, err := cl.UndeployModel(client.ContextWithMetadata(ctx), &aiplatformpb.UndeployModelRequest{
			Endpoint:        endpointName,
			DeployedModelId: deployedModelID,
			TrafficSplit:    removeTraffic(body.GetTrafficSplit(), deployedModelID),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to undeploy %s from %s: %w", deployedModelID, endpointName, err)
		}
		if _, err := lro.Wait(ctx, op); err != nil {
			return nil, err
		}
		return e.fetch(ctx, endpointName)
	})

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// UndeployAll removes every deployed model from the endpoint, sequentially
// through the mutation chain.
func (e *Endpoint) UndeployAll(ctx context.Context, opts ...Option) error {
	body, err := e.Body(ctx)
	if err != nil {
		return err
	}
	syncOpts := append(opts, WithSync(true))
	for _, dm := range body.GetDeployedModels() {
		if _, err := e.Undeploy(ctx, dm.GetId(), syncOpts...); err != nil {
			return err
		}
	}
	return nil
}

// Delete deletes the endpoint. Deployed models must be undeployed first; use
// [Endpoint.UndeployAll].
func (e *Endpoint) Delete(ctx context.Context, opts ...Option) (*future.Future[struct{}], error) {
	o := buildOptions(opts)

	f := e.StartDeletion(ctx, "endpoint.delete", func(ctx context.Context) error {
		name, err := e.ResourceName(ctx)
		if err != nil {
			return err
		}
		cl, err := e.factory.Endpoint(ctx, e.region)
		if err != nil {
			return err
		}
		op, err := cl.DeleteEndpoint(client.ContextWithMetadata(ctx), &aiplatformpb.DeleteEndpointRequest{Name: name})
		if err != nil {
			return fmt.Errorf("failed to delete endpoint %s: %w", name, err)
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

// Predict sends an online prediction request to the endpoint.
func (e *Endpoint) Predict(ctx context.Context, instances []*structpb.Value, parameters *structpb.Value) (*aiplatformpb.PredictResponse, error) {
	name, err := e.ResourceName(ctx)
	if err != nil {
		return nil, err
	}
	cl, err := e.factory.Prediction(ctx, e.region)
	if err != nil {
		return nil, err
	}
	resp, err := cl.Predict(client.ContextWithMetadata(ctx), &aiplatformpb.PredictRequest{
		Endpoint:   name,
		Instances:  instances,
		Parameters: parameters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to predict on %s: %w", name, err)
	}
	return resp, nil
}
