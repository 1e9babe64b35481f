// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package training

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/dataset"
	"github.com/go-a2a/aiplatform-go/future"
	"github.com/go-a2a/aiplatform-go/internal/lro"
	"github.com/go-a2a/aiplatform-go/model"
	"github.com/go-a2a/aiplatform-go/resource"
)

// PipelineSpec describes a training pipeline run.
type PipelineSpec struct {
	// TaskDefinition is the training task schema URI.
	TaskDefinition string

	// TaskInputs are the schema-specific task parameters.
	TaskInputs *structpb.Value

	// Dataset is the managed dataset to train on; optional. A pending
	// dataset is awaited before the pipeline is submitted.
	Dataset *dataset.Dataset

	// AnnotationSchemaURI narrows the dataset annotations used for training.
	AnnotationSchemaURI string

	// Split fractions; all zero means the defaults (0.8/0.1/0.1) when a
	// dataset is set.
	TrainingFraction   float64
	ValidationFraction float64
	TestFraction       float64

	// ModelDisplayName names the uploaded model. Empty means the pipeline
	// produces no model.
	ModelDisplayName string

	// ModelContainer is the serving container for the uploaded model.
	ModelContainer *aiplatformpb.ModelContainerSpec
}

func (s *PipelineSpec) validate() error {
	if s.TaskDefinition == "" {
		return &resource.ValidationError{Field: "task_definition", Message: "must not be empty"}
	}
	if s.TaskInputs == nil {
		return &resource.ValidationError{Field: "task_inputs", Message: "must not be nil"}
	}
	return nil
}

// fractions returns the effective split, applying defaults only when a
// dataset is present and no fraction is set.
func (s *PipelineSpec) fractions() (training, validation, test float64, ok bool) {
	if s.Dataset == nil {
		return 0, 0, 0, false
	}
	if s.TrainingFraction == 0 && s.ValidationFraction == 0 && s.TestFraction == 0 {
		return DefaultTrainingFraction, DefaultValidationFraction, DefaultTestFraction, true
	}
	return s.TrainingFraction, s.ValidationFraction, s.TestFraction, true
}

// pipelineTerminal classifies a pipeline state.
func pipelineTerminal(p *aiplatformpb.TrainingPipeline) (done bool, err error) {
	switch p.GetState() {
	case aiplatformpb.PipelineState_PIPELINE_STATE_SUCCEEDED:
		return true, nil
	case aiplatformpb.PipelineState_PIPELINE_STATE_FAILED:
		return false, fmt.Errorf("training pipeline %s failed: %w", p.GetName(), status.ErrorProto(p.GetError()))
	case aiplatformpb.PipelineState_PIPELINE_STATE_CANCELLED:
		return false, fmt.Errorf("training pipeline %s was cancelled", p.GetName())
	default:
		return false, nil
	}
}

// Pipeline is a submitted training pipeline.
type Pipeline struct {
	*resource.Noun

	factory *client.Factory
	region  string
	model   *model.Model

	mu           sync.Mutex
	pipelineName string
}

func (p *Pipeline) setPipelineName(name string) {
	p.mu.Lock()
	p.pipelineName = name
	p.mu.Unlock()
}

// PipelineName returns the canonical pipeline name, or "" while the create
// RPC is still in flight.
func (p *Pipeline) PipelineName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pipelineName
}

// Model returns the handle for the model this pipeline uploads, or nil when
// no ModelDisplayName was given. The handle exists before the pipeline
// finishes; its creation future resolves when the pipeline succeeds.
func (p *Pipeline) Model() *model.Model {
	return p.model
}

// RunPipeline submits a training pipeline and tracks it to completion.
//
// When spec.ModelDisplayName is set, the returned pipeline carries a pending
// model whose creation future chains after the pipeline run, so the model
// can be handed to endpoint deployment before training ever starts.
func RunPipeline(ctx context.Context, displayName string, spec PipelineSpec, opts ...Option) (*Pipeline, error) {
	if displayName == "" {
		return nil, &resource.ValidationError{Field: "display_name", Message: "must not be empty"}
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	snap := config.Snapshot()

	parent, region, err := resolveParent(ctx, o)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Noun:    resource.NewPending(o.manager, o.logger),
		factory: o.factory,
		region:  region,
	}

	deps := o.deps
	if spec.Dataset != nil {
		deps = append(deps, spec.Dataset.Creation())
	}

	f := p.StartCreation(ctx, "training.pipeline", deps, func(ctx context.Context) (proto.Message, error) {
		pb := &aiplatformpb.TrainingPipeline{
			DisplayName:            displayName,
			TrainingTaskDefinition: spec.TaskDefinition,
			TrainingTaskInputs:     spec.TaskInputs,
			Labels:                 resource.MergeLabels(o.labels),
		}
		if snap.EncryptionSpecKeyName != "" {
			pb.EncryptionSpec = &aiplatformpb.EncryptionSpec{KmsKeyName: snap.EncryptionSpecKeyName}
		}
		if spec.ModelDisplayName != "" {
			pb.ModelToUpload = &aiplatformpb.Model{
				DisplayName:   spec.ModelDisplayName,
				ContainerSpec: spec.ModelContainer,
			}
		}
		if spec.Dataset != nil {
			dsName, err := spec.Dataset.Name(ctx)
			if err != nil {
				return nil, err
			}
			inputCfg := &aiplatformpb.InputDataConfig{
				DatasetId:           dsName.ID,
				AnnotationSchemaUri: spec.AnnotationSchemaURI,
			}
			if train, val, test, ok := spec.fractions(); ok {
				inputCfg.Split = &aiplatformpb.InputDataConfig_FractionSplit{
					FractionSplit: &aiplatformpb.FractionSplit{
						TrainingFraction:   train,
						ValidationFraction: val,
						TestFraction:       test,
					},
				}
			}
			pb.InputDataConfig = inputCfg
		}

		cl, err := o.factory.Pipeline(ctx, region)
		if err != nil {
			return nil, err
		}
		created, err := cl.CreateTrainingPipeline(client.ContextWithMetadata(ctx), &aiplatformpb.CreateTrainingPipelineRequest{
			Parent:           parent,
			TrainingPipeline: pb,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create training pipeline %q: %w", displayName, err)
		}
		p.setPipelineName(created.GetName())

		return lro.PollUntil(ctx, created.GetName(), func(ctx context.Context) (*aiplatformpb.TrainingPipeline, bool, error) {
			tp, err := cl.GetTrainingPipeline(client.ContextWithMetadata(ctx), &aiplatformpb.GetTrainingPipelineRequest{Name: created.GetName()})
			if err != nil {
				return nil, false, err
			}
			done, err := pipelineTerminal(tp)
			return tp, done, err
		}, o.lroOpts...)
	})

	if spec.ModelDisplayName != "" {
		m := model.Pending(region, o.factory, o.manager, o.logger)
		p.model = m
		m.StartCreation(ctx, "training.pipeline.model", []future.Awaitable{f}, func(ctx context.Context) (proto.Message, error) {
			body, err := p.Snapshot(ctx)
			if err != nil {
				return nil, err
			}
			uploaded := body.(*aiplatformpb.TrainingPipeline).GetModelToUpload().GetName()
			if uploaded == "" {
				return nil, fmt.Errorf("training pipeline %s produced no model", p.PipelineName())
			}
			return m.Fetch(ctx, uploaded)
		})
	}

	if o.sync {
		if _, err := f.Wait(ctx); err != nil {
			return nil, err
		}
		if p.model != nil {
			if err := p.model.WaitForCreation(ctx); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Cancel asks the service to stop the pipeline run.
func (p *Pipeline) Cancel(ctx context.Context) error {
	name := p.PipelineName()
	if name == "" {
		return fmt.Errorf("training pipeline not yet submitted")
	}
	cl, err := p.factory.Pipeline(ctx, p.region)
	if err != nil {
		return err
	}
	if err := cl.CancelTrainingPipeline(client.ContextWithMetadata(ctx), &aiplatformpb.CancelTrainingPipelineRequest{Name: name}); err != nil {
		return fmt.Errorf("failed to cancel training pipeline %s: %w", name, err)
	}
	return nil
}
