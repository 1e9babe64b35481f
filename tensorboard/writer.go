// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package tensorboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/aiplatform/apiv1beta1/aiplatformpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/go-a2a/aiplatform-go/client"
	"github.com/go-a2a/aiplatform-go/internal/xmaps"
)

// Writer appends scalar time-series points to one TensorBoard run. Time
// series are created lazily per tag; the tag-to-id mapping is cached for the
// writer's lifetime.
//
// A Writer is safe for concurrent use, but points for one tag must be
// written with increasing steps.
type Writer struct {
	factory *client.Factory
	region  string
	runName string

	mu  sync.Mutex
	ids map[string]string // tag -> time series id
}

// NewWriter returns a writer for the given run canonical name
// ("projects/.../tensorboards/*/experiments/*/runs/*").
func NewWriter(factory *client.Factory, region, runName string) *Writer {
	if factory == nil {
		factory = client.Default()
	}
	return &Writer{
		factory: factory,
		region:  region,
		runName: runName,
		ids:     make(map[string]string),
	}
}

// RunName returns the canonical run name this writer appends to.
func (w *Writer) RunName() string {
	return w.runName
}

// timeSeriesID extracts the trailing id segment of a time series canonical
// name.
func timeSeriesID(name string) string {
	return name[strings.LastIndex(name, "/")+1:]
}

// ensureTag resolves the time series id for tag, creating the series on
// first use and falling back to a list lookup when another writer created it
// concurrently.
func (w *Writer) ensureTag(ctx context.Context, tag string) (string, error) {
	w.mu.Lock()
	id, seen := w.ids[tag]
	w.mu.Unlock()
	if seen {
		return id, nil
	}

	cl, err := w.factory.Tensorboard(ctx, w.region)
	if err != nil {
		return "", err
	}
	ts, err := cl.CreateTensorboardTimeSeries(client.ContextWithMetadata(ctx), &aiplatformpb.CreateTensorboardTimeSeriesRequest{
		Parent: w.runName,
		TensorboardTimeSeries: &aiplatformpb.TensorboardTimeSeries{
			DisplayName: tag,
			ValueType:   aiplatformpb.TensorboardTimeSeries_SCALAR,
		},
	})
	switch {
	case err == nil:
		id = timeSeriesID(ts.GetName())
	case alreadyExists(err):
		if id, err = w.lookupTag(ctx, tag); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("failed to create time series %q under %s: %w", tag, w.runName, err)
	}

	w.mu.Lock()
	w.ids[tag] = id
	w.mu.Unlock()
	return id, nil
}

// lookupTag finds an existing time series by display name.
func (w *Writer) lookupTag(ctx context.Context, tag string) (string, error) {
	cl, err := w.factory.Tensorboard(ctx, w.region)
	if err != nil {
		return "", err
	}
	it := cl.ListTensorboardTimeSeries(client.ContextWithMetadata(ctx), &aiplatformpb.ListTensorboardTimeSeriesRequest{
		Parent: w.runName,
		Filter: fmt.Sprintf("display_name = %q", tag),
	})
	for {
		ts, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to list time series under %s: %w", w.runName, err)
		}
		if ts.GetDisplayName() == tag {
			return timeSeriesID(ts.GetName()), nil
		}
	}
	return "", fmt.Errorf("time series %q not found under %s", tag, w.runName)
}

// WriteScalars appends one point per tag at the given step.
func (w *Writer) WriteScalars(ctx context.Context, step int64, wallTime time.Time, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}

	data := make([]*aiplatformpb.TimeSeriesData, 0, len(values))
	for _, tag := range xmaps.SortedKeys(values) {
		id, err := w.ensureTag(ctx, tag)
		if err != nil {
			return err
		}
		data = append(data, &aiplatformpb.TimeSeriesData{
			TensorboardTimeSeriesId: id,
			ValueType:               aiplatformpb.TensorboardTimeSeries_SCALAR,
			Values: []*aiplatformpb.TimeSeriesDataPoint{{
				WallTime: timestamppb.New(wallTime),
				Step:     step,
				Value: &aiplatformpb.TimeSeriesDataPoint_Scalar{
					Scalar: &aiplatformpb.Scalar{Value: values[tag]},
				},
			}},
		})
	}

	cl, err := w.factory.Tensorboard(ctx, w.region)
	if err != nil {
		return err
	}
	_, err = cl.WriteTensorboardRunData(client.ContextWithMetadata(ctx), &aiplatformpb.WriteTensorboardRunDataRequest{
		TensorboardRun: w.runName,
		TimeSeriesData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to write run data to %s: %w", w.runName, err)
	}
	return nil
}
