// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"

	"github.com/go-a2a/aiplatform-go/resource"
)

// ClassificationMetrics is an evaluation summary for a classification run:
// an optional confusion matrix and an optional ROC curve.
type ClassificationMetrics struct {
	DisplayName string

	// Confusion matrix. Matrix must be square with one row per label.
	Labels []string
	Matrix [][]int64

	// ROC curve. The three slices must have equal lengths.
	FPR       []float64
	TPR       []float64
	Threshold []float64
}

func (m *ClassificationMetrics) validate() error {
	hasMatrix := len(m.Labels) > 0 || len(m.Matrix) > 0
	hasCurve := len(m.FPR) > 0 || len(m.TPR) > 0 || len(m.Threshold) > 0
	if !hasMatrix && !hasCurve {
		return &resource.ValidationError{Field: "classification_metrics", Message: "must carry a confusion matrix or an ROC curve"}
	}

	if hasMatrix {
		if len(m.Matrix) != len(m.Labels) {
			return &resource.ValidationError{
				Field:   "matrix",
				Message: fmt.Sprintf("%d rows for %d labels", len(m.Matrix), len(m.Labels)),
			}
		}
		for i, row := range m.Matrix {
			if len(row) != len(m.Labels) {
				return &resource.ValidationError{
					Field:   "matrix",
					Message: fmt.Sprintf("row %d has %d columns, want %d", i, len(row), len(m.Labels)),
				}
			}
		}
	}

	if hasCurve {
		if len(m.FPR) != len(m.TPR) || len(m.TPR) != len(m.Threshold) {
			return &resource.ValidationError{
				Field:   "roc_curve",
				Message: fmt.Sprintf("fpr/tpr/threshold lengths differ: %d/%d/%d", len(m.FPR), len(m.TPR), len(m.Threshold)),
			}
		}
	}
	return nil
}

// asMap flattens the metrics into the JSON layout stored on the run context.
func (m *ClassificationMetrics) asMap() map[string]any {
	out := map[string]any{}
	if m.DisplayName != "" {
		out["displayName"] = m.DisplayName
	}
	if len(m.Labels) > 0 {
		rows := make([]any, len(m.Matrix))
		for i, row := range m.Matrix {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = v
			}
			rows[i] = map[string]any{"row": cells}
		}
		out["confusionMatrix"] = map[string]any{
			"annotationSpecs": labelSpecs(m.Labels),
			"rows":            rows,
		}
	}
	if len(m.FPR) > 0 {
		out["confidenceMetrics"] = curvePoints(m.FPR, m.TPR, m.Threshold)
	}
	return out
}

func labelSpecs(labels []string) []any {
	specs := make([]any, len(labels))
	for i, l := range labels {
		specs[i] = map[string]any{"displayName": l}
	}
	return specs
}

func curvePoints(fpr, tpr, threshold []float64) []any {
	points := make([]any, len(fpr))
	for i := range fpr {
		points[i] = map[string]any{
			"falsePositiveRate":   fpr[i],
			"recall":              tpr[i],
			"confidenceThreshold": threshold[i],
		}
	}
	return points
}
