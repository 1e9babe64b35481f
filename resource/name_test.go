// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package resource_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/resource"
)

func TestParseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    resource.Name
		wantErr bool
	}{
		{
			name:  "top level resource",
			input: "projects/p1/locations/us-central1/datasets/123",
			want: resource.Name{
				Project:    "p1",
				Location:   "us-central1",
				Collection: "datasets",
				ID:         "123",
			},
		},
		{
			name:  "nested resource",
			input: "projects/p1/locations/us-central1/tensorboards/1/experiments/e1/runs/r1",
			want: resource.Name{
				Project:    "p1",
				Location:   "us-central1",
				Collection: "tensorboards",
				ID:         "1",
				Sub: []resource.Segment{
					{Collection: "experiments", ID: "e1"},
					{Collection: "runs", ID: "r1"},
				},
			},
		},
		{
			name:    "missing id",
			input:   "projects/p1/locations/us-central1/datasets",
			wantErr: true,
		},
		{
			name:    "wrong prefix",
			input:   "folders/p1/locations/us-central1/datasets/123",
			wantErr: true,
		},
		{
			name:    "empty segment",
			input:   "projects//locations/us-central1/datasets/123",
			wantErr: true,
		},
		{
			name:    "bare id",
			input:   "123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resource.ParseName(tt.input)
			if tt.wantErr {
				var verr *resource.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("ParseName(%q) error = %T (%v), want *ValidationError", tt.input, err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseName(%q) error = %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseName(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
			if got.String() != tt.input {
				t.Errorf("round trip = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestResolveName(t *testing.T) {
	ctx := t.Context()
	if err := config.Init(ctx, config.WithProject("p1"), config.WithLocation("us-central1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name              string
		nameOrID          string
		project, location string
		want              string
		wantErr           bool
	}{
		{
			name:     "short id uses defaults",
			nameOrID: "d1",
			want:     "projects/p1/locations/us-central1/datasets/d1",
		},
		{
			name:     "explicit project wins over default",
			nameOrID: "d1",
			project:  "p2",
			want:     "projects/p2/locations/us-central1/datasets/d1",
		},
		{
			name:     "full name used as is",
			nameOrID: "projects/p9/locations/europe-west4/datasets/d9",
			want:     "projects/p9/locations/europe-west4/datasets/d9",
		},
		{
			name:     "full name with agreeing explicit project",
			nameOrID: "projects/p9/locations/europe-west4/datasets/d9",
			project:  "p9",
			want:     "projects/p9/locations/europe-west4/datasets/d9",
		},
		{
			name:     "full name with disagreeing project",
			nameOrID: "projects/p9/locations/europe-west4/datasets/d9",
			project:  "p1",
			wantErr:  true,
		},
		{
			name:     "full name with disagreeing location",
			nameOrID: "projects/p9/locations/europe-west4/datasets/d9",
			location: "us-central1",
			wantErr:  true,
		},
		{
			name:     "full name for wrong collection",
			nameOrID: "projects/p9/locations/europe-west4/models/m1",
			wantErr:  true,
		},
		{
			name:     "empty",
			nameOrID: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resource.ResolveName(ctx, "datasets", tt.nameOrID, tt.project, tt.location)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveName() = %v, expected error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveName() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ResolveName() = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestMergeLabels(t *testing.T) {
	t.Parallel()

	got := resource.MergeLabels(map[string]string{"team": "ml"})
	want := map[string]string{"team": "ml", "created_by_sdk": "true"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeLabels() mismatch (-want +got):\n%s", diff)
	}

	if got := resource.MergeLabels(nil); got["created_by_sdk"] != "true" {
		t.Errorf("MergeLabels(nil) = %v, want created_by_sdk=true", got)
	}
}
