// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/resource"
)

func TestBuildProtoDefaults(t *testing.T) {
	t.Parallel()

	o := buildOptions(nil)
	pb := buildProto("flowers", o, config.Config{})

	if got, want := pb.GetMetadataSchemaUri(), TabularSchema; got != want {
		t.Errorf("MetadataSchemaUri = %q, want %q", got, want)
	}
	if pb.GetMetadata() == nil {
		t.Error("Metadata = nil, want empty struct value")
	}
	if pb.GetEncryptionSpec() != nil {
		t.Errorf("EncryptionSpec = %v, want nil without a configured key", pb.GetEncryptionSpec())
	}
	if got := pb.GetLabels()["created_by_sdk"]; got != "true" {
		t.Errorf("Labels[created_by_sdk] = %q, want %q", got, "true")
	}
}

func TestBuildProtoOverrides(t *testing.T) {
	t.Parallel()

	md := structpb.NewStringValue("custom")
	o := buildOptions([]Option{
		WithMetadataSchemaURI(ImageSchema),
		WithMetadata(md),
		WithDescription("test images"),
		WithLabels(map[string]string{"team": "vision"}),
	})
	pb := buildProto("flowers", o, config.Config{
		EncryptionSpecKeyName: "projects/p/locations/l/keyRings/r/cryptoKeys/k",
	})

	if got, want := pb.GetMetadataSchemaUri(), ImageSchema; got != want {
		t.Errorf("MetadataSchemaUri = %q, want %q", got, want)
	}
	if diff := cmp.Diff(md, pb.GetMetadata(), protocmp.Transform()); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
	if got, want := pb.GetEncryptionSpec().GetKmsKeyName(), "projects/p/locations/l/keyRings/r/cryptoKeys/k"; got != want {
		t.Errorf("KmsKeyName = %q, want %q", got, want)
	}
	want := map[string]string{"team": "vision", "created_by_sdk": "true"}
	if diff := cmp.Diff(want, pb.GetLabels()); diff != "" {
		t.Errorf("Labels mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateRejectsEmptyDisplayName(t *testing.T) {
	t.Parallel()

	if _, err := Create(t.Context(), ""); err == nil {
		t.Fatal("Create(ctx, \"\") succeeded, want validation error")
	}
}

func TestExportDataRejectsEmptyPrefix(t *testing.T) {
	t.Parallel()

	d := &Dataset{}
	var verr *resource.ValidationError
	if _, err := d.ExportData(t.Context(), ""); !errors.As(err, &verr) {
		t.Fatalf("ExportData with empty prefix returned %v, want *resource.ValidationError", err)
	}
}
