// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package staging

import (
	"strings"
	"testing"
	"time"
)

func TestParseURI(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		"bucket_and_object": {
			uri:        "gs://my-bucket/models/v1",
			wantBucket: "my-bucket",
			wantObject: "models/v1",
		},
		"bucket_only": {
			uri:        "gs://my-bucket",
			wantBucket: "my-bucket",
		},
		"trailing_slash": {
			uri:        "gs://my-bucket/",
			wantBucket: "my-bucket",
		},
		"no_scheme": {
			uri:     "my-bucket/models",
			wantErr: true,
		},
		"empty_bucket": {
			uri:     "gs:///models",
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseURI(%q) succeeded, want error", tt.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) = %v", tt.uri, err)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseURI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestEnsureScheme(t *testing.T) {
	t.Parallel()

	if got := ensureScheme("my-bucket"); got != "gs://my-bucket" {
		t.Errorf("ensureScheme(my-bucket) = %q", got)
	}
	if got := ensureScheme("gs://my-bucket"); got != "gs://my-bucket" {
		t.Errorf("ensureScheme(gs://my-bucket) = %q", got)
	}
}

func TestStagingPrefix(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	got := stagingPrefix(now)
	if !strings.HasPrefix(got, "aiplatform-2025-06-01-12-30-45-") {
		t.Errorf("stagingPrefix = %q, want timestamped aiplatform- prefix", got)
	}
	if other := stagingPrefix(now); other == got {
		t.Errorf("stagingPrefix returned identical values for one instant: %q", got)
	}
}
