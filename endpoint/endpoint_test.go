// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAllocateTraffic(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		current map[string]int32
		pct     int32
		want    map[string]int32
	}{
		"first_deployment": {
			current: nil,
			pct:     100,
			want:    map[string]int32{"0": 100},
		},
		"full_takeover": {
			current: map[string]int32{"a": 60, "b": 40},
			pct:     100,
			want:    map[string]int32{"0": 100},
		},
		"even_split": {
			current: map[string]int32{"a": 100},
			pct:     50,
			want:    map[string]int32{"a": 50, "0": 50},
		},
		"proportional_scale_down": {
			current: map[string]int32{"a": 60, "b": 40},
			pct:     20,
			want:    map[string]int32{"a": 48, "b": 32, "0": 20},
		},
		"rounding_drift_to_new": {
			current: map[string]int32{"a": 50, "b": 50},
			pct:     33,
			// 67 splits as 33+33; the missing point lands on the new model.
			want: map[string]int32{"a": 33, "b": 33, "0": 34},
		},
		"zero_share_for_new": {
			current: map[string]int32{"a": 100},
			pct:     0,
			want:    map[string]int32{"a": 100, "0": 0},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := allocateTraffic(tt.current, "0", tt.pct)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("allocateTraffic mismatch (-want +got):\n%s", diff)
			}
			var sum int32
			for _, v := range got {
				sum += v
			}
			if sum != 100 {
				t.Errorf("traffic sums to %d, want 100", sum)
			}
		})
	}
}

func TestRemoveTraffic(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		current map[string]int32
		id      string
		want    map[string]int32
	}{
		"last_model": {
			current: map[string]int32{"a": 100},
			id:      "a",
			want:    map[string]int32{},
		},
		"rescale_survivor": {
			current: map[string]int32{"a": 60, "b": 40},
			id:      "a",
			want:    map[string]int32{"b": 100},
		},
		"rescale_pair": {
			current: map[string]int32{"a": 50, "b": 25, "c": 25},
			id:      "a",
			want:    map[string]int32{"b": 50, "c": 50},
		},
		"zero_traffic_survivors": {
			current: map[string]int32{"a": 100, "b": 0, "c": 0},
			id:      "a",
			want:    map[string]int32{"b": 50, "c": 50},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := removeTraffic(tt.current, tt.id)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("removeTraffic mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeployRejectsBadPercentage(t *testing.T) {
	t.Parallel()

	e := &Endpoint{}
	if _, err := e.Deploy(t.Context(), nil, WithTrafficPercentage(101)); err == nil {
		t.Fatal("Deploy with 101% traffic succeeded, want validation error")
	}
	if _, err := e.Deploy(t.Context(), nil, WithTrafficPercentage(-1)); err == nil {
		t.Fatal("Deploy with -1% traffic succeeded, want validation error")
	}
}
