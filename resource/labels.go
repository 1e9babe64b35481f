// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"github.com/go-a2a/aiplatform-go/internal/xmaps"
)

// sdkLabels is merged into the labels of every resource this SDK creates, so
// server-side tooling can attribute provenance.
var sdkLabels = map[string]string{
	"created_by_sdk": "true",
}

// MergeLabels overlays the SDK provenance labels onto the user-supplied
// labels without mutating the input.
func MergeLabels(userLabels map[string]string) map[string]string {
	return xmaps.Merged(userLabels, sdkLabels)
}
