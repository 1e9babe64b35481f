// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package aiplatform is a Go client SDK for the Vertex AI platform.
//
// The SDK models every server-side resource (datasets, models, endpoints,
// training jobs, tensorboards, experiment runs) as a resource noun with a
// canonical name, and lets any mutating call run either synchronously or as a
// client-side future with explicit dependency edges between operations.
//
// Entry points:
//
//   - [github.com/go-a2a/aiplatform-go/config]: process-wide defaults (Init)
//   - [github.com/go-a2a/aiplatform-go/resource]: the resource noun base
//   - [github.com/go-a2a/aiplatform-go/future]: the future/dependency engine
//   - [github.com/go-a2a/aiplatform-go/experiment]: experiment and run tracking
//   - [github.com/go-a2a/aiplatform-go/staging]: artifact staging to Cloud Storage
package aiplatform

// Version is the version of the Vertex AI platform SDK.
var Version = "v0.1.0"
