// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the process-wide defaults the SDK resolves on every
// call: project, location, credentials, staging bucket, encryption key,
// experiment, network, service account, and API transport.
//
// The defaults are set once with [Init] and read everywhere else through
// [Snapshot], which returns an immutable copy. Futures capture a snapshot at
// submit time, so an Init during flight never tears a running callable.
//
//	if err := config.Init(ctx,
//		config.WithProject("my-project"),
//		config.WithLocation("us-central1"),
//		config.WithStagingBucket("gs://my-bucket"),
//	); err != nil {
//		// ...
//	}
//
// Credentials default to Application Default Credentials, detected lazily on
// first use. The location must be a region with a Vertex AI regional
// endpoint; unknown regions are rejected synchronously by Init.
package config
