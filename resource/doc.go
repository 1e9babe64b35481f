// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource implements the base every remote resource type is built
// on: canonical name parsing and formatting, the cached server-side proto,
// creation/mutation future chaining, and the SDK label convention.
//
// A [Noun] models one server-side resource. It exists in one of two modes:
//
//   - constructed from an existing canonical name, in which case its creation
//     future is vacuously complete and reads resolve immediately; or
//   - constructed pending, by an asynchronous create call, in which case the
//     canonical name is unknown until the creation future resolves and every
//     read of the name or the cached proto blocks on it.
//
// Mutations on one noun are serialized: each submitted mutation implicitly
// depends on the previous one, so program order on a single instance is
// observed server side. Ordering across distinct nouns exists only where the
// caller passes one noun's creation future as a dependency of the other's
// submission.
package resource
