// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package xmaps provides small generic map helpers that complement the
// standard maps package: key containment, non-mutating merges for label maps,
// and deterministic key ordering for request assembly and tests.
package xmaps
