// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging provides context-based structured logging using Go's
// standard slog package.
//
// A logger carried in a [context.Context] propagates through the SDK's call
// chain, so long-running operations (resource creation, artifact staging,
// state polling) log with the caller's handler and attributes:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	ctx := logging.NewContext(ctx, logger)
//
//	ds, err := dataset.Create(ctx, "flowers")
//
// When no logger is found in the context, [FromContext] returns a default
// JSON logger writing to stdout at INFO level, so logging always works even
// when nothing was configured.
package logging
