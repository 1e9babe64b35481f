// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/go-a2a/aiplatform-go/config"
)

// ContextWithMetadata attaches the configured request metadata pairs to the
// outgoing RPC context. Resource packages call it at every RPC boundary.
func ContextWithMetadata(ctx context.Context) context.Context {
	pairs := config.Snapshot().RequestMetadata
	if len(pairs) == 0 {
		return ctx
	}

	kv := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		kv = append(kv, p.Key, p.Value)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}
