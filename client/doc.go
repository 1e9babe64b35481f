// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package client builds and memoizes the region-pinned service clients every
// resource noun calls through.
//
// Each client is keyed by (service, region, transport, config generation):
// the same key always yields the same client instance, and a config.Init that
// switches transport or credentials bumps the generation so only clients
// built afterwards pick up the change. Cached clients are never evicted
// before process exit.
//
// Clients are dialed lazily; constructing one opens no network connection
// until its first RPC.
package client
