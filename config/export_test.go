// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package config

// Reset restores the pristine defaults. Test-only.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.cfg = Config{APITransport: TransportGRPC}
	global.hooks = nil
}
