// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import "fmt"

// ValidationError is returned for malformed canonical names and mutually
// exclusive argument combinations. It always surfaces synchronously, never on
// a future.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
