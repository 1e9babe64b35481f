// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package future

import "fmt"

// CancelledError is returned by a future that was cancelled before its
// callable ran, or whose in-flight call observed cancellation.
type CancelledError struct {
	Op string
}

func (e *CancelledError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("operation %q was cancelled", e.Op)
	}
	return "operation was cancelled"
}

// DependencyError is returned by a future whose callable was never invoked
// because an upstream dependency failed or was cancelled.
//
// Cause is the dependency's own error, so the original failure survives the
// chain: errors.Is and errors.As see through any number of dependency hops.
type DependencyError struct {
	// Op is the name of the operation that could not run.
	Op string
	// Dep is the name of the dependency that failed.
	Dep string
	// Cause is the dependency's terminal error.
	Cause error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("operation %q not run: dependency %q failed: %v", e.Op, e.Dep, e.Cause)
}

func (e *DependencyError) Unwrap() error {
	return e.Cause
}
