// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package future implements the client-side future engine shared by every
// resource in the SDK.
//
// A [Future] is a promise for the outcome of a remote call. Futures are
// created by submitting a callable to a [Manager] together with an explicit
// list of dependencies; the callable is not started until every dependency
// has reached a terminal state, and it is never started at all if any
// dependency failed or was cancelled. This is how the SDK preserves causal
// ordering between asynchronous operations: a create call on resource B that
// takes a not-yet-created resource A as input declares A's creation future as
// a dependency and therefore observes A on the server before issuing its own
// RPC.
//
// The manager bounds the number of concurrently running callables with a
// weighted semaphore. Waiting for dependencies does not consume a worker
// slot, so the engine stays linear in the number of submitted operations.
//
// # Lifecycle
//
// A future moves through the states pending -> running -> done/failed, or is
// cancelled. State transitions are monotonic. Once terminal, exactly one of
// the result or the error is set, and both [Future.Wait] and [Future.Result]
// return the same outcome on every call.
package future
