// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool provides strongly-typed object pooling for the hot paths of
// the SDK: staging IO copy buffers and time-series batch assembly.
package pool

import (
	"bytes"
	"sync"
)

// Pool is a generics wrapper around [sync.Pool] to provide strongly-typed
// object pooling.
type Pool[T any] struct {
	pool sync.Pool
}

// New returns a new [Pool] for T, and will use fn to construct new T's when
// the pool is empty.
func New[T any](fn func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return fn()
			},
		},
	}
}

// Get gets a T from the pool, or creates a new one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns x into the pool.
func (p *Pool[T]) Put(x T) {
	p.pool.Put(x)
}

// copyBufferSize is sized for object-store uploads; large enough to keep
// syscall counts down without holding megabytes per idle worker.
const copyBufferSize = 256 * 1024

// CopyBuffer provides byte slices for io.CopyBuffer during artifact staging.
var CopyBuffer = New(func() *[]byte {
	b := make([]byte, copyBufferSize)
	return &b
})

// Buffer provides [*bytes.Buffer] pooling for JSON and request assembly.
var Buffer = New(func() *bytes.Buffer {
	return &bytes.Buffer{}
})
