// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package xmaps

import (
	"cmp"
	"maps"
	"slices"
)

// Contains reports whether key is present in m.
func Contains[Map ~map[K]V, K cmp.Ordered, V any](m Map, key K) bool {
	return slices.Contains(slices.Sorted(maps.Keys(m)), key)
}

// Merged returns a new map holding the entries of base overlaid with the
// entries of overlay. Neither input is mutated; a nil result is never
// returned.
func Merged[Map ~map[K]V, K comparable, V any](base, overlay Map) Map {
	out := make(Map, len(base)+len(overlay))
	maps.Copy(out, base)
	maps.Copy(out, overlay)
	return out
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[Map ~map[K]V, K cmp.Ordered, V any](m Map) []K {
	return slices.Sorted(maps.Keys(m))
}
