// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package experiment

import (
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/types/known/structpb"
)

// normalize round-trips v through JSON so arbitrary Go values (structs,
// typed numbers, nested maps) collapse into the types structpb accepts.
func normalize(v any) (any, error) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value not JSON-encodable: %w", err)
	}
	var out any
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toStruct converts a string-keyed map of arbitrary values into a proto
// struct.
func toStruct(m map[string]any) (*structpb.Struct, error) {
	fields := make(map[string]*structpb.Value, len(m))
	for k, v := range m {
		plain, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		val, err := structpb.NewValue(plain)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = val
	}
	return &structpb.Struct{Fields: fields}, nil
}
