// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
)

// ConfigurationError is returned when a required default is missing or an
// option carries an invalid value.
type ConfigurationError struct {
	Parameter string
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Parameter, e.Message)
}

// RegionNotSupportedError is returned when the requested location has no
// Vertex AI regional endpoint.
type RegionNotSupportedError struct {
	RequestedRegion  string
	SupportedRegions []string
}

func (e *RegionNotSupportedError) Error() string {
	return fmt.Sprintf("vertex AI is not available in region '%s'. supported regions: %s", e.RequestedRegion, strings.Join(e.SupportedRegions, ", "))
}
