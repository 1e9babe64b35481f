// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"sort"
)

// supportedRegions lists the regions that publish a Vertex AI regional
// endpoint of the form <region>-aiplatform.googleapis.com.
var supportedRegions = map[string]bool{
	"asia-east1":              true,
	"asia-east2":              true,
	"asia-northeast1":         true,
	"asia-northeast2":         true,
	"asia-northeast3":         true,
	"asia-south1":             true,
	"asia-southeast1":         true,
	"asia-southeast2":         true,
	"australia-southeast1":    true,
	"europe-central2":         true,
	"europe-north1":           true,
	"europe-southwest1":       true,
	"europe-west1":            true,
	"europe-west2":            true,
	"europe-west3":            true,
	"europe-west4":            true,
	"europe-west6":            true,
	"europe-west8":            true,
	"europe-west9":            true,
	"me-west1":                true,
	"northamerica-northeast1": true,
	"northamerica-northeast2": true,
	"southamerica-east1":      true,
	"us-central1":             true,
	"us-east1":                true,
	"us-east4":                true,
	"us-south1":               true,
	"us-west1":                true,
	"us-west2":                true,
	"us-west3":                true,
	"us-west4":                true,
}

// SupportedRegions returns the sorted list of regions with a Vertex AI
// regional endpoint.
func SupportedRegions() []string {
	regions := make([]string, 0, len(supportedRegions))
	for r := range supportedRegions {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// ValidateRegion checks that location has a Vertex AI regional endpoint.
func ValidateRegion(location string) error {
	if !supportedRegions[location] {
		return &RegionNotSupportedError{
			RequestedRegion:  location,
			SupportedRegions: SupportedRegions(),
		}
	}
	return nil
}

// RegionalEndpoint returns the service endpoint pinned to location, for
// example "us-central1-aiplatform.googleapis.com:443".
func RegionalEndpoint(location string) string {
	return fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)
}
