// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-a2a/aiplatform-go/config"
)

// Segment is one (collection, id) pair of a nested resource path.
type Segment struct {
	Collection string
	ID         string
}

// Name is the parsed form of a canonical resource name
// "projects/P/locations/L/<collection>/<id>[/<collection>/<id>...]".
type Name struct {
	Project    string
	Location   string
	Collection string
	ID         string
	// Sub holds the trailing segments of nested resources, such as the
	// run under "tensorboards/1/experiments/e/runs/r".
	Sub []Segment
}

// ParseName parses a canonical resource name.
func ParseName(s string) (Name, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 6 || len(parts)%2 != 0 || parts[0] != "projects" || parts[2] != "locations" {
		return Name{}, &ValidationError{
			Field:   "resource name",
			Message: fmt.Sprintf("%q is not of the form projects/*/locations/*/<collection>/<id>", s),
		}
	}
	for _, p := range parts {
		if p == "" {
			return Name{}, &ValidationError{Field: "resource name", Message: fmt.Sprintf("%q has an empty path segment", s)}
		}
	}

	n := Name{
		Project:    parts[1],
		Location:   parts[3],
		Collection: parts[4],
		ID:         parts[5],
	}
	for i := 6; i < len(parts); i += 2 {
		n.Sub = append(n.Sub, Segment{Collection: parts[i], ID: parts[i+1]})
	}
	return n, nil
}

// String returns the canonical form.
func (n Name) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "projects/%s/locations/%s/%s/%s", n.Project, n.Location, n.Collection, n.ID)
	for _, seg := range n.Sub {
		fmt.Fprintf(&b, "/%s/%s", seg.Collection, seg.ID)
	}
	return b.String()
}

// Parent returns "projects/P/locations/L".
func (n Name) Parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", n.Project, n.Location)
}

// IsZero reports whether n is the zero Name.
func (n Name) IsZero() bool {
	return n.Project == "" && n.Collection == "" && n.ID == ""
}

// ResolveName expands nameOrID into a canonical [Name] for collection.
//
// A short id is combined with the explicit project/location when given, else
// with the configured defaults. A fully-qualified name is used as is; passing
// an explicit project or location that disagrees with it is an error, and so
// is a full name addressing a different collection.
func ResolveName(ctx context.Context, collection, nameOrID, project, location string) (Name, error) {
	if nameOrID == "" {
		return Name{}, &ValidationError{Field: "resource name", Message: "must not be empty"}
	}

	if strings.Contains(nameOrID, "/") {
		n, err := ParseName(nameOrID)
		if err != nil {
			return Name{}, err
		}
		if n.Collection != collection {
			return Name{}, &ValidationError{
				Field:   "resource name",
				Message: fmt.Sprintf("%q addresses collection %q, want %q", nameOrID, n.Collection, collection),
			}
		}
		if project != "" && project != n.Project {
			return Name{}, &ValidationError{
				Field:   "project",
				Message: fmt.Sprintf("explicit project %q disagrees with resource name %q", project, nameOrID),
			}
		}
		if location != "" && location != n.Location {
			return Name{}, &ValidationError{
				Field:   "location",
				Message: fmt.Sprintf("explicit location %q disagrees with resource name %q", location, nameOrID),
			}
		}
		return n, nil
	}

	var err error
	if project == "" {
		if project, err = config.Project(ctx); err != nil {
			return Name{}, err
		}
	}
	if location == "" {
		if location, err = config.Location(); err != nil {
			return Name{}, err
		}
	}
	return Name{Project: project, Location: location, Collection: collection, ID: nameOrID}, nil
}
