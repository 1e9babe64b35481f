// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"golang.org/x/oauth2"
)

// Transport selects the API transport clients are built on.
type Transport string

const (
	// TransportGRPC is the default gRPC transport.
	TransportGRPC Transport = "grpc"
	// TransportREST is the HTTP/JSON transport.
	TransportREST Transport = "rest"
	// TransportGRPCAsync is the gRPC transport with non-blocking dial
	// semantics for callers that manage their own polling.
	TransportGRPCAsync Transport = "grpc-async"
	// TransportRESTAsync is the REST analogue of TransportGRPCAsync.
	TransportRESTAsync Transport = "rest-async"
)

func (t Transport) valid() bool {
	switch t {
	case TransportGRPC, TransportREST, TransportGRPCAsync, TransportRESTAsync:
		return true
	}
	return false
}

// REST reports whether t is one of the REST transports.
func (t Transport) REST() bool {
	return t == TransportREST || t == TransportRESTAsync
}

// MetadataPair is one key/value pair attached to every outbound RPC.
type MetadataPair struct {
	Key   string
	Value string
}

// Config is an immutable snapshot of the process-wide defaults.
type Config struct {
	Project               string
	Location              string
	StagingBucket         string
	EncryptionSpecKeyName string
	ServiceAccount        string
	Network               string
	APITransport          Transport

	Experiment            string
	ExperimentDescription string
	// ExperimentTensorboard is the canonical name of the tensorboard backing
	// time-series logging for the current experiment. Empty with
	// TensorboardDisabled unset means "resolve the experiment default".
	ExperimentTensorboard string
	// TensorboardDisabled records that the caller explicitly disabled
	// time-series logging for the current experiment.
	TensorboardDisabled bool

	RequestMetadata []MetadataPair

	// Credentials, when set, overrides Application Default Credentials.
	Credentials *auth.Credentials
	// TokenSource, when set, overrides Credentials.
	TokenSource oauth2.TokenSource

	// Generation increases on every Init. The client factory keys its cache
	// on the generation, so clients built before an Init keep their original
	// transport and credentials.
	Generation int64
}

// clone returns a copy with its own backing storage for mutable fields.
func (c Config) clone() Config {
	out := c
	out.RequestMetadata = append([]MetadataPair(nil), c.RequestMetadata...)
	return out
}

var global = struct {
	mu    sync.RWMutex
	cfg   Config
	hooks []func(prev, next Config)
}{
	cfg: Config{APITransport: TransportGRPC},
}

var generation atomic.Int64

// Option is a functional option recognized by [Init].
type Option func(*Config) error

// WithProject sets the default project.
func WithProject(project string) Option {
	return func(c *Config) error {
		if project == "" {
			return &ConfigurationError{Parameter: "project", Message: "must not be empty"}
		}
		c.Project = project
		return nil
	}
}

// WithLocation sets the default location. The location must have a Vertex AI
// regional endpoint.
func WithLocation(location string) Option {
	return func(c *Config) error {
		if err := ValidateRegion(location); err != nil {
			return err
		}
		c.Location = location
		return nil
	}
}

// WithStagingBucket sets the object-store bucket used for artifact staging.
// Accepts either "gs://bucket[/prefix]" or a bare bucket name.
func WithStagingBucket(bucket string) Option {
	return func(c *Config) error {
		if bucket == "" {
			return &ConfigurationError{Parameter: "staging_bucket", Message: "must not be empty"}
		}
		c.StagingBucket = strings.TrimSuffix(bucket, "/")
		return nil
	}
}

// WithCredentials overrides Application Default Credentials.
func WithCredentials(creds *auth.Credentials) Option {
	return func(c *Config) error {
		if creds == nil {
			return &ConfigurationError{Parameter: "credentials", Message: "must not be nil"}
		}
		c.Credentials = creds
		return nil
	}
}

// WithTokenSource supplies OAuth2 tokens directly, bypassing credential
// detection entirely.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Config) error {
		if ts == nil {
			return &ConfigurationError{Parameter: "credentials", Message: "token source must not be nil"}
		}
		c.TokenSource = ts
		return nil
	}
}

// WithEncryptionSpecKeyName sets the customer-managed encryption key resource
// name applied to created resources that support CMEK.
func WithEncryptionSpecKeyName(keyName string) Option {
	return func(c *Config) error {
		c.EncryptionSpecKeyName = keyName
		return nil
	}
}

// WithServiceAccount sets the service account email used by jobs that run on
// the caller's behalf.
func WithServiceAccount(email string) Option {
	return func(c *Config) error {
		c.ServiceAccount = email
		return nil
	}
}

// WithNetwork sets the VPC network resource name for peered workloads.
func WithNetwork(network string) Option {
	return func(c *Config) error {
		c.Network = network
		return nil
	}
}

// WithAPITransport selects the transport for clients built after this Init.
func WithAPITransport(t Transport) Option {
	return func(c *Config) error {
		if !t.valid() {
			return &ConfigurationError{
				Parameter: "api_transport",
				Message:   fmt.Sprintf("unknown transport %q (want grpc, rest, grpc-async or rest-async)", t),
			}
		}
		c.APITransport = t
		return nil
	}
}

// WithRequestMetadata sets key/value pairs attached to every outbound RPC.
func WithRequestMetadata(pairs ...MetadataPair) Option {
	return func(c *Config) error {
		for _, p := range pairs {
			if p.Key == "" {
				return &ConfigurationError{Parameter: "request_metadata", Message: "metadata key must not be empty"}
			}
		}
		c.RequestMetadata = append([]MetadataPair(nil), pairs...)
		return nil
	}
}

// WithExperiment sets the current experiment. Any run active under the
// previous experiment is ended by the registered change hooks.
func WithExperiment(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return &ConfigurationError{Parameter: "experiment", Message: "must not be empty"}
		}
		c.Experiment = name
		return nil
	}
}

// WithExperimentDescription sets the description recorded on the current
// experiment.
func WithExperimentDescription(desc string) Option {
	return func(c *Config) error {
		c.ExperimentDescription = desc
		return nil
	}
}

// WithExperimentTensorboard sets the tensorboard backing time-series logging,
// by canonical name.
func WithExperimentTensorboard(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return &ConfigurationError{Parameter: "experiment_tensorboard", Message: "must not be empty"}
		}
		c.ExperimentTensorboard = name
		c.TensorboardDisabled = false
		return nil
	}
}

// WithoutExperimentTensorboard disables time-series logging for the current
// experiment. Scalar metrics and params are unaffected.
func WithoutExperimentTensorboard() Option {
	return func(c *Config) error {
		c.ExperimentTensorboard = ""
		c.TensorboardDisabled = true
		return nil
	}
}

// Init merges the given options into the process-wide defaults.
//
// Options are validated before any state changes, so a failed Init leaves the
// previous configuration fully intact. Registered change hooks run after the
// swap, outside the lock.
func Init(ctx context.Context, opts ...Option) error {
	global.mu.Lock()
	next := global.cfg.clone()
	for _, opt := range opts {
		if err := opt(&next); err != nil {
			global.mu.Unlock()
			return err
		}
	}
	next.Generation = generation.Add(1)

	prev := global.cfg
	global.cfg = next
	hooks := slices.Clone(global.hooks)
	global.mu.Unlock()

	for _, hook := range hooks {
		hook(prev, next.clone())
	}
	return nil
}

// Snapshot returns an immutable copy of the current defaults.
func Snapshot() Config {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return global.cfg.clone()
}

// OnChange registers a hook invoked after every successful [Init] with the
// previous and the new configuration. The experiment tracker uses this to end
// the active run when the experiment changes.
func OnChange(hook func(prev, next Config)) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.hooks = append(global.hooks, hook)
}

// DetectCredentials returns the effective credentials: the configured
// override if set, otherwise Application Default Credentials with the
// cloud-platform scope.
func DetectCredentials(ctx context.Context) (*auth.Credentials, error) {
	snap := Snapshot()
	if snap.Credentials != nil {
		return snap.Credentials, nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes: []string{
			"https://www.googleapis.com/auth/cloud-platform",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect default credentials: %w", err)
	}
	return creds, nil
}

// Project returns the effective project, falling back to the project of the
// detected credentials when not explicitly set.
func Project(ctx context.Context) (string, error) {
	if p := Snapshot().Project; p != "" {
		return p, nil
	}

	creds, err := DetectCredentials(ctx)
	if err != nil {
		return "", &ConfigurationError{Parameter: "project", Message: fmt.Sprintf("not set and no ambient credentials: %v", err)}
	}
	project, err := creds.ProjectID(ctx)
	if err != nil || project == "" {
		return "", &ConfigurationError{Parameter: "project", Message: "not set and not inferable from credentials"}
	}
	return project, nil
}

// Location returns the effective location.
func Location() (string, error) {
	if l := Snapshot().Location; l != "" {
		return l, nil
	}
	return "", &ConfigurationError{Parameter: "location", Message: "not set; call config.Init with WithLocation"}
}

// CommonLocationPath returns the canonical parent "projects/P/locations/L",
// resolving either part from the defaults when empty.
func CommonLocationPath(ctx context.Context, project, location string) (string, error) {
	var err error
	if project == "" {
		if project, err = Project(ctx); err != nil {
			return "", err
		}
	}
	if location == "" {
		if location, err = Location(); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("projects/%s/locations/%s", project, location), nil
}
