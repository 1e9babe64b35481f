// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package staging copies local model artifacts and packages to the configured
// Cloud Storage staging bucket and hands back gs:// URIs for use in resource
// bodies.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/go-a2a/aiplatform-go/config"
	"github.com/go-a2a/aiplatform-go/internal/pool"
	"github.com/go-a2a/aiplatform-go/pkg/logging"
)

// uploadConcurrency bounds parallel object writes during a directory upload.
const uploadConcurrency = 8

// Stager copies files between the local filesystem and the staging bucket.
type Stager struct {
	client *storage.Client
	logger *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Stager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stager) { s.logger = logger }
}

// New creates a [Stager] authenticated with the configured credentials. The
// logger defaults to the one carried by ctx.
func New(ctx context.Context, opts ...Option) (*Stager, error) {
	s := &Stager{
		logger: logging.FromContext(ctx),
	}
	for _, opt := range opts {
		opt(s)
	}

	snap := config.Snapshot()
	var clientOpts []option.ClientOption
	switch {
	case snap.TokenSource != nil:
		clientOpts = append(clientOpts, option.WithTokenSource(snap.TokenSource))
	case snap.Credentials != nil:
		clientOpts = append(clientOpts, option.WithAuthCredentials(snap.Credentials))
	default:
		creds, err := config.DetectCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("get credentials for storage: %w", err)
		}
		clientOpts = append(clientOpts, option.WithAuthCredentials(creds))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s.client = client
	return s, nil
}

// Close releases the underlying storage client.
func (s *Stager) Close() error {
	return s.client.Close()
}

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in URI: %q", uri)
	}
	return bucket, object, nil
}

// stagingPrefix builds a collision-free object prefix for one upload batch.
func stagingPrefix(now time.Time) string {
	return fmt.Sprintf("aiplatform-%s-%s", now.UTC().Format("2006-01-02-15-04-05"), uuid.NewString()[:8])
}

// Stage uploads localPath (file or directory) to the configured staging
// bucket under a fresh prefix and returns the gs:// URI of the uploaded
// file, or of the prefix for a directory.
func Stage(ctx context.Context, localPath string, opts ...Option) (string, error) {
	snap := config.Snapshot()
	if snap.StagingBucket == "" {
		return "", &config.ConfigurationError{
			Parameter: "staging_bucket",
			Message:   "no staging bucket configured; pass config.WithStagingBucket to config.Init",
		}
	}

	s, err := New(ctx, opts...)
	if err != nil {
		return "", err
	}
	defer s.Close()

	bucket, root, err := ParseURI(ensureScheme(snap.StagingBucket))
	if err != nil {
		return "", err
	}
	prefix := path.Join(root, stagingPrefix(time.Now()))
	return s.Upload(ctx, localPath, fmt.Sprintf("gs://%s/%s", bucket, prefix))
}

// ensureScheme accepts both "gs://bucket" and bare "bucket" staging bucket
// configuration.
func ensureScheme(bucket string) string {
	if strings.HasPrefix(bucket, "gs://") {
		return bucket
	}
	return "gs://" + bucket
}

// Upload copies localPath to destURI. A single file lands at
// destURI/<basename>; a directory is walked recursively and its relative
// layout is preserved under destURI. Returns the gs:// URI the caller should
// reference: the file object for a file, destURI itself for a directory.
func (s *Stager) Upload(ctx context.Context, localPath, destURI string) (string, error) {
	bucket, prefix, err := ParseURI(destURI)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	if !info.IsDir() {
		object := path.Join(prefix, filepath.Base(localPath))
		if err := s.uploadFile(ctx, localPath, bucket, object); err != nil {
			return "", err
		}
		return fmt.Sprintf("gs://%s/%s", bucket, object), nil
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)
	err = filepath.WalkDir(localPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		object := path.Join(prefix, filepath.ToSlash(rel))
		eg.Go(func() error {
			return s.uploadFile(gctx, p, bucket, object)
		})
		return nil
	})
	if err != nil {
		// Cancel in-flight writes before reporting the walk failure.
		_ = eg.Wait()
		s.cleanupPrefix(ctx, bucket, prefix)
		return "", err
	}
	if err := eg.Wait(); err != nil {
		s.cleanupPrefix(ctx, bucket, prefix)
		return "", err
	}

	s.logger.InfoContext(ctx, "staged artifacts",
		slog.String("local_path", localPath),
		slog.String("dest_uri", destURI),
	)
	return destURI, nil
}

func (s *Stager) uploadFile(ctx context.Context, localPath, bucket, object string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)

	buf := pool.CopyBuffer.Get()
	_, err = io.CopyBuffer(w, f, *buf)
	pool.CopyBuffer.Put(buf)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

// cleanupPrefix best-effort deletes objects already written under prefix so a
// failed batch upload does not leave partial artifacts behind.
func (s *Stager) cleanupPrefix(ctx context.Context, bucket, prefix string) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return
		}
		if err != nil {
			s.logger.WarnContext(ctx, "could not list partial upload for cleanup",
				slog.String("prefix", fmt.Sprintf("gs://%s/%s", bucket, prefix)),
				slog.Any("error", err),
			)
			return
		}
		if err := s.client.Bucket(bucket).Object(attrs.Name).Delete(ctx); err != nil {
			s.logger.WarnContext(ctx, "could not delete partially uploaded object",
				slog.String("object", fmt.Sprintf("gs://%s/%s", bucket, attrs.Name)),
				slog.Any("error", err),
			)
		}
	}
}

// Download copies every object under srcURI into localDir, preserving the
// relative layout.
func (s *Stager) Download(ctx context.Context, srcURI, localDir string) error {
	bucket, prefix, err := ParseURI(srcURI)
	if err != nil {
		return err
	}

	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		object := attrs.Name
		rel := strings.TrimPrefix(strings.TrimPrefix(object, prefix), "/")
		if rel == "" {
			rel = path.Base(object)
		}
		dest := filepath.Join(localDir, filepath.FromSlash(rel))
		eg.Go(func() error {
			return s.downloadFile(gctx, bucket, object, dest)
		})
	}
	return eg.Wait()
}

func (s *Stager) downloadFile(ctx context.Context, bucket, object, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("read gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	buf := pool.CopyBuffer.Get()
	_, err = io.CopyBuffer(f, r, *buf)
	pool.CopyBuffer.Put(buf)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("download gs://%s/%s: %w", bucket, object, err)
	}
	return f.Close()
}
