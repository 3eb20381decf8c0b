// Package objstore uploads migrated files to an S3-compatible bucket. Two
// backends implement Store: s3 (aws-sdk-go-v2) for Amazon S3 and minio
// (minio-go) for any S3-compatible server.
package objstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/drive2s3/internal/progress"
)

// Provider names.
const (
	ProviderS3    = "s3"
	ProviderMinio = "minio"
)

// Store is the destination of a migration. Every object is written under
// the storage class the Store was built with.
type Store interface {
	// Exists reports whether key is present. Not-found is (false, nil).
	Exists(ctx context.Context, key string) (bool, error)
	// Upload rewinds r and writes size bytes of it to key.
	Upload(ctx context.Context, r io.ReadSeeker, size int64, key string, fn progress.Func) error
}

// Config describes the destination bucket and how to reach it.
type Config struct {
	Provider     string
	Region       string
	Bucket       string
	Endpoint     string
	AccessKey    string
	AccessSecret string
	StorageClass string
	MaxRetries   int
	HTTPClient   *http.Client
}

// New builds the Store for cfg.Provider. Missing or rejected credentials are
// detected here and returned as ErrMissingCredentials.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case ProviderS3:
		return NewS3(ctx, cfg, logger)
	case ProviderMinio:
		return NewMinio(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("objstore: unknown provider %q", cfg.Provider)
	}
}

// rewind seeks r to its start so a retried upload sends the whole buffer.
func rewind(r io.ReadSeeker, key string) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return &Error{Op: "upload", Key: key, Err: fmt.Errorf("rewinding body: %w", err)}
	}

	return nil
}
