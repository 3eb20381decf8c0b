package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tonimelisma/drive2s3/internal/progress"
)

// MinioStore writes to any S3-compatible server through minio-go.
type MinioStore struct {
	client       *minio.Client
	bucket       string
	storageClass string
	logger       *slog.Logger
}

// NewMinio builds a MinioStore. Static keys are required; there is no
// credential chain for generic S3-compatible servers. Keys the server
// rejects are ErrMissingCredentials.
func NewMinio(ctx context.Context, cfg Config, logger *slog.Logger) (*MinioStore, error) {
	if cfg.AccessKey == "" || cfg.AccessSecret == "" {
		return nil, ErrMissingCredentials
	}

	host, secure, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.AccessSecret, ""),
		Secure: secure,
		// A known region skips the GetBucketLocation round trip.
		Region: cfg.Region,
	}

	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		opts.Transport = cfg.HTTPClient.Transport
	}

	client, err := minio.New(host, opts)
	if err != nil {
		return nil, fmt.Errorf("objstore: creating minio client: %w", err)
	}

	store := &MinioStore{
		client:       client,
		bucket:       cfg.Bucket,
		storageClass: cfg.StorageClass,
		logger:       logger,
	}

	if err := store.checkCredentials(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// checkCredentials reads the first listing result of the bucket. A rejected
// key is fatal; other listing errors are left for the per-file calls.
func (m *MinioStore) checkCredentials(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obj, ok := <-m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{MaxKeys: 1})
	if !ok || obj.Err == nil {
		return nil
	}

	err := obj.Err

	if wrapped := wrapCredentialError(minio.ToErrorResponse(err).Code, err); errors.Is(wrapped, ErrMissingCredentials) {
		m.logger.Error("destination rejected credentials",
			slog.String("bucket", m.bucket),
			slog.String("error", err.Error()),
		)

		return wrapped
	}

	m.logger.Warn("could not list destination bucket",
		slog.String("bucket", m.bucket),
		slog.String("error", err.Error()),
	)

	return nil
}

// parseEndpoint accepts "host:port" (TLS) or an http/https URL.
func parseEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, errors.New("objstore: minio endpoint is required")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("objstore: parsing endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("objstore: endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}

// Exists stats key. NoSuchKey is (false, nil).
func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	return false, &Error{Op: "exists", Key: key, Err: wrapCredentialError(resp.Code, err)}
}

// Upload writes size bytes of r to key with the configured storage class.
func (m *MinioStore) Upload(ctx context.Context, r io.ReadSeeker, size int64, key string, fn progress.Func) error {
	if err := rewind(r, key); err != nil {
		return err
	}

	m.logger.Debug("uploading object",
		slog.String("bucket", m.bucket),
		slog.String("key", key),
		slog.Int64("size", size),
		slog.String("storage_class", m.storageClass),
	)

	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		StorageClass: m.storageClass,
		Progress:     &progressHook{fn: fn, total: size},
	})
	if err != nil {
		resp := minio.ToErrorResponse(err)

		return &Error{Op: "upload", Key: key, Err: wrapCredentialError(resp.Code, err)}
	}

	return nil
}

// progressHook adapts progress.Func to minio-go's Progress reader, which is
// handed each chunk the SDK reads from the body.
type progressHook struct {
	fn    progress.Func
	total int64
	n     int64
}

func (p *progressHook) Read(b []byte) (int, error) {
	p.n += int64(len(b))
	if p.fn != nil {
		p.fn(p.n, p.total)
	}

	return len(b), nil
}
