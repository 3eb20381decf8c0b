package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tonimelisma/drive2s3/internal/progress"
)

// s3API is the subset of the S3 client S3Store calls.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// uploaderAPI is the subset of manager.Uploader S3Store calls.
type uploaderAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store writes to Amazon S3 (or an S3 endpoint override) through
// aws-sdk-go-v2. Large bodies are split into multipart uploads by the
// upload manager.
type S3Store struct {
	api          s3API
	uploader     uploaderAPI
	bucket       string
	storageClass s3types.StorageClass
	logger       *slog.Logger
}

// NewS3 builds an S3Store. Static keys in cfg win; otherwise the AWS default
// credential chain is consulted. An empty chain, or keys the endpoint
// rejects, is ErrMissingCredentials.
func NewS3(ctx context.Context, cfg Config, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries + 1),
	}

	if cfg.AccessKey != "" && cfg.AccessSecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.AccessSecret, "")))
	}

	if cfg.HTTPClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: loading AWS config: %w", err)
	}

	if awsCfg.Credentials == nil {
		return nil, ErrMissingCredentials
	}

	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		logger.Error("no destination credentials found", slog.String("error", err.Error()))

		return nil, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// Many S3-compatible servers reject the default flexible checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	store := newS3Store(client, manager.NewUploader(client), cfg, logger)
	if err := store.checkCredentials(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func newS3Store(api s3API, uploader uploaderAPI, cfg Config, logger *slog.Logger) *S3Store {
	return &S3Store{
		api:          api,
		uploader:     uploader,
		bucket:       cfg.Bucket,
		storageClass: s3types.StorageClass(cfg.StorageClass),
		logger:       logger,
	}
}

// checkCredentials lists at most one key of the bucket. HEAD errors have no
// body, so a rejected key is only recognizable from a listing. Any other
// listing failure is left for the per-file calls to report.
func (s *S3Store) checkCredentials(ctx context.Context) error {
	_, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err == nil {
		return nil
	}

	if wrapped := s3CredentialError(err); errors.Is(wrapped, ErrMissingCredentials) {
		s.logger.Error("destination rejected credentials",
			slog.String("bucket", s.bucket),
			slog.String("error", err.Error()),
		)

		return wrapped
	}

	s.logger.Warn("could not list destination bucket",
		slog.String("bucket", s.bucket),
		slog.String("error", err.Error()),
	)

	return nil
}

// Exists issues a HEAD for key. A 404 is (false, nil).
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	if isS3NotFound(err) {
		return false, nil
	}

	return false, &Error{Op: "exists", Key: key, Err: s3CredentialError(err)}
}

// Upload streams r to key with the configured storage class.
func (s *S3Store) Upload(ctx context.Context, r io.ReadSeeker, size int64, key string, fn progress.Func) error {
	if err := rewind(r, key); err != nil {
		return err
	}

	s.logger.Debug("uploading object",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int64("size", size),
		slog.String("storage_class", string(s.storageClass)),
	)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         progress.NewReader(r, size, fn),
		StorageClass: s.storageClass,
	})
	if err != nil {
		return &Error{Op: "upload", Key: key, Err: s3CredentialError(err)}
	}

	return nil
}

// isS3NotFound recognizes HEAD not-found in its typed, coded, and bare-status
// forms. HEAD responses carry no body, so the code is often just "NotFound".
func isS3NotFound(err error) bool {
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}

	return false
}

func s3CredentialError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return wrapCredentialError(apiErr.ErrorCode(), err)
	}

	return err
}
