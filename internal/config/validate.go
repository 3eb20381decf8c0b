package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation range constants.
const (
	minChunkBytes     = 256 * kibibyte
	maxChunkBytes     = 256 * mebibyte
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	maxRetriesCeiling = 20
)

var validProviders = map[string]bool{
	ProviderS3:    true,
	ProviderMinio: true,
}

var validStorageClasses = map[string]bool{
	"STANDARD":            true,
	"REDUCED_REDUNDANCY":  true,
	"STANDARD_IA":         true,
	"ONEZONE_IA":          true,
	"INTELLIGENT_TIERING": true,
	"GLACIER":             true,
	"GLACIER_IR":          true,
	"DEEP_ARCHIVE":        true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks value formats and returns all errors found, so users can
// fix every issue in one pass. Required fields are checked later by
// ValidateResolved because environment and flags may still supply them.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDestination(&cfg.Destination)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

// ValidateResolved checks that every required value is present after the
// override chain has been applied.
func ValidateResolved(cfg *Config) error {
	var errs []error

	required := []struct {
		name  string
		value string
	}{
		{"source.client_secret_file", cfg.Source.ClientSecretFile},
		{"source.application_name", cfg.Source.ApplicationName},
		{"source.root_folder_id", cfg.Source.RootFolderID},
		{"destination.provider", cfg.Destination.Provider},
		{"destination.region", cfg.Destination.Region},
		{"destination.bucket", cfg.Destination.Bucket},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s: required", r.name))
		}
	}

	if len(cfg.Source.Scopes) == 0 {
		errs = append(errs, errors.New("source.scopes: at least one scope is required"))
	}

	if cfg.Destination.Provider == ProviderMinio && cfg.Destination.Endpoint == "" {
		errs = append(errs, errors.New("destination.endpoint: required for the minio provider"))
	}

	if (cfg.Destination.AccessKey == "") != (cfg.Destination.AccessSecret == "") {
		errs = append(errs, errors.New("destination: access_key and access_secret must be set together"))
	}

	return errors.Join(errs...)
}

func validateDestination(d *DestinationConfig) []error {
	var errs []error

	if d.Provider != "" && !validProviders[d.Provider] {
		errs = append(errs, fmt.Errorf("destination.provider: must be s3 or minio, got %q", d.Provider))
	}

	if !validStorageClasses[d.StorageClass] {
		errs = append(errs, fmt.Errorf("destination.storage_class: unknown storage class %q", d.StorageClass))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ChunkSize < minChunkBytes || t.ChunkSize > maxChunkBytes {
		errs = append(errs, fmt.Errorf("transfers.chunk_size: must be between %s and %s, got %s",
			ByteSize(minChunkBytes), ByteSize(maxChunkBytes), t.ChunkSize))
	}

	if t.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("transfers.max_file_size: must be non-negative, got %d", int64(t.MaxFileSize)))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDuration("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesCeiling {
		errs = append(errs, fmt.Errorf("network.max_retries: must be between 0 and %d, got %d",
			maxRetriesCeiling, n.MaxRetries))
	}

	return errs
}

func validateDuration(name, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", name, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", name, minimum, value)}
	}

	return nil
}

// ChunkSizeBytes returns the download chunk size in bytes.
func (t *TransfersConfig) ChunkSizeBytes() int64 {
	return int64(t.ChunkSize)
}

// MaxFileSizeBytes returns the per-file ceiling; 0 means unlimited.
func (t *TransfersConfig) MaxFileSizeBytes() int64 {
	return int64(t.MaxFileSize)
}

// ConnectTimeoutDuration returns the parsed connect timeout.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.ConnectTimeout)

	return d
}

// DataTimeoutDuration returns the parsed data timeout.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.DataTimeout)

	return d
}
