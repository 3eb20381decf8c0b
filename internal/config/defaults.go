package config

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultScope          = "https://www.googleapis.com/auth/drive"
	defaultProvider       = ProviderS3
	defaultStorageClass   = "GLACIER_IR"
	defaultChunkSize      = 10 * mebibyte
	defaultMaxFileSize    = 0
	defaultLogLevel       = "info"
	defaultLogFile        = "migration.log"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultMaxRetries     = 5
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Scopes: []string{defaultScope},
		},
		Destination: DestinationConfig{
			Provider:     defaultProvider,
			StorageClass: defaultStorageClass,
		},
		Transfers: TransfersConfig{
			ChunkSize:   defaultChunkSize,
			MaxFileSize: defaultMaxFileSize,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
			LogFile:  defaultLogFile,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			MaxRetries:     defaultMaxRetries,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}
