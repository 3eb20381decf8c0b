// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drive2s3. Values are layered as
// defaults -> config file -> environment -> CLI flags, and the resolved
// Config is passed by pointer to every constructor. There is no global.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Transfers   TransfersConfig   `toml:"transfers"`
	Logging     LoggingConfig     `toml:"logging"`
	Network     NetworkConfig     `toml:"network"`
	Journal     JournalConfig     `toml:"journal"`
}

// SourceConfig describes the Google Drive side: the OAuth client and the
// folder whose tree is migrated.
type SourceConfig struct {
	Scopes           []string `toml:"scopes"`
	ClientSecretFile string   `toml:"client_secret_file"`
	ApplicationName  string   `toml:"application_name"`
	RootFolderID     string   `toml:"root_folder_id"`
	IncludeTrashed   bool     `toml:"include_trashed"`
}

// DestinationConfig describes the object store that receives the files.
// AccessKey and AccessSecret may be left empty and filled from the
// environment; for the s3 provider the AWS default chain is the last resort.
type DestinationConfig struct {
	Provider      string `toml:"provider"`
	Region        string `toml:"region"`
	Bucket        string `toml:"bucket"`
	Endpoint      string `toml:"endpoint"`
	AccessKey     string `toml:"access_key"`
	AccessSecret  string `toml:"access_secret"`
	StorageClass  string `toml:"storage_class"`
	NormalizeKeys bool   `toml:"normalize_keys"`
}

// TransfersConfig controls download chunking and the per-file size ceiling.
type TransfersConfig struct {
	ChunkSize   ByteSize `toml:"chunk_size"`
	MaxFileSize ByteSize `toml:"max_file_size"` // 0 means unlimited
}

// LoggingConfig controls log level and the append-only log file.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// NetworkConfig controls HTTP client behavior for both the source and the
// destination.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	MaxRetries     int    `toml:"max_retries"`
}

// JournalConfig controls the local run journal used by the history command.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config flag
	FolderID   string // --folder flag
}

// Provider names accepted by destination.provider.
const (
	ProviderS3    = "s3"
	ProviderMinio = "minio"
)
