package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates value formats, and
// returns the resulting Config. Unknown keys are fatal with "did you mean?"
// suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	logger.Debug("config loaded", slog.String("path", path),
		slog.String("provider", cfg.Destination.Provider),
		slog.String("bucket", cfg.Destination.Bucket))

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with default values.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The returned Config has passed both format and completeness validation.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)

	if cli.FolderID != "" {
		cfg.Source.RootFolderID = cli.FolderID
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath()
	}

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// applyEnv layers environment values onto cfg. Static destination keys from
// the environment are a fallback: a pair set in the config file wins.
func applyEnv(cfg *Config, env EnvOverrides) {
	if env.RootFolderID != "" {
		cfg.Source.RootFolderID = env.RootFolderID
	}

	if cfg.Destination.AccessKey == "" && cfg.Destination.AccessSecret == "" {
		cfg.Destination.AccessKey = env.AccessKey
		cfg.Destination.AccessSecret = env.AccessSecret
	}
}
