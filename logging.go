package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tonimelisma/drive2s3/internal/config"
)

// parseLevel maps a config log_level to a slog level.
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleLevel is the config level overridden by --verbose/--quiet.
func consoleLevel(cfg *config.Config, flags CLIFlags) slog.Level {
	level := slog.LevelInfo
	if cfg != nil {
		level = parseLevel(cfg.Logging.LogLevel)
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// buildBootstrapLogger is used while config is still being loaded.
func buildBootstrapLogger(flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	if flags.Verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger logs to stderr at the console level and, when
// logging.log_file is set, appends to that file at the config level so the
// file keeps a full record even under --quiet. The returned func closes the
// file.
func buildLogger(cfg *config.Config, flags CLIFlags) (*slog.Logger, func() error) {
	return newLogger(os.Stderr, cfg, flags)
}

func newLogger(console io.Writer, cfg *config.Config, flags CLIFlags) (*slog.Logger, func() error) {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: consoleLevel(cfg, flags)})

	if cfg == nil || cfg.Logging.LogFile == "" {
		return slog.New(consoleHandler), nil
	}

	f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:mnd,gosec // plain log file
	if err != nil {
		logger := slog.New(consoleHandler)
		logger.Warn("cannot open log file, logging to console only",
			slog.String("path", cfg.Logging.LogFile),
			slog.String("error", err.Error()),
		)

		return logger, nil
	}

	fileLevel := parseLevel(cfg.Logging.LogLevel)
	if flags.Verbose {
		fileLevel = slog.LevelDebug
	}

	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: fileLevel})

	closeFn := func() error {
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}

		return nil
	}

	return slog.New(teeHandler{consoleHandler, fileHandler}), closeFn
}

// teeHandler sends each record to every handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}

	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}

	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}

	return out
}
