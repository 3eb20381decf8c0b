package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/drive2s3/internal/gdrive"
	"github.com/tonimelisma/drive2s3/internal/journal"
	"github.com/tonimelisma/drive2s3/internal/objstore"
	"github.com/tonimelisma/drive2s3/internal/progress"
)

// Migrator copies a source folder tree into a destination store.
type Migrator struct {
	lister    Lister
	fetcher   Fetcher
	store     objstore.Store
	recorder  Recorder
	bars      *progress.Bars
	logger    *slog.Logger
	dryRun    bool
	normalize bool
	nowFunc   func() time.Time
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder records every outcome. Without one nothing is persisted.
func WithRecorder(r Recorder) Option {
	return func(m *Migrator) { m.recorder = r }
}

// WithBars draws progress bars for the run and each transfer.
func WithBars(b *progress.Bars) Option {
	return func(m *Migrator) { m.bars = b }
}

// WithDryRun lists and checks existence but never fetches or uploads.
func WithDryRun(dryRun bool) Option {
	return func(m *Migrator) { m.dryRun = dryRun }
}

// WithKeyNormalization rewrites object keys to Unicode NFC.
func WithKeyNormalization(enabled bool) Option {
	return func(m *Migrator) { m.normalize = enabled }
}

// New returns a Migrator.
func New(lister Lister, fetcher Fetcher, store objstore.Store, opts ...Option) *Migrator {
	m := &Migrator{
		lister:  lister,
		fetcher: fetcher,
		store:   store,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Run migrates every file under folderID. A listing failure is returned
// before any file is touched. Per-file failures are counted in the Summary
// and do not produce an error. ErrMissingCredentials from the store stops
// the run and is returned together with the partial Summary.
func (m *Migrator) Run(ctx context.Context, folderID string) (*Summary, error) {
	start := m.nowFunc()

	files, err := m.lister.ListFiles(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("migrate: listing %s: %w", folderID, err)
	}

	m.logger.Info("migration started",
		slog.String("folder_id", folderID),
		slog.Int("files", len(files)),
		slog.Bool("dry_run", m.dryRun),
	)

	sum := &Summary{DryRun: m.dryRun, Total: len(files)}
	sum.RunID = m.startRun(ctx, folderID)

	overall := m.bars.Run("files", len(files))
	defer overall.Finish()

	for i := range files {
		out := m.migrateFile(ctx, &files[i])
		sum.add(out)
		m.record(ctx, sum.RunID, out)
		overall.Increment()

		if errors.Is(out.Err, objstore.ErrMissingCredentials) {
			sum.Elapsed = m.nowFunc().Sub(start)
			return sum, fmt.Errorf("migrate: aborting at %s: %w", out.Key, out.Err)
		}
	}

	sum.Elapsed = m.nowFunc().Sub(start)
	m.finishRun(ctx, sum)

	m.logger.Info("migration finished",
		slog.Int("skipped", sum.Skipped),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
		slog.Int("pending", sum.Pending),
		slog.Int64("bytes", sum.Bytes),
		slog.Duration("elapsed", sum.Elapsed),
	)

	return sum, nil
}

// migrateFile runs one file through exists, fetch and upload.
func (m *Migrator) migrateFile(ctx context.Context, f *gdrive.FileRecord) Outcome {
	key := m.objectKey(f.Path)
	out := Outcome{Key: key, FileID: f.ID}

	exists, err := m.store.Exists(ctx, key)
	if err != nil {
		return m.fail(out, "checking destination", err)
	}

	if exists {
		out.Status = StatusSkipped
		m.logger.Info("skipping existing object", slog.String("key", key))

		return out
	}

	if m.dryRun {
		out.Status = StatusPending
		m.logger.Info("would migrate", slog.String("key", key), slog.String("file_id", f.ID))

		return out
	}

	fetchProgress, fetchDone := m.bars.Transfer("get " + key)
	buf, err := m.fetcher.Fetch(ctx, f.ID, fetchProgress)
	fetchDone()

	if err != nil {
		return m.fail(out, "fetching", err)
	}

	size := int64(buf.Len())

	uploadProgress, uploadDone := m.bars.Transfer("put " + key)
	err = m.store.Upload(ctx, bytes.NewReader(buf.Bytes()), size, key, uploadProgress)
	uploadDone()

	if err != nil {
		return m.fail(out, "uploading", err)
	}

	out.Status = StatusSucceeded
	out.Bytes = size

	m.logger.Info("migrated file", slog.String("key", key), slog.Int64("bytes", size))

	return out
}

func (m *Migrator) fail(out Outcome, stage string, err error) Outcome {
	out.Status = StatusFailed
	out.Err = fmt.Errorf("migrate: %s %s: %w", stage, out.Key, err)

	m.logger.Error("file failed",
		slog.String("key", out.Key),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)

	return out
}

func (m *Migrator) objectKey(path string) string {
	return ObjectKey(path, m.normalize)
}

// ObjectKey maps a source path to its destination key, rewritten to Unicode
// NFC when normalize is set.
func ObjectKey(path string, normalize bool) string {
	if normalize {
		return norm.NFC.String(path)
	}

	return path
}

// startRun opens a journal run. Journal errors are logged and the run
// continues unrecorded.
func (m *Migrator) startRun(ctx context.Context, folderID string) string {
	if m.recorder == nil {
		return ""
	}

	id, err := m.recorder.StartRun(ctx, folderID, m.dryRun)
	if err != nil {
		m.logger.Warn("journal unavailable, run will not be recorded", slog.String("error", err.Error()))
		return ""
	}

	return id
}

func (m *Migrator) record(ctx context.Context, runID string, out Outcome) {
	if m.recorder == nil || runID == "" {
		return
	}

	e := journal.Entry{
		Key:    out.Key,
		FileID: out.FileID,
		Status: string(out.Status),
		Bytes:  out.Bytes,
	}

	if out.Err != nil {
		e.Error = out.Err.Error()
	}

	if err := m.recorder.Record(ctx, runID, e); err != nil {
		m.logger.Warn("journal write failed",
			slog.String("key", out.Key),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Migrator) finishRun(ctx context.Context, sum *Summary) {
	if m.recorder == nil || sum.RunID == "" {
		return
	}

	if err := m.recorder.FinishRun(ctx, sum.RunID, sum.totals()); err != nil {
		m.logger.Warn("journal write failed", slog.String("run_id", sum.RunID), slog.String("error", err.Error()))
	}
}
