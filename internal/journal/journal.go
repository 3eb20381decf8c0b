// Package journal keeps a SQLite record of migration runs and the outcome of
// every file in them, so failures can be listed and retried later.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Outcome statuses as stored in outcomes.status.
const (
	StatusSkipped   = "skipped"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)

// ErrNoRuns is returned by LastRun when the journal is empty.
var ErrNoRuns = errors.New("journal: no runs recorded")

const (
	sqlInsertRun = `INSERT INTO runs (id, folder_id, dry_run, started_at) VALUES (?, ?, ?, ?)`

	sqlFinishRun = `UPDATE runs SET finished_at = ?, skipped = ?, succeeded = ?,
		failed = ?, pending = ?, bytes = ? WHERE id = ?`

	sqlInsertOutcome = `INSERT INTO outcomes
		(run_id, object_key, file_id, status, bytes, error_msg, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqlLastRun = `SELECT id, folder_id, dry_run, started_at, finished_at,
		skipped, succeeded, failed, pending, bytes
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`

	sqlOutcomes = `SELECT object_key, file_id, status, bytes, error_msg, recorded_at
		FROM outcomes WHERE run_id = ? ORDER BY id`

	sqlOutcomesByStatus = `SELECT object_key, file_id, status, bytes, error_msg, recorded_at
		FROM outcomes WHERE run_id = ? AND status = ? ORDER BY id`
)

// Run is one row of the runs table. FinishedAt is zero for a run that never
// finished (the process was killed or a fatal error stopped it).
type Run struct {
	ID         string    `json:"id"`
	FolderID   string    `json:"folder_id"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Totals
}

// Totals are the per-status counts written when a run finishes.
type Totals struct {
	Skipped   int   `json:"skipped"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Pending   int   `json:"pending"`
	Bytes     int64 `json:"bytes"`
}

// Entry is the recorded outcome of one file.
type Entry struct {
	Key        string    `json:"key"`
	FileID     string    `json:"file_id"`
	Status     string    `json:"status"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Journal is the sole writer to the journal database.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the journal database at path and applies
// migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", path))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: closing database: %w", err)
	}

	return nil
}

// StartRun inserts a new run and returns its id.
func (j *Journal) StartRun(ctx context.Context, folderID string, dryRun bool) (string, error) {
	id := uuid.NewString()

	if _, err := j.db.ExecContext(ctx, sqlInsertRun, id, folderID, dryRun, j.nowFunc().UnixNano()); err != nil {
		return "", fmt.Errorf("journal: starting run: %w", err)
	}

	j.logger.Debug("run started", slog.String("run_id", id), slog.String("folder_id", folderID))

	return id, nil
}

// Record appends one file outcome to runID.
func (j *Journal) Record(ctx context.Context, runID string, e Entry) error {
	var errMsg sql.NullString
	if e.Error != "" {
		errMsg = sql.NullString{String: e.Error, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, sqlInsertOutcome,
		runID, e.Key, e.FileID, e.Status, e.Bytes, errMsg, j.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("journal: recording %s: %w", e.Key, err)
	}

	return nil
}

// FinishRun stamps runID as finished with its totals.
func (j *Journal) FinishRun(ctx context.Context, runID string, t Totals) error {
	res, err := j.db.ExecContext(ctx, sqlFinishRun,
		j.nowFunc().UnixNano(), t.Skipped, t.Succeeded, t.Failed, t.Pending, t.Bytes, runID)
	if err != nil {
		return fmt.Errorf("journal: finishing run %s: %w", runID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("journal: finishing run %s: no such run", runID)
	}

	return nil
}

// LastRun returns the most recently started run, or ErrNoRuns.
func (j *Journal) LastRun(ctx context.Context) (*Run, error) {
	var (
		r          Run
		startedAt  int64
		finishedAt sql.NullInt64
	)

	err := j.db.QueryRowContext(ctx, sqlLastRun).Scan(
		&r.ID, &r.FolderID, &r.DryRun, &startedAt, &finishedAt,
		&r.Skipped, &r.Succeeded, &r.Failed, &r.Pending, &r.Bytes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}

	if err != nil {
		return nil, fmt.Errorf("journal: reading last run: %w", err)
	}

	r.StartedAt = time.Unix(0, startedAt)
	if finishedAt.Valid {
		r.FinishedAt = time.Unix(0, finishedAt.Int64)
	}

	return &r, nil
}

// Outcomes lists the entries of runID in the order they were recorded.
// A non-empty status keeps only entries with that status.
func (j *Journal) Outcomes(ctx context.Context, runID, status string) ([]Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if status == "" {
		rows, err = j.db.QueryContext(ctx, sqlOutcomes, runID)
	} else {
		rows, err = j.db.QueryContext(ctx, sqlOutcomesByStatus, runID, status)
	}

	if err != nil {
		return nil, fmt.Errorf("journal: listing outcomes of %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e          Entry
			errMsg     sql.NullString
			recordedAt int64
		)

		if err := rows.Scan(&e.Key, &e.FileID, &e.Status, &e.Bytes, &errMsg, &recordedAt); err != nil {
			return nil, fmt.Errorf("journal: scanning outcome: %w", err)
		}

		e.Error = errMsg.String
		e.RecordedAt = time.Unix(0, recordedAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating outcomes: %w", err)
	}

	return entries, nil
}
