// Package migrate drives a migration: list the source tree, then for each
// file check the destination, fetch, and upload. Files are processed one at
// a time and a failed file never stops the ones after it.
package migrate

import (
	"bytes"
	"context"
	"time"

	"github.com/tonimelisma/drive2s3/internal/gdrive"
	"github.com/tonimelisma/drive2s3/internal/journal"
	"github.com/tonimelisma/drive2s3/internal/progress"
)

// Lister enumerates the files under a source folder.
type Lister interface {
	ListFiles(ctx context.Context, folderID string) ([]gdrive.FileRecord, error)
}

// Fetcher downloads one source file into memory.
type Fetcher interface {
	Fetch(ctx context.Context, fileID string, fn progress.Func) (*bytes.Buffer, error)
}

// Recorder persists run outcomes. *journal.Journal satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, folderID string, dryRun bool) (string, error)
	Record(ctx context.Context, runID string, e journal.Entry) error
	FinishRun(ctx context.Context, runID string, t journal.Totals) error
}

// Status is the final state of one file in a run.
type Status string

// Statuses share their spelling with the journal.
const (
	StatusSkipped   Status = journal.StatusSkipped
	StatusSucceeded Status = journal.StatusSucceeded
	StatusFailed    Status = journal.StatusFailed
	StatusPending   Status = journal.StatusPending // dry run: would be transferred
)

// Outcome is the result of migrating one file.
type Outcome struct {
	Key    string
	FileID string
	Status Status
	Bytes  int64
	Err    error
}

// Summary totals a run.
type Summary struct {
	RunID      string
	DryRun     bool
	Total      int
	Skipped    int
	Succeeded  int
	Failed     int
	Pending    int
	Bytes      int64
	FailedKeys []string
	Elapsed    time.Duration
}

func (s *Summary) add(o Outcome) {
	switch o.Status {
	case StatusSkipped:
		s.Skipped++
	case StatusSucceeded:
		s.Succeeded++
		s.Bytes += o.Bytes
	case StatusFailed:
		s.Failed++
		s.FailedKeys = append(s.FailedKeys, o.Key)
	case StatusPending:
		s.Pending++
	}
}

func (s *Summary) totals() journal.Totals {
	return journal.Totals{
		Skipped:   s.Skipped,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Pending:   s.Pending,
		Bytes:     s.Bytes,
	}
}
