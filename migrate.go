package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive2s3/internal/config"
	"github.com/tonimelisma/drive2s3/internal/journal"
	"github.com/tonimelisma/drive2s3/internal/migrate"
	"github.com/tonimelisma/drive2s3/internal/objstore"
	"github.com/tonimelisma/drive2s3/internal/progress"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the source folder tree into the bucket",
		Long: `List every file under the source folder and upload each one that is not yet
in the bucket. Failed files are reported and do not stop the run; run migrate
again to retry them. Prompts for browser login if no token is cached.

Exit status is 0 whenever the run completes, even if some files failed.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().String("folder", "", "Drive folder id (overrides source.root_folder_id)")
	cmd.Flags().Bool("dry-run", false, "list and check the bucket without transferring anything")

	return cmd
}

// runLockPath is the lock file that keeps migrations from overlapping.
func runLockPath() string {
	return filepath.Join(config.DefaultDataDir(), "migrate.pid")
}

// migrateOutput is the JSON schema for `migrate --json`.
type migrateOutput struct {
	RunID      string   `json:"run_id,omitempty"`
	DryRun     bool     `json:"dry_run"`
	Total      int      `json:"total"`
	Skipped    int      `json:"skipped"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Pending    int      `json:"pending"`
	Bytes      int64    `json:"bytes"`
	FailedKeys []string `json:"failed_keys"`
	ElapsedMS  int64    `json:"elapsed_ms"`
}

// migrationSource is the Drive side of a run. *gdrive.Client is one.
type migrationSource interface {
	migrate.Lister
	migrate.Fetcher
}

// migrationRun is everything runMigrate assembles before the first file.
type migrationRun struct {
	source migrationSource
	store  objstore.Store
	bars   *progress.Bars
	dryRun bool
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	release, err := lockForRun(runLockPath(), dryRun)
	if err != nil {
		return err
	}
	defer release()

	// Destination first: bad credentials fail before any login prompt.
	store, err := newStore(ctx, cc)
	if err != nil {
		return err
	}

	client, err := newDriveClient(ctx, cc, true)
	if err != nil {
		return err
	}

	return executeMigration(ctx, cc, cmd.OutOrStdout(), cmd.ErrOrStderr(), migrationRun{
		source: client,
		store:  store,
		bars:   progress.NewBars(os.Stderr, progress.Enabled(os.Stderr, cc.Flags.Quiet)),
		dryRun: dryRun,
	})
}

// lockForRun takes the run lock at path. A dry run writes nothing and
// shares the bucket and journal freely, so it takes no lock.
func lockForRun(path string, dryRun bool) (release func(), err error) {
	if dryRun {
		return func() {}, nil
	}

	return acquireRunLock(path)
}

// executeMigration runs mr against the configured folder and prints the
// summary. Failed files leave the error nil; only a fatal abort returns one,
// after the partial summary is printed.
func executeMigration(ctx context.Context, cc *CLIContext, stdout, stderr io.Writer, mr migrationRun) error {
	cfg := cc.Cfg

	opts := []migrate.Option{
		migrate.WithLogger(cc.Logger),
		migrate.WithBars(mr.bars),
		migrate.WithDryRun(mr.dryRun),
		migrate.WithKeyNormalization(cfg.Destination.NormalizeKeys),
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.Journal.Path, cc.Logger)
		if err != nil {
			cc.Logger.Warn("journal unavailable, run will not be recorded",
				slog.String("path", cfg.Journal.Path),
				slog.String("error", err.Error()),
			)
		} else {
			defer j.Close()

			opts = append(opts, migrate.WithRecorder(j))
		}
	}

	sum, runErr := migrate.New(mr.source, mr.source, mr.store, opts...).Run(ctx, cfg.Source.RootFolderID)
	if sum == nil {
		return runErr
	}

	if cc.Flags.JSON {
		if err := printMigrateJSON(stdout, sum); err != nil {
			return err
		}
	} else if !cc.Flags.Quiet {
		printMigrateText(stderr, sum)
	}

	return runErr
}

func printMigrateJSON(w io.Writer, sum *migrate.Summary) error {
	failed := sum.FailedKeys
	if failed == nil {
		failed = []string{}
	}

	return printJSON(w, migrateOutput{
		RunID:      sum.RunID,
		DryRun:     sum.DryRun,
		Total:      sum.Total,
		Skipped:    sum.Skipped,
		Succeeded:  sum.Succeeded,
		Failed:     sum.Failed,
		Pending:    sum.Pending,
		Bytes:      sum.Bytes,
		FailedKeys: failed,
		ElapsedMS:  sum.Elapsed.Milliseconds(),
	})
}

func printMigrateText(w io.Writer, sum *migrate.Summary) {
	if sum.DryRun {
		fmt.Fprintf(w, "Dry run: %d files, %d would be migrated, %d already in bucket\n",
			sum.Total, sum.Pending, sum.Skipped)
	} else {
		fmt.Fprintf(w, "Migrated %d files (%s), skipped %d, failed %d in %s\n",
			sum.Succeeded, formatSize(sum.Bytes), sum.Skipped, sum.Failed, formatElapsed(sum.Elapsed))
	}

	if sum.Failed == 0 {
		return
	}

	fmt.Fprintln(w, "Failed:")

	for _, key := range sum.FailedKeys {
		fmt.Fprintf(w, "  %s\n", key)
	}

	if sum.RunID != "" {
		fmt.Fprintln(w, "Run 'drive2s3 history --failed' to list them again, or 'drive2s3 migrate' to retry.")
	}
}
