package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive2s3/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the outcome of the last migration run",
		Long: `Print the totals and per-file outcomes of the most recent migrate run from the
local journal. With --failed, print only the keys that failed, one per line.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().Bool("failed", false, "list only failed keys")

	return cmd
}

// historyOutput is the JSON schema for `history --json`.
type historyOutput struct {
	Run      *journal.Run    `json:"run"`
	Outcomes []journal.Entry `json:"outcomes"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	onlyFailed, err := cmd.Flags().GetBool("failed")
	if err != nil {
		return err
	}

	if !cc.Cfg.Journal.Enabled {
		return errors.New("the run journal is disabled (journal.enabled = false)")
	}

	j, err := journal.Open(ctx, cc.Cfg.Journal.Path, cc.Logger)
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.LastRun(ctx)
	if errors.Is(err, journal.ErrNoRuns) {
		cc.Statusf("No migration runs recorded.\n")
		return nil
	}

	if err != nil {
		return err
	}

	status := ""
	if onlyFailed {
		status = journal.StatusFailed
	}

	entries, err := j.Outcomes(ctx, run.ID, status)
	if err != nil {
		return err
	}

	if entries == nil {
		entries = []journal.Entry{}
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), historyOutput{Run: run, Outcomes: entries})
	}

	if onlyFailed {
		printFailedKeys(cmd.OutOrStdout(), entries)
		return nil
	}

	printHistoryText(cmd.OutOrStdout(), run, entries)

	return nil
}

func printFailedKeys(w io.Writer, entries []journal.Entry) {
	for _, e := range entries {
		fmt.Fprintln(w, e.Key)
	}
}

func printHistoryText(w io.Writer, run *journal.Run, entries []journal.Entry) {
	state := "finished " + formatTime(run.FinishedAt)
	if run.FinishedAt.IsZero() {
		state = "did not finish"
	}

	kind := "Run"
	if run.DryRun {
		kind = "Dry run"
	}

	fmt.Fprintf(w, "%s %s of folder %s, started %s, %s\n",
		kind, run.ID, run.FolderID, formatTime(run.StartedAt), state)
	fmt.Fprintf(w, "Succeeded: %d (%s)  Skipped: %d  Failed: %d  Pending: %d\n\n",
		run.Succeeded, formatSize(run.Bytes), run.Skipped, run.Failed, run.Pending)

	if len(entries) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Status, e.Key, e.Error})
	}

	printTable(w, []string{"STATUS", "KEY", "ERROR"}, rows)
}
