package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive2s3/internal/gdrive"
	"github.com/tonimelisma/drive2s3/internal/migrate"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the object keys a migration would produce",
		Long: `Walk the source folder tree and print one line per file with the object key
it maps to. Folders are not listed, and trashed files only when
source.include_trashed is set. Nothing is read from or written to the bucket.`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}

	cmd.Flags().String("folder", "", "Drive folder id (overrides source.root_folder_id)")

	return cmd
}

// lsEntry is the JSON schema for one line of `ls --json`.
type lsEntry struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	MimeType string `json:"mime_type"`
}

func runLs(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	client, err := newDriveClient(ctx, cc, false)
	if err != nil {
		return err
	}

	records, err := client.ListFiles(ctx, cc.Cfg.Source.RootFolderID)
	if err != nil {
		return err
	}

	normalize := cc.Cfg.Destination.NormalizeKeys

	if cc.Flags.JSON {
		return printLsJSON(cmd.OutOrStdout(), records, normalize)
	}

	printLsText(cmd.OutOrStdout(), records, normalize)
	cc.Statusf("%d files\n", len(records))

	return nil
}

func printLsJSON(w io.Writer, records []gdrive.FileRecord, normalize bool) error {
	out := make([]lsEntry, 0, len(records))
	for _, r := range records {
		out = append(out, lsEntry{ID: r.ID, Key: migrate.ObjectKey(r.Path, normalize), MimeType: r.MimeType})
	}

	return printJSON(w, out)
}

func printLsText(w io.Writer, records []gdrive.FileRecord, normalize bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No files.")
		return
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{migrate.ObjectKey(r.Path, normalize), r.ID})
	}

	printTable(w, []string{"KEY", "ID"}, rows)
}
