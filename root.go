package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive2s3/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that run without a resolved config.
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
	JSON       bool
}

// CLIContext is built once in PersistentPreRunE and carried on the command
// context. Cfg is nil for commands annotated with skipConfigAnnotation.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Config
	Logger *slog.Logger

	closeLog func() error
}

type cliContextKey struct{}

// cliSlot hands the CLIContext built by the pre-run back to execute, which
// closes it once the command returns.
type cliSlot struct {
	cc *CLIContext
}

type cliSlotKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext returns the CLIContext set by the root pre-run. Its absence
// is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("drive2s3: CLIContext missing from command context")
	}

	return cc
}

// Close flushes and closes the log file, if one is open.
func (cc *CLIContext) Close() error {
	if cc.closeLog == nil {
		return nil
	}

	return cc.closeLog()
}

// newRootCmd builds the root command with every subcommand registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "drive2s3",
		Short: "Migrate a Google Drive folder into an S3 bucket",
		Long: `drive2s3 copies every file under a Google Drive folder into an S3 or
S3-compatible bucket, using each file's path below the folder as its object key.
Objects that already exist are skipped, so an interrupted migration is resumed
by running it again.`,
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			if slot, ok := cmd.Context().Value(cliSlotKey{}).(*cliSlot); ok {
				slot.cc = cc
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output and progress bars")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// execute runs cmd and then closes the CLIContext its pre-run built. Cobra
// skips PersistentPostRunE when RunE fails, so the close lives here.
func execute(ctx context.Context, cmd *cobra.Command) error {
	slot := &cliSlot{}

	err := cmd.ExecuteContext(context.WithValue(ctx, cliSlotKey{}, slot))
	if slot.cc != nil {
		if closeErr := slot.cc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}

// newCLIContext resolves config (unless the command opts out) and builds
// the logger from it.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cc := &CLIContext{Flags: flags}

	if cmd.Annotations[skipConfigAnnotation] != "" {
		cc.Logger, cc.closeLog = buildLogger(nil, flags)
		return cc, nil
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	if f := cmd.Flags().Lookup("folder"); f != nil && f.Changed {
		cli.FolderID = f.Value.String()
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), cli, buildBootstrapLogger(flags))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cc.Cfg = cfg
	cc.Logger, cc.closeLog = buildLogger(cfg, flags)

	return cc, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "drive2s3 %s\n", version)
		},
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
