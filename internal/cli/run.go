package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Run the pipeline once on a batch",
		Long: `Run the ingestion pipeline once on a batch of scraped records.

The source is a JSON or CSV file, "-" for stdin, or s3://bucket/key.

Exit codes:
  0  records were inserted
  1  the run failed and nothing was written
  2  bad flags, configuration or batch
  3  the run finished without inserting (no valid records, all duplicates,
     or a duplicate conflict)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runOnce(ctx, rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runOnce(ctx context.Context, opts *RootOptions, ref string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	a, err := newApp(ctx, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitCommandError, "", err)
	}
	defer a.Close(context.WithoutCancel(ctx))

	batch, err := a.reader.Read(ctx, ref)
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitCommandError, "", err)
	}

	res, err := a.service.Run(ctx, batch.Records)
	if err != nil {
		formatter.Error(err, res.RunID)
		return WrapExitError(ExitFailure, "run failed", err)
	}

	if err := formatter.Run(res.Report()); err != nil {
		return WrapExitError(ExitFailure, "write report", err)
	}
	return outcomeExit(res.Outcome)
}

// outcomeExit maps a finished run to its exit code.
func outcomeExit(out core.Outcome) error {
	err := out.Err()
	if err == nil {
		return nil
	}
	var nie *core.NoInsertError
	if errors.As(err, &nie) {
		return WrapExitError(ExitNothingInserted, "", err)
	}
	return WrapExitError(ExitFailure, "", err)
}
