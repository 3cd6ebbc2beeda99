package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/regingest/internal/source"
	"github.com/JonMunkholm/regingest/internal/watch"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	Dir  string
	Once bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest batch files dropped into an inbox directory",
		Long: `Poll an inbox directory for *.json and *.csv batches and run each one
through the pipeline, every WATCH_INTERVAL.

Finished batches move to processed/, unreadable or fatally failed batches
to failed/. Batches turned away because another run holds the entity stay
in the inbox for the next scan.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "inbox directory (default: WATCH_INBOX_DIR)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "scan the inbox once and exit")

	return cmd
}

// WatchSummary is printed by watch --once.
type WatchSummary struct {
	Inbox     string `json:"inbox"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Deferred  int    `json:"deferred"`
}

func (s WatchSummary) String() string {
	return fmt.Sprintf("%s: %d processed, %d failed, %d deferred", s.Inbox, s.Processed, s.Failed, s.Deferred)
}

func runWatch(ctx context.Context, rootOpts *RootOptions, opts *WatchOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

	a, err := newApp(ctx, nil, cmd.ErrOrStderr())
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitCommandError, "", err)
	}
	defer a.Close(context.WithoutCancel(ctx))

	dir := opts.Dir
	if dir == "" {
		dir = a.cfg.Watch.InboxDir
	}
	w := watch.New(source.NewInbox(dir), a.service, a.cfg.Watch.Interval)

	if !opts.Once {
		w.Start(ctx)
		return nil
	}

	res, err := w.Scan(ctx)
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitFailure, "scan inbox", err)
	}
	summary := WatchSummary{Inbox: dir, Processed: res.Processed, Failed: res.Failed, Deferred: res.Deferred}
	if err := formatter.Success(summary); err != nil {
		return WrapExitError(ExitFailure, "write summary", err)
	}
	if res.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: "some batches failed"}
	}
	return nil
}
