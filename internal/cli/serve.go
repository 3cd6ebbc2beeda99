package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/regingest/internal/web"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger",
		Long: `Serve the HTTP trigger for pipeline runs.

  POST /api/runs       run a posted batch (JSON array, CSV, or {"source": "s3://..."})
  POST /api/validate   validate a posted batch
  GET  /api/runs/status
  GET  /healthz

SIGINT and SIGTERM stop accepting requests and wait up to
SERVER_SHUTDOWN_TIMEOUT for running pipelines.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default: SERVER_HOST:SERVER_PORT)")

	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *ServeOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

	a, err := newApp(ctx, nil, cmd.ErrOrStderr())
	if err != nil {
		formatter.Error(err, "")
		return WrapExitError(ExitCommandError, "", err)
	}
	defer a.Close(context.WithoutCancel(ctx))

	addr := opts.Addr
	if addr == "" {
		addr = a.cfg.Server.Addr()
	}

	server := web.NewServer(a.service, a.reader, a.cfg.Server, a.cfg.Security)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	select {
	case err := <-errCh:
		if err != nil {
			formatter.Error(err, "")
			return WrapExitError(ExitFailure, "server stopped", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := a.service.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for runs to complete", "active", status.Active)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	if err := <-errCh; err != nil {
		return WrapExitError(ExitFailure, "server stopped", err)
	}
	slog.Info("server stopped")
	return nil
}
