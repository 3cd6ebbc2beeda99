// Package logging provides structured logging configuration using log/slog.
//
// Loggers pulled from a context carry the chi request id of an HTTP trigger
// and the run id and entity of a pipeline run, so every line of one run can
// be found with a single filter.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup configures the global slog logger. Logs go to stderr so that
// command output on stdout stays machine readable.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type runKey struct{}

type runInfo struct {
	id     string
	entity string
}

// WithRun tags ctx with a pipeline run id and entity.
func WithRun(ctx context.Context, runID, entity string) context.Context {
	return context.WithValue(ctx, runKey{}, runInfo{id: runID, entity: entity})
}

// RunID returns the run id stored by WithRun, or "".
func RunID(ctx context.Context) string {
	if info, ok := ctx.Value(runKey{}).(runInfo); ok {
		return info.id
	}
	return ""
}

// FromContext returns the default logger enriched with the request id and
// run attributes found in ctx.
//
//	func handleRun(w http.ResponseWriter, r *http.Request) {
//	    logger := logging.FromContext(r.Context())
//	    logger.Info("run requested", "records", n)
//	}
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if info, ok := ctx.Value(runKey{}).(runInfo); ok {
		logger = logger.With("run_id", info.id, "entity", info.entity)
	}

	return logger
}

// WithFields returns a context logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
