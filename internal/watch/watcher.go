// Package watch polls an inbox directory and feeds each batch file through
// the ingestion pipeline.
//
// A scan runs immediately on start and then every interval until the
// context is cancelled. Each file ends in one of three places:
//
//   - processed/ when the run finished, inserted or not
//   - failed/ when the file could not be read or the run failed fatally
//   - the inbox itself when the run was turned away because another run was
//     busy, so the next scan retries it
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/lock"
	"github.com/JonMunkholm/regingest/internal/record"
	"github.com/JonMunkholm/regingest/internal/source"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = time.Minute

// Runner executes one pipeline run. *core.Service implements it.
type Runner interface {
	Run(ctx context.Context, records []*record.Record) (core.RunResult, error)
}

// Watcher scans an inbox on a ticker.
type Watcher struct {
	inbox    *source.Inbox
	runner   Runner
	interval time.Duration
}

// New returns a Watcher for inbox. Non-positive intervals use DefaultInterval.
func New(inbox *source.Inbox, runner Runner, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{inbox: inbox, runner: runner, interval: interval}
}

// ScanResult counts what one scan did with the pending files.
type ScanResult struct {
	Processed int
	Failed    int
	Deferred  int
}

// Start blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	slog.Info("watcher started", "inbox", w.inbox.Dir(), "interval", w.interval)

	w.scanAndLog(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped")
			return
		case <-ticker.C:
			w.scanAndLog(ctx)
		}
	}
}

func (w *Watcher) scanAndLog(ctx context.Context) {
	start := time.Now()
	res, err := w.Scan(ctx)
	if err != nil {
		slog.Error("inbox scan failed", "error", err)
		return
	}
	if res.Processed+res.Failed+res.Deferred == 0 {
		slog.Debug("inbox empty")
		return
	}
	slog.Info("inbox scan completed",
		"processed", res.Processed,
		"failed", res.Failed,
		"deferred", res.Deferred,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Scan handles every pending file once, in name order. It stops early when
// ctx is cancelled, leaving the remaining files for the next start.
func (w *Watcher) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult

	files, err := w.inbox.Pending()
	if err != nil {
		return res, err
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return res, nil
		}
		switch w.handle(ctx, path) {
		case moved:
			res.Processed++
		case failed:
			res.Failed++
		case deferred:
			res.Deferred++
		}
	}
	return res, nil
}

type disposition int

const (
	moved disposition = iota
	failed
	deferred
)

func (w *Watcher) handle(ctx context.Context, path string) disposition {
	log := slog.With("file", filepath.Base(path))

	batch, err := source.ReadFile(path)
	if err != nil {
		log.Error("read batch", "error", err, "code", core.MapError(err).Code)
		return w.markFailed(log, path)
	}

	res, err := w.runner.Run(ctx, batch.Records)
	switch {
	case err == nil:
		log.Info("batch ingested",
			"run_id", res.RunID,
			"outcome", string(res.Outcome.Kind),
			"inserted", res.Outcome.Inserted,
		)
		if _, err := w.inbox.MarkProcessed(path); err != nil {
			log.Error("move batch", "error", err)
		}
		return moved
	case retryable(err):
		log.Warn("batch deferred", "run_id", res.RunID, "error", err)
		return deferred
	default:
		log.Error("batch failed", "run_id", res.RunID, "error", err, "code", core.MapError(err).Code)
		return w.markFailed(log, path)
	}
}

func (w *Watcher) markFailed(log *slog.Logger, path string) disposition {
	if _, err := w.inbox.MarkFailed(path); err != nil {
		log.Error("move batch", "error", err)
	}
	return failed
}

// retryable errors mean the run never started its own work.
func retryable(err error) bool {
	return errors.Is(err, core.ErrTooManyRuns) ||
		errors.Is(err, lock.ErrLocked) ||
		errors.Is(err, context.Canceled)
}
