package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/JonMunkholm/regingest/internal/config"
	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/database"
	"github.com/JonMunkholm/regingest/internal/lock"
	"github.com/JonMunkholm/regingest/internal/logging"
	"github.com/JonMunkholm/regingest/internal/source"
	"github.com/JonMunkholm/regingest/internal/tracing"
)

// app is the wiring shared by run, serve and watch.
type app struct {
	cfg     *config.Config
	service *core.Service
	reader  *source.Reader

	closers []func(context.Context) error
}

// newApp loads configuration, installs logging and tracing on stderr, and
// builds the pipeline service. Close must be called on success.
func newApp(ctx context.Context, stdin io.Reader, stderr io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.SetupWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	a := &app{cfg: cfg}

	shutdown, err := tracing.SetupWriter(stderr, cfg.Tracing.Exporter, cfg.Tracing.ServiceName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	catalog, err := core.LoadCatalog(cfg.Ingest.RulesPath)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	driver, err := database.ParseDriver(cfg.Database.Driver)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	locker, err := a.locker(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.service = core.NewService(catalog, opener(driver, cfg.Database.URL, cfg.Ingest.BatchSize), locker, core.Options{
		Entity:        cfg.Ingest.Entity,
		ComponentID:   cfg.Ingest.ComponentID,
		IDStrategy:    core.IDStrategy(cfg.Ingest.IDStrategy),
		Timeout:       cfg.Ingest.Timeout,
		MaxConcurrent: cfg.Server.MaxConcurrentRuns,
		MaxWait:       cfg.Server.MaxWait,
	})
	a.reader = source.NewReader(source.Config{
		Region:   cfg.Source.AWSRegion,
		Endpoint: cfg.Source.S3Endpoint,
	}).WithStdin(stdin)

	slog.Info("pipeline ready",
		"entity", cfg.Ingest.Entity,
		"driver", string(driver),
		"rules", catalog.Len(),
		"id_strategy", cfg.Ingest.IDStrategy,
	)
	return a, nil
}

// locker returns the redis lock when LOCK_REDIS_URL is set and nil otherwise,
// which makes the service use an in-process lock.
func (a *app) locker(ctx context.Context) (lock.Locker, error) {
	if a.cfg.Lock.RedisURL == "" {
		return nil, nil
	}
	r, err := lock.OpenRedis(ctx, a.cfg.Lock.RedisURL, a.cfg.Lock.TTL, a.cfg.Server.MaxWait)
	if err != nil {
		return nil, fmt.Errorf("lock: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return r.Close() })
	return r, nil
}

// opener connects once per run. SQLite databases get the bootstrap schema.
func opener(driver database.Driver, url string, batchSize int) core.Opener {
	return func(ctx context.Context) (core.Store, error) {
		var (
			db  *database.DB
			err error
		)
		if driver == database.SQLite {
			db, err = database.OpenSQLite(ctx, url)
		} else {
			db, err = database.Open(ctx, driver, url)
		}
		if err != nil {
			return nil, err
		}
		db.SetBatchSize(batchSize)
		return db, nil
	}
}

// Close releases the lock client and flushes traces, newest first.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}
	a.closers = nil
}
