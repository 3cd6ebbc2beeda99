package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/regingest/internal/lock"
	"github.com/JonMunkholm/regingest/internal/logging"
	"github.com/JonMunkholm/regingest/internal/record"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/JonMunkholm/regingest/internal/core")

// DefaultRunTimeout is the maximum duration of one pipeline run.
const DefaultRunTimeout = 10 * time.Minute

// Options configures a Service.
type Options struct {
	Entity        string
	ComponentID   int64
	IDStrategy    IDStrategy
	Timeout       time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
}

// Service runs the ingestion pipeline for one entity:
// validate, lock, dedup, insert, link, report.
type Service struct {
	validator *Validator
	open      Opener
	locker    lock.Locker
	limiter   *RunLimiter
	opts      Options
}

// NewService wires a catalog, a store opener and a locker. A nil locker
// defaults to an in-process lock.
func NewService(catalog *Catalog, open Opener, locker lock.Locker, opts Options) *Service {
	if opts.Entity == "" {
		opts.Entity = DefaultEntity
	}
	if opts.ComponentID == 0 {
		opts.ComponentID = DefaultComponentID
	}
	if opts.IDStrategy == "" {
		opts.IDStrategy = IDsReturning
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRunTimeout
	}
	if locker == nil {
		locker = lock.NewLocal(opts.MaxWait)
	}
	return &Service{
		validator: NewValidator(catalog),
		open:      open,
		locker:    locker,
		limiter:   NewRunLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:      opts,
	}
}

// Entity returns the entity this service writes.
func (s *Service) Entity() string { return s.opts.Entity }

// Limiter exposes the run limiter for health output and shutdown.
func (s *Service) Limiter() *RunLimiter { return s.limiter }

// RunResult is everything a trigger needs to report a finished run.
type RunResult struct {
	RunID      string
	Validation ValidationResult
	Outcome    Outcome
}

// Validate checks a batch without touching storage.
func (s *Service) Validate(ctx context.Context, records []*record.Record) ValidationResult {
	return s.validator.Validate(ctx, records)
}

// Run executes the pipeline on a batch. A returned error means the run
// failed before or during the insert and nothing was committed. Runs that
// end without inserting return a non-inserted Outcome and a nil error.
func (s *Service) Run(ctx context.Context, records []*record.Record) (RunResult, error) {
	res := RunResult{RunID: uuid.NewString()}
	ctx = logging.WithRun(ctx, res.RunID, s.opts.Entity)
	log := logging.FromContext(ctx)

	if err := s.limiter.Acquire(ctx); err != nil {
		return res, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("entity", s.opts.Entity),
		attribute.Int("records", len(records)),
	)

	log.Info("run started", "records", len(records))

	vctx, vspan := tracer.Start(ctx, "pipeline.validate")
	res.Validation = s.validator.Validate(vctx, records)
	vspan.End()

	stats := Stats{
		Scraped: len(records),
		Valid:   len(res.Validation.Valid),
		Invalid: len(res.Validation.Invalid),
	}
	if len(res.Validation.Valid) == 0 {
		res.Outcome = earlyOutcome(OutcomeNothingToInsert, s.opts.Entity, noValidRecordsMessage(s.opts.Entity), stats)
		s.finish(ctx, res.Outcome)
		return res, nil
	}

	release, err := s.locker.Acquire(ctx, lock.Key(s.opts.Entity))
	if err != nil {
		return res, s.fail(ctx, fmt.Errorf("acquire entity lock: %w", err))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release entity lock", "error", err)
		}
	}()

	store, err := s.open(ctx)
	if err != nil {
		return res, s.fail(ctx, fmt.Errorf("%w: %w", ErrNoDatabase, err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close store", "error", err)
		}
	}()

	loader := NewLoader(store, LoaderConfig{
		Entity:      s.opts.Entity,
		ComponentID: s.opts.ComponentID,
		IDStrategy:  s.opts.IDStrategy,
		DateFields:  s.validator.Catalog().DateFields(),
	})
	out, err := loader.Load(ctx, res.Validation.Valid)
	if err != nil {
		return res, s.fail(ctx, err)
	}

	out.Stats.Scraped = stats.Scraped
	out.Stats.Valid = stats.Valid
	out.Stats.Invalid = stats.Invalid
	res.Outcome = out
	s.finish(ctx, out)
	return res, nil
}

func (s *Service) finish(ctx context.Context, out Outcome) {
	logging.FromContext(ctx).Info("run finished",
		"outcome", string(out.Kind),
		"inserted", out.Inserted,
		"message", out.Message,
	)
}

func (s *Service) fail(ctx context.Context, err error) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "run failed")
	logging.FromContext(ctx).Error("run failed", "error", err)
	return err
}
