package core

// loader.go writes validated records for one entity.
//
// Order of operations:
//  1. load the keys already stored for the entity
//  2. keep only records of the entity
//  3. drop cross-batch and internal duplicates
//  4. sanitize and insert everything in one transaction
//  5. link the new ids to the component in a second transaction
//
// A unique violation during step 4 means another run got there first. It is
// reported as an outcome, not an error. Link failures never undo step 4.

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/regingest/internal/database"
	"github.com/JonMunkholm/regingest/internal/logging"
	"github.com/JonMunkholm/regingest/internal/record"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Entity      string
	ComponentID int64
	IDStrategy  IDStrategy
	DateFields  []string
}

// Loader inserts new records and links them to a component.
type Loader struct {
	store      Store
	cfg        LoaderConfig
	dateFields map[string]bool
}

// NewLoader creates a loader over an open store.
func NewLoader(store Store, cfg LoaderConfig) *Loader {
	if cfg.IDStrategy == "" {
		cfg.IDStrategy = IDsReturning
	}
	dates := map[string]bool{FieldCreatedAt: true}
	for _, f := range cfg.DateFields {
		dates[f] = true
	}
	return &Loader{store: store, cfg: cfg, dateFields: dates}
}

// Load runs dedup, insert and link for the valid records of a batch. The
// returned error is non-nil only for fatal storage failures.
func (l *Loader) Load(ctx context.Context, valid []*record.Record) (Outcome, error) {
	log := logging.FromContext(ctx)
	entity := l.cfg.Entity

	existing, stored, err := l.existingKeys(ctx)
	if err != nil {
		return Outcome{}, err
	}
	log.Info("existing records loaded", "rows", stored, "keys", len(existing))

	candidates := filterEntity(valid, entity)
	stats := Stats{Processed: len(candidates), Existing: stored}
	if len(candidates) == 0 {
		return earlyOutcome(OutcomeNothingToInsert, entity, noEntityRecordsMessage(entity), stats), nil
	}

	dedup := Dedup(candidates, existing)
	stats.CrossBatch = dedup.CrossBatch
	stats.Internal = dedup.Internal
	if dedup.CrossBatch > 0 {
		samples := make([]string, len(dedup.Samples))
		for i, k := range dedup.Samples {
			samples[i] = k.String()
		}
		log.Info("duplicates of stored records skipped",
			"count", dedup.CrossBatch,
			"examples", samples,
		)
	}
	if dedup.Internal > 0 {
		log.Info("duplicates within batch skipped", "count", dedup.Internal)
	}
	if len(dedup.New) == 0 {
		return earlyOutcome(OutcomeAllDuplicates, entity, allDuplicatesMessage(entity), stats), nil
	}

	columns, rows := l.rows(dedup.New)
	res, err := l.insert(ctx, columns, rows)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("unique violation during insert, batch skipped", "error", err)
			return earlyOutcome(OutcomeDuplicateConflict, entity, duplicateConflictMessage(entity), stats), nil
		}
		return Outcome{}, fmt.Errorf("insert regulations: %w", err)
	}
	stats.Inserted = res.Count
	log.Info("regulations inserted", "count", res.Count)

	if res.Count == 0 {
		return earlyOutcome(OutcomeNothingToInsert, entity, "No records were actually inserted", stats), nil
	}

	out := Outcome{
		Kind:     OutcomeInserted,
		Entity:   entity,
		Inserted: res.Count,
		Stats:    stats,
	}

	ids, idErr := l.newIDs(ctx, res)
	linkMsg := ""
	switch {
	case idErr != nil:
		out.LinkError = idErr.Error()
		linkMsg = linkErrorMessage(idErr)
		log.Error("could not collect new regulation ids", "error", idErr)
	case len(ids) == 0:
		linkMsg = noLinkIDsMessage
	default:
		out.IDs = ids
		out.Linked, linkMsg, out.LinkError = l.link(ctx, ids)
	}

	out.Message = Summary(entity, stats, linkMsg)
	return out, nil
}

// existingKeys returns the key index of the entity's stored regulations and
// the number of stored rows, which can exceed the number of distinct keys.
func (l *Loader) existingKeys(ctx context.Context) (KeyIndex, int, error) {
	ctx, span := tracer.Start(ctx, "load.existing_keys")
	defer span.End()

	rows, err := l.store.ExistingKeys(ctx, l.cfg.Entity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "existing keys")
		return nil, 0, fmt.Errorf("load existing keys: %w", err)
	}
	idx := make(KeyIndex, len(rows))
	for _, r := range rows {
		created, err := record.FromAny(r.CreatedAt)
		if err != nil {
			created = record.String(fmt.Sprint(r.CreatedAt))
		}
		idx[NewKey(record.String(r.Title), created, record.String(r.ExternalLink))] = struct{}{}
	}
	span.SetAttributes(attribute.Int("existing", len(rows)), attribute.Int("existing_keys", len(idx)))
	return idx, len(rows), nil
}

func (l *Loader) insert(ctx context.Context, columns []string, rows [][]any) (database.InsertResult, error) {
	ctx, span := tracer.Start(ctx, "load.insert")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Int("columns", len(columns)))

	res, err := l.store.InsertRegulations(ctx, columns, rows, l.cfg.IDStrategy == IDsReturning)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert")
		return database.InsertResult{}, err
	}
	return res, nil
}

func (l *Loader) newIDs(ctx context.Context, res database.InsertResult) ([]int64, error) {
	if l.cfg.IDStrategy == IDsReturning {
		return res.IDs, nil
	}
	ids, err := l.store.RecentIDs(ctx, l.cfg.Entity, res.Count)
	if err != nil {
		return nil, fmt.Errorf("fetch new ids: %w", err)
	}
	return ids, nil
}

func (l *Loader) link(ctx context.Context, ids []int64) (int, string, string) {
	ctx, span := tracer.Start(ctx, "load.link")
	defer span.End()
	log := logging.FromContext(ctx)

	n, err := l.store.LinkComponents(ctx, ids, l.cfg.ComponentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "link")
		log.Error("linking regulations to component failed",
			"component_id", l.cfg.ComponentID,
			"error", err,
		)
		return 0, linkErrorMessage(err), err.Error()
	}
	log.Info("regulations linked", "component_id", l.cfg.ComponentID, "count", n)
	return n, linkSuccessMessage(n), ""
}

// rows sanitizes records and lays them out as one column list shared by
// every row. Columns appear in first-seen order; missing fields are NULL.
func (l *Loader) rows(records []*record.Record) ([]string, [][]any) {
	var columns []string
	pos := make(map[string]int)
	clean := make([]*record.Record, len(records))
	for i, rec := range records {
		clean[i] = Sanitize(rec, l.dateFields)
		for _, name := range clean[i].Names() {
			if _, ok := pos[name]; !ok {
				pos[name] = len(columns)
				columns = append(columns, name)
			}
		}
	}

	rows := make([][]any, len(clean))
	for i, rec := range clean {
		row := make([]any, len(columns))
		for _, f := range rec.Fields() {
			row[pos[f.Name]] = f.Value.Any()
		}
		rows[i] = row
	}
	return columns, rows
}

func filterEntity(records []*record.Record, entity string) []*record.Record {
	var out []*record.Record
	for _, rec := range records {
		if strings.TrimSpace(rec.Get(FieldEntity).String()) == entity {
			out = append(out, rec)
		}
	}
	return out
}
