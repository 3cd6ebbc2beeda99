package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/regingest/internal/database"
	"github.com/JonMunkholm/regingest/internal/record"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(store Store, strategy IDStrategy) *Loader {
	return NewLoader(store, LoaderConfig{
		Entity:      testEntity,
		ComponentID: DefaultComponentID,
		IDStrategy:  strategy,
	})
}

func TestLoad_InsertsAndLinks(t *testing.T) {
	store := &memStore{
		existing: []database.KeyRow{
			{Title: "Stored", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	batch := []*record.Record{
		reg("A", "2024-01-02", "https://a"),
		reg("Stored", "2024-01-01", nil),
		reg("B", "2024-01-03", nil),
		reg("A", "2024-01-02", "https://a"),
	}

	out, err := newTestLoader(store, IDsReturning).Load(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, OutcomeInserted, out.Kind)
	assert.True(t, out.Success())
	assert.NoError(t, out.Err())
	assert.Equal(t, 2, out.Inserted)
	assert.Equal(t, []int64{1, 2}, out.IDs)
	assert.Equal(t, 2, out.Linked)
	assert.Empty(t, out.LinkError)
	assert.Equal(t, []int64{1, 2}, store.linked)
	assert.True(t, store.returnIDs)

	assert.Equal(t, Stats{Processed: 4, Existing: 1, CrossBatch: 1, Internal: 1, Inserted: 2}, out.Stats)
	assert.Equal(t,
		"Entity Agencia Nacional de Infraestructura: Processed: 4 | Existing: 1 | Duplicates skipped: 2 | New inserted: 2. Successfully inserted 2 regulation components",
		out.Message)
}

func TestLoad_ExistingCountsStoredRows(t *testing.T) {
	stored := database.KeyRow{Title: "Stored", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := &memStore{existing: []database.KeyRow{stored, stored, {Title: "Other", CreatedAt: "2024-02-01"}}}

	out, err := newTestLoader(store, IDsReturning).Load(context.Background(), []*record.Record{reg("New", "2024-03-01", nil)})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Stats.Existing)
	assert.Contains(t, out.Message, "Existing: 3 |")
}

func TestLoad_SanitizesRows(t *testing.T) {
	store := &memStore{}
	batch := []*record.Record{
		record.New(
			record.F("title", "A"),
			record.F("created_at", "01/15/2024"),
			record.F("entity", testEntity),
			record.F("summary", "NaN"),
		),
		record.New(
			record.F("title", "B"),
			record.F("created_at", "2024-01-16"),
			record.F("entity", testEntity),
			record.F("rtype_id", 3),
		),
	}

	_, err := newTestLoader(store, IDsReturning).Load(context.Background(), batch)
	require.NoError(t, err)

	require.Equal(t, []string{"title", "created_at", "entity", "summary", "rtype_id"}, store.columns)
	require.Len(t, store.rows, 2)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), store.rows[0][1])
	assert.Nil(t, store.rows[0][3], "null marker must be written as NULL")
	assert.Nil(t, store.rows[0][4], "missing column must be NULL")
	assert.Equal(t, int64(3), store.rows[1][4])
}

func TestLoad_EarlyOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		store   *memStore
		batch   []*record.Record
		want    OutcomeKind
		wantMsg string
	}{
		{
			name:  "other entity only",
			store: &memStore{},
			batch: []*record.Record{
				record.New(record.F("title", "A"), record.F("created_at", "2024-01-01"), record.F("entity", "Someone else")),
			},
			want:    OutcomeNothingToInsert,
			wantMsg: "No records found for entity " + testEntity,
		},
		{
			name: "everything stored",
			store: &memStore{existing: []database.KeyRow{
				{Title: "A", CreatedAt: "2024-01-01"},
			}},
			batch:   []*record.Record{reg(" A ", "2024-01-01", "")},
			want:    OutcomeAllDuplicates,
			wantMsg: "No new records found for entity " + testEntity + " after duplicate validation",
		},
		{
			name:    "concurrent insert",
			store:   &memStore{insertErr: fmt.Errorf("insert rows 0-0: %w", &pgconn.PgError{Code: "23505"})},
			batch:   []*record.Record{reg("A", "2024-01-01", nil)},
			want:    OutcomeDuplicateConflict,
			wantMsg: "Some records for entity " + testEntity + " were duplicates and skipped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTestLoader(tt.store, IDsReturning).Load(context.Background(), tt.batch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, tt.wantMsg, out.Message)
			assert.Zero(t, out.Inserted)
			assert.Empty(t, tt.store.linked)

			var nie *NoInsertError
			assert.ErrorAs(t, out.Err(), &nie)
		})
	}
}

func TestLoad_FatalErrors(t *testing.T) {
	t.Run("existing keys", func(t *testing.T) {
		store := &memStore{existingErr: errBoom}
		_, err := newTestLoader(store, IDsReturning).Load(context.Background(), []*record.Record{reg("A", "2024-01-01", nil)})
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("insert", func(t *testing.T) {
		store := &memStore{insertErr: errBoom}
		_, err := newTestLoader(store, IDsReturning).Load(context.Background(), []*record.Record{reg("A", "2024-01-01", nil)})
		assert.ErrorIs(t, err, errBoom)
		assert.Contains(t, err.Error(), "insert regulations")
	})
}

func TestLoad_LinkFailureIsNotFatal(t *testing.T) {
	store := &memStore{linkErr: errBoom}
	out, err := newTestLoader(store, IDsReturning).Load(context.Background(), []*record.Record{reg("A", "2024-01-01", nil)})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInserted, out.Kind)
	assert.Equal(t, 1, out.Inserted)
	assert.Zero(t, out.Linked)
	assert.Equal(t, "boom", out.LinkError)
	assert.Contains(t, out.Message, "Error inserting regulation components: boom")
}

func TestLoad_RecentIDStrategy(t *testing.T) {
	store := &memStore{nextID: 40}
	out, err := newTestLoader(store, IDsRecent).Load(context.Background(), []*record.Record{
		reg("A", "2024-01-01", nil),
		reg("B", "2024-01-02", nil),
	})
	require.NoError(t, err)

	assert.False(t, store.returnIDs)
	assert.Equal(t, []int64{42, 41}, out.IDs)
	assert.Equal(t, []int64{42, 41}, store.linked)
}

func TestLoad_RecentIDsFailure(t *testing.T) {
	store := &memStore{recentErr: errBoom}
	out, err := newTestLoader(store, IDsRecent).Load(context.Background(), []*record.Record{reg("A", "2024-01-01", nil)})
	require.NoError(t, err)

	assert.Equal(t, OutcomeInserted, out.Kind)
	assert.Empty(t, store.linked)
	assert.Contains(t, out.LinkError, "fetch new ids")
	assert.Contains(t, out.Message, "Error inserting regulation components")
}
