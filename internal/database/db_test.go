package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return Wrap(sqlDB, Postgres), mock
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in      string
		want    Driver
		wantErr bool
	}{
		{in: "", want: Postgres},
		{in: "postgres", want: Postgres},
		{in: " PGX ", want: Postgres},
		{in: "sqlite3", want: SQLite},
		{in: "mysql", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDriver(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDriverBind(t *testing.T) {
	day := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, day, Postgres.bind(day))
	assert.Equal(t, "2024-02-29", SQLite.bind(day))
	assert.Equal(t, int64(3), SQLite.bind(int64(3)))
	assert.Nil(t, SQLite.bind(nil))
}

func TestExistingKeys_Postgres(t *testing.T) {
	db, mock := newMock(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT title, created_at, COALESCE(external_link, '') FROM "regulations" WHERE entity = $1`).
		WithArgs("ANI").
		WillReturnRows(sqlmock.NewRows([]string{"title", "created_at", "coalesce"}).
			AddRow("Decree 1", day, "").
			AddRow("Decree 2", day, "https://x"))

	keys, err := db.ExistingKeys(context.Background(), "ANI")
	require.NoError(t, err)
	assert.Equal(t, []KeyRow{
		{Title: "Decree 1", CreatedAt: day, ExternalLink: ""},
		{Title: "Decree 2", CreatedAt: day, ExternalLink: "https://x"},
	}, keys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRegulations_ReturningChunks(t *testing.T) {
	db, mock := newMock(t)
	db.SetBatchSize(2)

	columns := []string{"title", "entity"}
	rows := [][]any{{"A", "ANI"}, {"B", "ANI"}, {"C", "ANI"}}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "regulations" ("title", "entity") VALUES ($1, $2), ($3, $4) RETURNING id`).
		WithArgs("A", "ANI", "B", "ANI").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)).AddRow(int64(11)))
	mock.ExpectQuery(`INSERT INTO "regulations" ("title", "entity") VALUES ($1, $2) RETURNING id`).
		WithArgs("C", "ANI").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectCommit()

	res, err := db.InsertRegulations(context.Background(), columns, rows, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, []int64{10, 11, 12}, res.IDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRegulations_WithoutIDs(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "regulations" ("title") VALUES ($1), ($2)`).
		WithArgs("A", "B").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res, err := db.InsertRegulations(context.Background(), []string{"title"}, [][]any{{"A"}, {"B"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Empty(t, res.IDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRegulations_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	db.SetBatchSize(1)
	boom := errors.New("ERROR: duplicate key value violates unique constraint")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "regulations" ("title") VALUES ($1)`).
		WithArgs("A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "regulations" ("title") VALUES ($1)`).
		WithArgs("B").
		WillReturnError(boom)
	mock.ExpectRollback()

	_, err := db.InsertRegulations(context.Background(), []string{"title"}, [][]any{{"A"}, {"B"}}, false)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "insert rows 1-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRegulations_RaggedRow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := db.InsertRegulations(context.Background(), []string{"title", "entity"}, [][]any{{"A"}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 has 1 values, want 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkComponents_Postgres(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "regulations_component" ("regulations_id", "components_id") VALUES ($1, $2), ($3, $4)`).
		WithArgs(int64(1), int64(7), int64(2), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := db.LinkComponents(context.Background(), []int64{1, 2}, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentIDs_Postgres(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT id FROM "regulations" WHERE entity = $1 ORDER BY id DESC LIMIT $2`).
		WithArgs("ANI", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)).AddRow(int64(8)))

	ids, err := db.RecentIDs(context.Background(), "ANI", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkSize(t *testing.T) {
	db := Wrap(nil, Postgres)
	assert.Equal(t, DefaultBatchSize, db.chunkSize(10))
	assert.Equal(t, 65535/100, db.chunkSize(100))

	lite := Wrap(nil, SQLite)
	lite.SetBatchSize(0)
	assert.Equal(t, DefaultBatchSize, lite.chunkSize(2))
	assert.Equal(t, 32766/40, lite.chunkSize(40))
}
