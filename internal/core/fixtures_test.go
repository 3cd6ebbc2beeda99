package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/JonMunkholm/regingest/internal/database"
	"github.com/JonMunkholm/regingest/internal/record"
)

const testEntity = "Agencia Nacional de Infraestructura"

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func reg(title, createdAt string, link any) *record.Record {
	return record.New(
		record.F("title", title),
		record.F("created_at", createdAt),
		record.F("entity", testEntity),
		record.F("external_link", link),
	)
}

// memStore is an in-memory Store that records what the loader asked for.
type memStore struct {
	existing []database.KeyRow

	existingErr error
	insertErr   error
	recentErr   error
	linkErr     error

	columns   []string
	rows      [][]any
	returnIDs bool
	nextID    int64
	linked    []int64
	closed    bool
}

func (m *memStore) ExistingKeys(ctx context.Context, entity string) ([]database.KeyRow, error) {
	return m.existing, m.existingErr
}

func (m *memStore) InsertRegulations(ctx context.Context, columns []string, rows [][]any, returnIDs bool) (database.InsertResult, error) {
	if m.insertErr != nil {
		return database.InsertResult{}, m.insertErr
	}
	m.columns, m.rows, m.returnIDs = columns, rows, returnIDs
	res := database.InsertResult{Count: len(rows)}
	for range rows {
		m.nextID++
		if returnIDs {
			res.IDs = append(res.IDs, m.nextID)
		}
	}
	return res, nil
}

func (m *memStore) RecentIDs(ctx context.Context, entity string, limit int) ([]int64, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var ids []int64
	for id := m.nextID; id > 0 && len(ids) < limit; id-- {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) LinkComponents(ctx context.Context, ids []int64, componentID int64) (int, error) {
	if m.linkErr != nil {
		return 0, m.linkErr
	}
	m.linked = append(m.linked, ids...)
	return len(ids), nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

var errBoom = errors.New("boom")
