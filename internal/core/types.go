package core

import (
	"context"

	"github.com/JonMunkholm/regingest/internal/database"
)

// Store is the persistence the loader needs. *database.DB implements it.
type Store interface {
	ExistingKeys(ctx context.Context, entity string) ([]database.KeyRow, error)
	InsertRegulations(ctx context.Context, columns []string, rows [][]any, returnIDs bool) (database.InsertResult, error)
	RecentIDs(ctx context.Context, entity string, limit int) ([]int64, error)
	LinkComponents(ctx context.Context, ids []int64, componentID int64) (int, error)
	Close() error
}

// Opener opens a Store for one run.
type Opener func(ctx context.Context) (Store, error)

// IDStrategy selects how generated ids are collected after an insert.
type IDStrategy string

const (
	// IDsReturning reads ids from INSERT ... RETURNING id.
	IDsReturning IDStrategy = "returning"
	// IDsRecent queries the newest ids of the entity after the insert. It is
	// only correct while the entity lock is held.
	IDsRecent IDStrategy = "recent"
)

// DefaultEntity is the entity scraped by the ANI job.
const DefaultEntity = "Agencia Nacional de Infraestructura"

// DefaultComponentID is the component every new regulation is linked to.
const DefaultComponentID int64 = 7
