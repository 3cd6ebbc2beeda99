// Package database stores regulations through database/sql.
//
// Two drivers are supported: postgres through the pgx stdlib adapter, and
// an embedded SQLite (modernc.org/sqlite) used for local runs and tests.
// A DB holds a single connection for the lifetime of a run.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// Driver selects the SQL dialect and the database/sql driver.
type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
)

// ParseDriver accepts the DB_DRIVER values.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown database driver %q", s)
	}
}

func (d Driver) driverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Driver) placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// maxParams is the bind parameter limit per statement.
func (d Driver) maxParams() int {
	if d == SQLite {
		return 32766
	}
	return 65535
}

// bind adapts Go values to what the driver stores well. SQLite has no date
// type, so calendar dates are written as YYYY-MM-DD text.
func (d Driver) bind(v any) any {
	if d != SQLite {
		return v
	}
	if t, ok := v.(time.Time); ok {
		h, m, s := t.Clock()
		if h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339Nano)
	}
	return v
}

// DefaultBatchSize is the number of rows per INSERT statement.
const DefaultBatchSize = 1000

// DB is a single-connection store.
type DB struct {
	db        *sql.DB
	driver    Driver
	batchSize int
}

// Open connects and pings. The caller must Close the returned DB.
func Open(ctx context.Context, driver Driver, url string) (*DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	sqlDB, err := sql.Open(driver.driverName(), url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return Wrap(sqlDB, driver), nil
}

// OpenSQLite opens an SQLite database and applies the bootstrap schema.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := Open(ctx, SQLite, path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Wrap uses an existing *sql.DB.
func Wrap(sqlDB *sql.DB, driver Driver) *DB {
	return &DB{db: sqlDB, driver: driver, batchSize: DefaultBatchSize}
}

// SetBatchSize sets the rows per INSERT statement. Values below 1 are ignored.
func (d *DB) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// Driver returns the dialect in use.
func (d *DB) Driver() Driver { return d.driver }

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// ApplySchema creates the SQLite tables if they do not exist.
func (d *DB) ApplySchema(ctx context.Context) error {
	if d.driver != SQLite {
		return fmt.Errorf("bootstrap schema is only available for sqlite")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := d.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := d.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (d *DB) queries(db DBTX) *Queries {
	return New(db, d.driver)
}

// ExistingKeys returns the identifying columns of every stored regulation
// for entity.
func (d *DB) ExistingKeys(ctx context.Context, entity string) ([]KeyRow, error) {
	return d.queries(d.db).ExistingKeys(ctx, entity)
}

// RecentIDs returns the newest ids for entity.
func (d *DB) RecentIDs(ctx context.Context, entity string, limit int) ([]int64, error) {
	return d.queries(d.db).RecentIDs(ctx, entity, limit)
}

// InsertRegulations writes rows in chunks inside one transaction. Either
// every row is committed or none is.
func (d *DB) InsertRegulations(ctx context.Context, columns []string, rows [][]any, returnIDs bool) (InsertResult, error) {
	var res InsertResult
	if len(rows) == 0 {
		return res, nil
	}
	if len(columns) == 0 {
		return res, fmt.Errorf("insert regulations: no columns")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := d.queries(tx)
	chunk := d.chunkSize(len(columns))
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		part, err := q.InsertRegulations(ctx, columns, rows[start:end], returnIDs)
		if err != nil {
			return InsertResult{}, fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
		res.Count += part.Count
		res.IDs = append(res.IDs, part.IDs...)
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// LinkComponents links regulation ids to a component in one transaction.
func (d *DB) LinkComponents(ctx context.Context, ids []int64, componentID int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := d.queries(tx)
	chunk := d.chunkSize(2)
	total := 0
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		n, err := q.InsertComponentLinks(ctx, ids[start:end], componentID)
		if err != nil {
			return 0, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

func (d *DB) chunkSize(columns int) int {
	n := d.batchSize
	if limit := d.driver.maxParams() / columns; n > limit {
		n = limit
	}
	return max(n, 1)
}
