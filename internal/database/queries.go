package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const (
	regulationsTable = "regulations"
	componentsTable  = "regulations_component"
)

// KeyRow is the identifying part of a stored regulation. CreatedAt is
// whatever the driver scanned: a time.Time or text.
type KeyRow struct {
	Title        string
	CreatedAt    any
	ExternalLink string
}

// InsertResult reports what an insert wrote. IDs is only filled when ids
// were requested.
type InsertResult struct {
	Count int
	IDs   []int64
}

// Queries runs single statements against a connection or transaction.
type Queries struct {
	db     DBTX
	driver Driver
}

// New creates Queries for the given dialect.
func New(db DBTX, driver Driver) *Queries {
	return &Queries{db: db, driver: driver}
}

// ExistingKeys selects the identifying columns of entity's regulations.
func (q *Queries) ExistingKeys(ctx context.Context, entity string) ([]KeyRow, error) {
	query := fmt.Sprintf(
		`SELECT title, created_at, COALESCE(external_link, '') FROM %s WHERE entity = %s`,
		quoteIdent(regulationsTable), q.driver.placeholder(1),
	)
	rows, err := q.db.QueryContext(ctx, query, entity)
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	var out []KeyRow
	for rows.Next() {
		var (
			title     sql.NullString
			createdAt any
			link      string
		)
		if err := rows.Scan(&title, &createdAt, &link); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		out = append(out, KeyRow{Title: title.String, CreatedAt: createdAt, ExternalLink: link})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing keys: %w", err)
	}
	return out, nil
}

// InsertRegulations inserts rows with a single multi-row statement.
func (q *Queries) InsertRegulations(ctx context.Context, columns []string, rows [][]any, returnIDs bool) (InsertResult, error) {
	query, args, err := q.buildInsert(regulationsTable, columns, rows)
	if err != nil {
		return InsertResult{}, err
	}

	if !returnIDs {
		res, err := q.db.ExecContext(ctx, query, args...)
		if err != nil {
			return InsertResult{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return InsertResult{}, fmt.Errorf("rows affected: %w", err)
		}
		return InsertResult{Count: int(n)}, nil
	}

	res := InsertResult{IDs: make([]int64, 0, len(rows))}
	rs, err := q.db.QueryContext(ctx, query+" RETURNING id", args...)
	if err != nil {
		return InsertResult{}, err
	}
	defer rs.Close()
	for rs.Next() {
		var id int64
		if err := rs.Scan(&id); err != nil {
			return InsertResult{}, fmt.Errorf("scan id: %w", err)
		}
		res.IDs = append(res.IDs, id)
	}
	if err := rs.Err(); err != nil {
		return InsertResult{}, err
	}
	res.Count = len(res.IDs)
	return res, nil
}

// RecentIDs returns up to limit ids for entity, newest first.
func (q *Queries) RecentIDs(ctx context.Context, entity string, limit int) ([]int64, error) {
	query := fmt.Sprintf(
		`SELECT id FROM %s WHERE entity = %s ORDER BY id DESC LIMIT %s`,
		quoteIdent(regulationsTable), q.driver.placeholder(1), q.driver.placeholder(2),
	)
	rows, err := q.db.QueryContext(ctx, query, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertComponentLinks writes one regulations_component row per id.
func (q *Queries) InsertComponentLinks(ctx context.Context, ids []int64, componentID int64) (int, error) {
	rows := make([][]any, len(ids))
	for i, id := range ids {
		rows[i] = []any{id, componentID}
	}
	query, args, err := q.buildInsert(componentsTable, []string{"regulations_id", "components_id"}, rows)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", componentsTable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// buildInsert renders INSERT INTO t (cols) VALUES (...), (...) with driver
// placeholders. Every row must have one value per column.
func (q *Queries) buildInsert(table string, columns []string, rows [][]any) (string, []any, error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("insert %s: no rows", table)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", quoteIdent(table), strings.Join(quoted, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	n := 1
	for r, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert %s: row %d has %d values, want %d", table, r, len(row), len(columns))
		}
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, v := range row {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(q.driver.placeholder(n))
			n++
			args = append(args, q.driver.bind(v))
		}
		b.WriteByte(')')
	}
	return b.String(), args, nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
