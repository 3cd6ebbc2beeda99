package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoDatabase is returned when the store cannot be opened. Nothing has been
// written when it is returned.
var ErrNoDatabase = errors.New("database connection failed")

// ErrInvalidBatch is returned when a batch cannot be decoded.
var ErrInvalidBatch = errors.New("invalid batch")

// NoInsertError marks a run that finished cleanly but wrote nothing.
type NoInsertError struct {
	Kind    OutcomeKind
	Message string
}

func (e *NoInsertError) Error() string {
	return fmt.Sprintf("no records inserted (%s): %s", e.Kind, e.Message)
}

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err comes from a unique constraint.
// Drivers that do not expose SQLSTATE are matched on their message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
