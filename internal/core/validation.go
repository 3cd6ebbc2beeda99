package core

// validation.go checks scraped records against the rule catalog.
//
// Every declared field goes through three checks in order:
//  1. Emptiness: Absent or blank text. Fatal for required fields.
//  2. Type: skipped for empty values. An optional field of the wrong type is
//     nulled in place and the row stays valid.
//  3. Pattern: only for text. Same required/optional split as the type check.
//
// All failures are collected for logging even after a row is already
// rejected. Fields without a rule pass through untouched.

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/regingest/internal/logging"
	"github.com/JonMunkholm/regingest/internal/record"
)

// ValidationError describes one failed check on one field.
type ValidationError struct {
	Field    string `json:"field"`
	Value    string `json:"value,omitempty"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// RowIssues ties validation errors to a position in the input batch.
type RowIssues struct {
	Row    int               `json:"row"`
	Record *record.Record    `json:"record"`
	Issues []ValidationError `json:"issues"`
}

// Reasons returns the issues as display strings.
func (r RowIssues) Reasons() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Error()
	}
	return out
}

// ValidationResult partitions a batch. Valid records are cleaned copies in
// input order; Invalid carries the untouched input records. Cleaned lists
// valid rows that lost optional fields.
type ValidationResult struct {
	Valid   []*record.Record
	Invalid []RowIssues
	Cleaned []RowIssues
}

// Validator applies a catalog to records.
type Validator struct {
	catalog *Catalog
}

// NewValidator creates a validator bound to a catalog.
func NewValidator(c *Catalog) *Validator {
	return &Validator{catalog: c}
}

// Catalog returns the bound catalog.
func (v *Validator) Catalog() *Catalog { return v.catalog }

// Validate partitions records into valid and invalid sets and logs every
// rejected row. Input records are never modified.
func (v *Validator) Validate(ctx context.Context, records []*record.Record) ValidationResult {
	log := logging.FromContext(ctx)

	var res ValidationResult
	for i, rec := range records {
		cleaned, issues, ok := v.ValidateRecord(rec)
		if !ok {
			res.Invalid = append(res.Invalid, RowIssues{Row: i, Record: rec, Issues: issues})
			log.Warn("row rejected",
				"row", i,
				"reasons", joinIssues(issues),
			)
			continue
		}
		res.Valid = append(res.Valid, cleaned)
		if len(issues) > 0 {
			res.Cleaned = append(res.Cleaned, RowIssues{Row: i, Record: cleaned, Issues: issues})
			log.Debug("optional fields cleared",
				"row", i,
				"reasons", joinIssues(issues),
			)
		}
	}

	log.Info("validation complete",
		"valid", len(res.Valid),
		"invalid", len(res.Invalid),
		"cleaned", len(res.Cleaned),
	)
	return res
}

// ValidateRecord checks a single record. It returns a cleaned copy, every
// issue found, and whether the record is valid.
func (v *Validator) ValidateRecord(rec *record.Record) (*record.Record, []ValidationError, bool) {
	cleaned := rec.Clone()
	valid := true
	var issues []ValidationError

	fail := func(rule Rule, value record.Value, msg string) {
		issues = append(issues, ValidationError{
			Field:    rule.Field,
			Value:    value.String(),
			Message:  msg,
			Required: rule.Required,
		})
		if rule.Required {
			valid = false
		}
	}

	for _, rule := range v.catalog.rules {
		value := cleaned.Get(rule.Field)

		// Null markers count as empty here too, so a required field Sanitize
		// would null out never reaches the insert.
		if IsNullMarker(value) {
			if rule.Required {
				fail(rule, value, "required field is empty")
			}
			continue
		}

		if !typeMatches(rule.Type, value) {
			fail(rule, value, fmt.Sprintf("expected %s, got %s", rule.Type, value.Kind()))
			if !rule.Required {
				value = record.Absent()
				cleaned.Set(rule.Field, value)
				continue
			}
		}

		text, isText := value.Text()
		if !isText || rule.Matches(text) {
			continue
		}
		fail(rule, value, fmt.Sprintf("does not match pattern %s", rule.Pattern))
		if !rule.Required {
			cleaned.Set(rule.Field, record.Absent())
		}
	}

	return cleaned, issues, valid
}

func typeMatches(t FieldType, v record.Value) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString, TypeDate:
		return v.Kind() == record.KindString
	case TypeInt:
		return v.Kind() == record.KindInt
	case TypeFloat:
		return v.Kind() == record.KindInt || v.Kind() == record.KindFloat
	case TypeBoolean:
		return v.Kind() == record.KindBool
	default:
		return false
	}
}

func joinIssues(issues []ValidationError) string {
	parts := make([]string, len(issues))
	for i, is := range issues {
		parts[i] = is.Error()
	}
	return strings.Join(parts, "; ")
}
