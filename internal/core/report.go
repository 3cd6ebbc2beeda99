package core

import (
	"fmt"
)

// OutcomeKind classifies a finished run.
type OutcomeKind string

const (
	OutcomeInserted          OutcomeKind = "inserted"
	OutcomeNothingToInsert   OutcomeKind = "nothing_to_insert"
	OutcomeAllDuplicates     OutcomeKind = "all_duplicates"
	OutcomeDuplicateConflict OutcomeKind = "duplicate_conflict"
)

// Stats are the counters reported at the end of a run.
type Stats struct {
	Scraped    int `json:"records_scraped"`
	Valid      int `json:"records_valid"`
	Invalid    int `json:"records_invalid"`
	Processed  int `json:"processed"`
	Existing   int `json:"existing"`
	CrossBatch int `json:"duplicates_existing"`
	Internal   int `json:"duplicates_internal"`
	Inserted   int `json:"inserted"`
}

// Duplicates returns the total number of skipped duplicates.
func (s Stats) Duplicates() int { return s.CrossBatch + s.Internal }

// Outcome is the result of a run that did not fail fatally.
type Outcome struct {
	Kind      OutcomeKind `json:"outcome"`
	Entity    string      `json:"entity"`
	Inserted  int         `json:"records_inserted"`
	Message   string      `json:"message"`
	Stats     Stats       `json:"stats"`
	IDs       []int64     `json:"-"`
	Linked    int         `json:"components_linked"`
	LinkError string      `json:"link_error,omitempty"`
}

// Success reports whether new rows were written.
func (o Outcome) Success() bool { return o.Kind == OutcomeInserted }

// Err returns nil for inserted outcomes and a *NoInsertError otherwise, for
// callers that treat "nothing written" as a failed attempt.
func (o Outcome) Err() error {
	if o.Success() {
		return nil
	}
	return &NoInsertError{Kind: o.Kind, Message: o.Message}
}

// Messages for runs that end without writing rows.
func noValidRecordsMessage(entity string) string {
	return fmt.Sprintf("No valid records to insert for entity %s", entity)
}

func noEntityRecordsMessage(entity string) string {
	return fmt.Sprintf("No records found for entity %s", entity)
}

func allDuplicatesMessage(entity string) string {
	return fmt.Sprintf("No new records found for entity %s after duplicate validation", entity)
}

func duplicateConflictMessage(entity string) string {
	return fmt.Sprintf("Some records for entity %s were duplicates and skipped", entity)
}

func linkSuccessMessage(n int) string {
	return fmt.Sprintf("Successfully inserted %d regulation components", n)
}

func linkErrorMessage(err error) string {
	return fmt.Sprintf("Error inserting regulation components: %v", err)
}

const noLinkIDsMessage = "No new regulation IDs provided"

// Summary renders the end-of-run line.
func Summary(entity string, s Stats, linkMessage string) string {
	msg := fmt.Sprintf("Entity %s: Processed: %d | Existing: %d | Duplicates skipped: %d | New inserted: %d.",
		entity, s.Processed, s.Existing, s.Duplicates(), s.Inserted)
	if linkMessage != "" {
		msg += " " + linkMessage
	}
	return msg
}

func earlyOutcome(kind OutcomeKind, entity, message string, s Stats) Outcome {
	return Outcome{Kind: kind, Entity: entity, Message: message, Stats: s}
}

// RunReport is what triggers hand back to the caller of a run. The first
// six fields are the response body the scraper scheduler already parses.
type RunReport struct {
	Message         string      `json:"message"`
	RecordsScraped  int         `json:"records_scraped"`
	RecordsInserted int         `json:"records_inserted"`
	Outcome         OutcomeKind `json:"outcome"`
	Success         bool        `json:"success"`
	RunID           string      `json:"run_id"`
	Stats           Stats       `json:"stats"`
	Linked          int         `json:"components_linked"`
	LinkError       string      `json:"link_error,omitempty"`
}

// Report flattens a run result for JSON output.
func (r RunResult) Report() RunReport {
	return RunReport{
		Message:         r.Outcome.Message,
		RecordsScraped:  r.Outcome.Stats.Scraped,
		RecordsInserted: r.Outcome.Inserted,
		Outcome:         r.Outcome.Kind,
		Success:         r.Outcome.Success(),
		RunID:           r.RunID,
		Stats:           r.Outcome.Stats,
		Linked:          r.Outcome.Linked,
		LinkError:       r.Outcome.LinkError,
	}
}

// RowReport lists the reasons attached to one input row.
type RowReport struct {
	Row     int      `json:"row"`
	Reasons []string `json:"reasons"`
}

// ValidationReport summarizes a validation pass.
type ValidationReport struct {
	Records  int         `json:"records"`
	Valid    int         `json:"valid"`
	Invalid  int         `json:"invalid"`
	Rejected []RowReport `json:"rejected,omitempty"`
	Cleaned  []RowReport `json:"cleaned,omitempty"`
}

// Report flattens a validation result for JSON output.
func (v ValidationResult) Report() ValidationReport {
	rep := ValidationReport{
		Records: len(v.Valid) + len(v.Invalid),
		Valid:   len(v.Valid),
		Invalid: len(v.Invalid),
	}
	for _, ri := range v.Invalid {
		rep.Rejected = append(rep.Rejected, RowReport{Row: ri.Row, Reasons: ri.Reasons()})
	}
	for _, ri := range v.Cleaned {
		rep.Cleaned = append(rep.Cleaned, RowReport{Row: ri.Row, Reasons: ri.Reasons()})
	}
	return rep
}
