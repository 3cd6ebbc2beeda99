package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/regingest/internal/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess         = 0 // Records were inserted, or validation found nothing to reject
	ExitFailure         = 1 // Fatal run error, or rejected rows in validate
	ExitCommandError    = 2 // Bad flags, configuration or batch input
	ExitNothingInserted = 3 // Run finished without writing rows
)

// ExitError carries the process exit code for a failed command. Commands
// print their own output before returning one, so main only exits.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError come from cobra itself (unknown flag, wrong arg count) and map
// to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope written to stdout.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse. Code is a support code from
// core.MapError.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Success writes data inside the JSON envelope, or with %v in text mode.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Run writes a run report.
func (f *OutputFormatter) Run(rep core.RunReport) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: rep})
	}
	return writeRunText(f.Writer, rep)
}

// Validation writes a validation report.
func (f *OutputFormatter) Validation(rep core.ValidationReport) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: rep})
	}
	return writeValidationText(f.Writer, rep)
}

// Error writes err with its mapped support code. The technical error is
// included as detail so operators do not need the logs for simple cases.
func (f *OutputFormatter) Error(err error, runID string) error {
	msg := core.MapError(err)
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    msg.Code,
				Message: msg.Message,
				Action:  msg.Action,
				RunID:   runID,
				Detail:  err.Error(),
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error: %s\n", core.FormatUserError(err))
	fmt.Fprintf(f.Writer, "  %s\n", err)
	if runID != "" {
		fmt.Fprintf(f.Writer, "  run: %s\n", runID)
	}
	return nil
}

func (f *OutputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunText(w io.Writer, rep core.RunReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", rep.RunID, rep.Outcome)
	fmt.Fprintf(&b, "%s\n", rep.Message)
	fmt.Fprintf(&b, "  scraped:    %d\n", rep.Stats.Scraped)
	fmt.Fprintf(&b, "  valid:      %d\n", rep.Stats.Valid)
	fmt.Fprintf(&b, "  invalid:    %d\n", rep.Stats.Invalid)
	fmt.Fprintf(&b, "  existing:   %d\n", rep.Stats.Existing)
	fmt.Fprintf(&b, "  duplicates: %d\n", rep.Stats.Duplicates())
	fmt.Fprintf(&b, "  inserted:   %d\n", rep.RecordsInserted)
	if rep.Success {
		fmt.Fprintf(&b, "  linked:     %d\n", rep.Linked)
	}
	if rep.LinkError != "" {
		fmt.Fprintf(&b, "  link error: %s\n", rep.LinkError)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeValidationText(w io.Writer, rep core.ValidationReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d records: %d valid, %d invalid\n", rep.Records, rep.Valid, rep.Invalid)
	writeRows(&b, "rejected", rep.Rejected)
	writeRows(&b, "cleaned", rep.Cleaned)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRows(b *strings.Builder, label string, rows []core.RowReport) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, r := range rows {
		fmt.Fprintf(b, "  row %d: %s\n", r.Row, strings.Join(r.Reasons, "; "))
	}
}
