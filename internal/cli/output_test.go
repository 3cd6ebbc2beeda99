package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goldenRunID  = "3f1c9a52-7d1e-4b8a-9c55-0d2f6e81a004"
	goldenEntity = "Agencia Nacional de Infraestructura"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func insertedReport() core.RunReport {
	stats := core.Stats{Scraped: 5, Valid: 4, Invalid: 1, Processed: 4, Existing: 10, CrossBatch: 1, Inserted: 3}
	return core.RunReport{
		Message:         core.Summary(goldenEntity, stats, "Successfully inserted 3 regulation components"),
		RecordsScraped:  5,
		RecordsInserted: 3,
		Outcome:         core.OutcomeInserted,
		Success:         true,
		RunID:           goldenRunID,
		Stats:           stats,
		Linked:          3,
	}
}

func TestWriteRunText_Golden(t *testing.T) {
	g := newGolden(t)

	var buf bytes.Buffer
	require.NoError(t, writeRunText(&buf, insertedReport()))
	g.Assert(t, "run_inserted", buf.Bytes())

	linkErr := `relation "regulations_component" does not exist`
	failed := insertedReport()
	failed.Message = core.Summary(goldenEntity, failed.Stats, "Error inserting regulation components: "+linkErr)
	failed.Linked = 0
	failed.LinkError = linkErr
	buf.Reset()
	require.NoError(t, writeRunText(&buf, failed))
	g.Assert(t, "run_link_failed", buf.Bytes())

	dup := core.RunReport{
		Message: fmt.Sprintf("No new records found for entity %s after duplicate validation", goldenEntity),
		Outcome: core.OutcomeAllDuplicates,
		RunID:   goldenRunID,
		Stats:   core.Stats{Scraped: 5, Valid: 4, Invalid: 1, Processed: 4, Existing: 14, CrossBatch: 4},
	}
	buf.Reset()
	require.NoError(t, writeRunText(&buf, dup))
	g.Assert(t, "run_all_duplicates", buf.Bytes())
}

func TestWriteValidationText_Golden(t *testing.T) {
	g := newGolden(t)

	rep := core.ValidationReport{
		Records: 3,
		Valid:   2,
		Invalid: 1,
		Rejected: []core.RowReport{{
			Row: 2,
			Reasons: []string{
				"title: required field is empty",
				`created_at: does not match pattern ^\d{4}-\d{2}-\d{2}$`,
			},
		}},
		Cleaned: []core.RowReport{{
			Row:     0,
			Reasons: []string{"external_link: does not match pattern ^https?://"},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeValidationText(&buf, rep))
	g.Assert(t, "validation", buf.Bytes())

	buf.Reset()
	require.NoError(t, writeValidationText(&buf, core.ValidationReport{Records: 2, Valid: 2}))
	g.Assert(t, "validation_clean", buf.Bytes())
}

func TestOutputFormatter_JSONRun(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Run(insertedReport()))

	var resp struct {
		Status string         `json:"status"`
		Data   core.RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, insertedReport(), resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := fmt.Errorf("%w: ping database: connection refused", core.ErrNoDatabase)
	require.NoError(t, formatter.Error(err, "run-1"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DB004", resp.Error.Code)
	assert.Equal(t, "Unable to connect to database", resp.Error.Message)
	assert.Equal(t, "run-1", resp.Error.RunID)
	assert.Equal(t, err.Error(), resp.Error.Detail)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error(core.ErrTooManyRuns, ""))
	assert.Equal(t,
		"Error: System is busy processing other runs (Code: RUN001). Please wait a moment and try again\n"+
			"  "+core.ErrTooManyRuns.Error()+"\n",
		buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error(errors.New("disk on fire"), "run-9"))
	assert.Contains(t, buf.String(), "(Code: ERR000)")
	assert.Contains(t, buf.String(), "  disk on fire\n  run: run-9\n")
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", &ExitError{Code: ExitNothingInserted}, ExitNothingInserted},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "run", errors.New("x"))), ExitFailure},
		{"cobra error", errors.New(`unknown flag: --nope`), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestOutcomeExit(t *testing.T) {
	assert.NoError(t, outcomeExit(core.Outcome{Kind: core.OutcomeInserted}))

	for _, kind := range []core.OutcomeKind{core.OutcomeNothingToInsert, core.OutcomeAllDuplicates, core.OutcomeDuplicateConflict} {
		err := outcomeExit(core.Outcome{Kind: kind, Message: "m"})
		assert.Equal(t, ExitNothingInserted, GetExitCode(err), kind)

		var nie *core.NoInsertError
		assert.ErrorAs(t, err, &nie)
	}
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "run failed: boom", WrapExitError(ExitFailure, "run failed", errors.New("boom")).Error())
	assert.Equal(t, "boom", WrapExitError(ExitFailure, "", errors.New("boom")).Error())
	assert.Equal(t, "plain", (&ExitError{Message: "plain"}).Error())
}
