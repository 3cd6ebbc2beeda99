package core

import (
	"math"
	"testing"
	"time"

	"github.com/JonMunkholm/regingest/internal/record"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		want      string
	}{
		{name: "iso date", input: "2024-01-15", wantValid: true, want: "2024-01-15"},
		{name: "padded iso", input: "  2024-01-15 ", wantValid: true, want: "2024-01-15"},
		{name: "us slash", input: "1/15/2024", wantValid: true, want: "2024-01-15"},
		{name: "month name", input: "Jan 15, 2024", wantValid: true, want: "2024-01-15"},
		{name: "compact", input: "20240115", wantValid: true, want: "2024-01-15"},
		{name: "timestamp drops clock", input: "2024-01-15 13:45:00", wantValid: true, want: "2024-01-15"},
		{name: "rfc3339", input: "2024-01-15T23:00:00-05:00", wantValid: true, want: "2024-01-15"},
		{name: "two digit year", input: "1/15/24", wantValid: true, want: "2024-01-15"},
		{name: "empty", input: "", wantValid: false},
		{name: "garbage", input: "yesterday", wantValid: false},
		{name: "month and year only", input: "01-2024", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantValid {
				t.Fatalf("ParseDate(%q) valid = %v, want %v", tt.input, ok, tt.wantValid)
			}
			if !ok {
				return
			}
			if s := got.Format(record.DateLayout); s != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, s, tt.want)
			}
			if got.Hour() != 0 || got.Minute() != 0 {
				t.Errorf("ParseDate(%q) kept a clock: %v", tt.input, got)
			}
		})
	}
}

func TestIsNullMarker(t *testing.T) {
	tests := []struct {
		v    record.Value
		want bool
	}{
		{record.Absent(), true},
		{record.String(""), true},
		{record.String("   "), true},
		{record.String("NaT"), true},
		{record.String("NaN"), true},
		{record.String("nan"), true},
		{record.Float(math.NaN()), true},
		{record.String("Nancy"), false},
		{record.String("0"), false},
		{record.Int(0), false},
		{record.Bool(false), false},
	}
	for _, tt := range tests {
		if got := IsNullMarker(tt.v); got != tt.want {
			t.Errorf("IsNullMarker(%q) = %v, want %v", tt.v.String(), got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	ts := time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC)
	in := record.New(
		record.F("title", "Decree"),
		record.F("created_at", "2024-03-09"),
		record.F("summary", "NaN"),
		record.F("external_link", "  "),
		record.F("published", ts),
		record.F("rtype_id", 4),
		record.F("note", "2024-03-09"),
	)

	out := Sanitize(in, map[string]bool{"created_at": true})

	if got, ok := out.Get("created_at").TimeValue(); !ok || got.Format(record.DateLayout) != "2024-03-09" {
		t.Errorf("created_at = %v, want date 2024-03-09", out.Get("created_at"))
	}
	for _, name := range []string{"summary", "external_link"} {
		if !out.Get(name).IsAbsent() {
			t.Errorf("%s = %q, want absent", name, out.Get(name).String())
		}
	}
	if got, _ := out.Get("published").TimeValue(); !got.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v, want midnight", got)
	}
	if got, ok := out.Get("rtype_id").Int64(); !ok || got != 4 {
		t.Errorf("rtype_id = %v, want 4", out.Get("rtype_id"))
	}
	if _, ok := out.Get("note").Text(); !ok {
		t.Errorf("note should stay text outside date columns")
	}
	if names := out.Names(); len(names) != in.Len() {
		t.Errorf("Sanitize changed the field list: %v", names)
	}
	if _, ok := in.Get("summary").Text(); !ok {
		t.Error("Sanitize modified its input")
	}
}
