package core

// convert.go normalizes values right before they are written.
//
// Scrapers leave several spellings of "no value" behind: JSON null, NaN,
// blank strings and the literal strings "NaT", "NaN" and "nan" emitted by
// dataframe libraries. All of them become record.Absent so the store writes
// NULL. Date columns are reduced to a calendar date; a timestamp never
// reaches the regulations table.

import (
	"strings"
	"time"

	"github.com/JonMunkholm/regingest/internal/record"
)

// nullStrings are textual null markers left by upstream tooling.
var nullStrings = map[string]struct{}{
	"NaT": {},
	"NaN": {},
	"nan": {},
}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// moved to the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
		time.RFC3339, time.RFC3339Nano,
		"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04:05.999999",
	}
)

// ParseDate parses the date formats scrapers emit and returns the calendar
// date at midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return CalendarDate(t), true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return CalendarDate(t), true
		}
	}

	return time.Time{}, false
}

// CalendarDate drops the clock part of t, keeping the date as seen in t's
// own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsNullMarker reports whether v stands for "no value".
func IsNullMarker(v record.Value) bool {
	if v.IsEmpty() {
		return true
	}
	s, ok := v.Text()
	if !ok {
		return false
	}
	_, marker := nullStrings[strings.TrimSpace(s)]
	return marker
}

// SanitizeValue maps null markers to Absent and timestamps to calendar
// dates. When asDate is set, parseable text is converted to a date as well.
func SanitizeValue(v record.Value, asDate bool) record.Value {
	if IsNullMarker(v) {
		return record.Absent()
	}
	if t, ok := v.TimeValue(); ok {
		return record.Time(CalendarDate(t))
	}
	if asDate {
		if s, ok := v.Text(); ok {
			if t, ok := ParseDate(s); ok {
				return record.Time(t)
			}
		}
	}
	return v
}

// Sanitize returns a copy of rec ready for insertion. dateFields names the
// columns whose text should be stored as a date.
func Sanitize(rec *record.Record, dateFields map[string]bool) *record.Record {
	out := record.New()
	for _, f := range rec.Fields() {
		out.Set(f.Name, SanitizeValue(f.Value, dateFields[f.Name]))
	}
	return out
}
