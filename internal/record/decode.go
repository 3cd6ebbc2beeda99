package record

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Format names a batch encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatFromName picks a format from a file name or object key extension.
// Anything that is not .csv is treated as JSON.
func FormatFromName(name string) Format {
	if strings.HasSuffix(strings.ToLower(name), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}

// Decode reads a batch in the given format.
func Decode(r io.Reader, format Format) ([]*Record, error) {
	switch format {
	case FormatCSV:
		return DecodeCSV(r)
	case FormatJSON, "":
		return DecodeJSON(r)
	default:
		return nil, fmt.Errorf("unknown batch format %q", format)
	}
}

// DecodeJSON reads a JSON array of flat objects. Key order is preserved,
// integral numbers become Int and null becomes Absent.
func DecodeJSON(r io.Reader) ([]*Record, error) {
	dec := json.NewDecoder(WrapForStreaming(r))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read batch: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("batch must be a JSON array of objects")
	}

	var records []*Record
	for dec.More() {
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return records, nil
}

func decodeObject(dec *json.Decoder) (*Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	rec := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if _, nested := valTok.(json.Delim); nested {
			return nil, fmt.Errorf("field %q: nested values are not supported", key)
		}
		v, err := FromAny(valTok)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rec, nil
}

var (
	intCell   = regexp.MustCompile(`^[+-]?\d+$`)
	floatCell = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// DecodeCSV reads a header row followed by data rows. Cells are typed by
// shape: blank is Absent, integers are Int, decimals are Float, true/false
// are Bool, everything else stays a String. Fully blank rows are skipped.
func DecodeCSV(r io.Reader) ([]*Record, error) {
	cr := csv.NewReader(WrapForStreaming(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []*Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}

		rec := New()
		for i, name := range header {
			if name == "" {
				continue
			}
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			rec.Set(name, inferCell(cell))
		}
		records = append(records, rec)
	}
	return records, nil
}

func inferCell(cell string) Value {
	s := strings.TrimSpace(cell)
	switch {
	case s == "":
		return Absent()
	case intCell.MatchString(s):
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
	case floatCell.MatchString(s):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return String(cell)
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
