// Package record models scraped key-value records with an explicit absence state.
//
// Scrapers hand over loosely typed data: missing keys, JSON nulls, NaN floats,
// zero timestamps and blank strings all mean "no value". Value collapses the
// first four into a single Absent kind at construction time, and IsEmpty adds
// the blank-string case, so callers only ever ask one question.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which scalar a Value holds.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

// String returns the kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// DateLayout is the canonical calendar-date rendering.
const DateLayout = "2006-01-02"

// Value is a tagged scalar. The zero Value is Absent.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// Absent returns the explicit absence marker.
func Absent() Value { return Value{} }

// String wraps a textual value. Blank strings are kept as-is; see IsEmpty.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int wraps an integral value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a fractional value. NaN becomes Absent.
func Float(f float64) Value {
	if math.IsNaN(f) {
		return Absent()
	}
	return Value{kind: KindFloat, f: f}
}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time wraps a timestamp. The zero time becomes Absent.
func Time(t time.Time) Value {
	if t.IsZero() {
		return Absent()
	}
	return Value{kind: KindTime, t: t}
}

// FromAny converts a Go scalar into a Value. Unsupported types yield an error.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Absent(), nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case []byte:
		return String(string(v)), nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case json.Number:
		return fromNumber(v)
	case time.Time:
		return Time(v), nil
	case *time.Time:
		if v == nil {
			return Absent(), nil
		}
		return Time(*v), nil
	default:
		return Absent(), fmt.Errorf("unsupported value type %T", x)
	}
}

// MustAny is FromAny for literals known to be supported.
func MustAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Absent(), fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return Float(f), nil
}

// Kind reports the held kind.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the absence marker.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsEmpty reports whether v carries no usable data: Absent, or a string
// that is blank after trimming.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindAbsent:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	default:
		return false
	}
}

// Text returns the string payload.
func (v Value) Text() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Int64 returns the integral payload.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float64 returns the numeric payload for both Int and Float kinds.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// BoolValue returns the boolean payload.
func (v Value) BoolValue() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// TimeValue returns the timestamp payload.
func (v Value) TimeValue() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Any returns the payload as a plain Go value; nil for Absent.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindAbsent:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	}
	return false
}

// String renders the value for keys and logs. Absent renders as "".
// Timestamps at midnight render as a calendar date.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		if isMidnight(v.t) {
			return v.t.Format(DateLayout)
		}
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// MarshalJSON encodes Absent as null and timestamps as text.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindAbsent:
		return []byte("null"), nil
	case KindTime:
		return json.Marshal(v.String())
	default:
		return json.Marshal(v.Any())
	}
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
