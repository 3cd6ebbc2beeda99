package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is a named value inside a Record.
type Field struct {
	Name  string
	Value Value
}

// F builds a Field from a Go literal. It panics on unsupported types and is
// meant for fixtures and literals.
func F(name string, v any) Field {
	return Field{Name: name, Value: MustAny(v)}
}

// Record is an ordered mapping from field name to Value.
// Field order is the order in which names were first set.
type Record struct {
	fields []Field
}

// New creates a record from the given fields. Later duplicates overwrite
// earlier ones in place.
func New(fields ...Field) *Record {
	r := &Record{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.fields) }

// Lookup returns the value for name and whether the field is present.
func (r *Record) Lookup(name string) (Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Absent(), false
}

// Get returns the value for name, or Absent if the field is missing.
func (r *Record) Get(name string) Value {
	v, _ := r.Lookup(name)
	return v
}

// Set replaces the value for name in place, or appends a new field.
func (r *Record) Set(name string, v Value) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Fields returns a copy of the fields in order.
func (r *Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Names returns the field names in order.
func (r *Record) Names() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Clone returns an independent copy.
func (r *Record) Clone() *Record {
	return &Record{fields: r.Fields()}
}

// Equal reports whether both records hold the same fields in the same order.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i := range r.fields {
		if r.fields[i].Name != o.fields[i].Name || !r.fields[i].Value.Equal(o.fields[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as an object, preserving field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object, preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	rec, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}
