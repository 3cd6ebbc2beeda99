package core

import (
	"strings"

	"github.com/JonMunkholm/regingest/internal/record"
)

// Field names the pipeline relies on.
const (
	FieldTitle        = "title"
	FieldCreatedAt    = "created_at"
	FieldExternalLink = "external_link"
	FieldEntity       = "entity"
)

// Key identifies one regulation occurrence for idempotence checks.
// Stored rows and incoming records must be keyed with the same normalization.
type Key struct {
	Title        string
	CreatedAt    string
	ExternalLink string
}

func (k Key) String() string {
	return k.Title + " | " + k.CreatedAt + " | " + k.ExternalLink
}

// NewKey builds a key from raw values: the title is trimmed, the date is
// rendered as YYYY-MM-DD when it can be parsed, and a missing link is "".
func NewKey(title, createdAt, link record.Value) Key {
	return Key{
		Title:        keyText(title, true),
		CreatedAt:    keyDate(createdAt),
		ExternalLink: keyText(link, false),
	}
}

// KeyOf returns the identifying key of a record.
func KeyOf(rec *record.Record) Key {
	return NewKey(rec.Get(FieldTitle), rec.Get(FieldCreatedAt), rec.Get(FieldExternalLink))
}

func keyText(v record.Value, trim bool) string {
	if IsNullMarker(v) {
		return ""
	}
	if trim {
		return strings.TrimSpace(v.String())
	}
	return v.String()
}

func keyDate(v record.Value) string {
	if IsNullMarker(v) {
		return ""
	}
	if t, ok := v.TimeValue(); ok {
		return CalendarDate(t).Format(record.DateLayout)
	}
	if s, ok := v.Text(); ok {
		if t, ok := ParseDate(s); ok {
			return t.Format(record.DateLayout)
		}
		return strings.TrimSpace(s)
	}
	return v.String()
}

// KeyIndex is the set of keys already persisted for an entity.
type KeyIndex map[Key]struct{}

// NewKeyIndex builds an index from keys.
func NewKeyIndex(keys ...Key) KeyIndex {
	idx := make(KeyIndex, len(keys))
	for _, k := range keys {
		idx[k] = struct{}{}
	}
	return idx
}

// Contains reports whether k is in the index.
func (idx KeyIndex) Contains(k Key) bool {
	_, ok := idx[k]
	return ok
}

// DedupResult is the outcome of deduplicating a candidate batch.
type DedupResult struct {
	New        []*record.Record
	CrossBatch int
	Internal   int
	// Samples holds up to three keys that matched stored rows.
	Samples []Key
}

// Skipped returns the total number of dropped candidates.
func (d DedupResult) Skipped() int { return d.CrossBatch + d.Internal }

const maxDuplicateSamples = 3

// Dedup drops candidates whose key is already stored, then drops repeats
// inside the batch keeping the first occurrence. Order is preserved.
func Dedup(candidates []*record.Record, existing KeyIndex) DedupResult {
	var res DedupResult
	seen := make(map[Key]struct{}, len(candidates))

	for _, rec := range candidates {
		k := KeyOf(rec)
		if existing.Contains(k) {
			res.CrossBatch++
			if len(res.Samples) < maxDuplicateSamples {
				res.Samples = append(res.Samples, k)
			}
			continue
		}
		if _, dup := seen[k]; dup {
			res.Internal++
			continue
		}
		seen[k] = struct{}{}
		res.New = append(res.New, rec)
	}
	return res
}
