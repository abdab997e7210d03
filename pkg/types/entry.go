package types

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Entry is one logged record of a category. Data is keyed by column id.
// Keys may be missing (column added after the write) or refer to columns
// no longer in the schema (orphaned data, kept as written).
type Entry struct {
	EntryID    string           `json:"id"`
	CategoryID string           `json:"category_id"`
	Data       map[string]Value `json:"data"`
	LoggedAt   time.Time        `json:"logged_at"`

	// Seq is the insertion sequence assigned by the backend on first
	// insert. It breaks ties between equal LoggedAt values.
	Seq int64 `json:"-"`
}

// Value returns the stored value for a column id.
func (e *Entry) Value(columnID string) (Value, bool) {
	v, ok := e.Data[columnID]
	return v, ok
}

// Orphans returns the data keys that the schema does not define, sorted.
func (e *Entry) Orphans(schema Schema) []string {
	var out []string
	for k := range e.Data {
		if _, ok := schema.Column(k); !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Clone returns a copy of e with its own Data map.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Data = maps.Clone(e.Data)
	if cp.Data == nil {
		cp.Data = map[string]Value{}
	}
	return &cp
}

// EntryRecord is the storage and snapshot encoding of an Entry. Values
// keep their type tags; LoggedAt uses TimeLayout.
type EntryRecord struct {
	EntryID    string                `json:"entry_id"`
	CategoryID string                `json:"category_id"`
	Seq        int64                 `json:"seq"`
	LoggedAt   string                `json:"logged_at"`
	Data       map[string]TypedValue `json:"data"`
}

// Record encodes e for storage.
func (e *Entry) Record() EntryRecord {
	rec := EntryRecord{
		EntryID:    e.EntryID,
		CategoryID: e.CategoryID,
		Seq:        e.Seq,
		LoggedAt:   FormatTime(e.LoggedAt),
		Data:       make(map[string]TypedValue, len(e.Data)),
	}
	for k, v := range e.Data {
		rec.Data[k] = v.Typed()
	}
	return rec
}

// Entry decodes a stored record.
func (r EntryRecord) Entry() (*Entry, error) {
	loggedAt, err := ParseTime(r.LoggedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing logged_at of entry %s: %w", r.EntryID, err)
	}
	e := &Entry{
		EntryID:    r.EntryID,
		CategoryID: r.CategoryID,
		Seq:        r.Seq,
		LoggedAt:   loggedAt,
		Data:       make(map[string]Value, len(r.Data)),
	}
	for k, tv := range r.Data {
		v, err := tv.Decode()
		if err != nil {
			return nil, fmt.Errorf("decoding %s of entry %s: %w", k, r.EntryID, err)
		}
		e.Data[k] = v
	}
	return e, nil
}

// SortEntries orders entries most recent first; equal LoggedAt values
// keep insertion order (lower Seq first).
func SortEntries(entries []*Entry) {
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		if c := b.LoggedAt.Compare(a.LoggedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}
