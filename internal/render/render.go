// Package render projects stored entry values into display strings,
// driven by the current category schema.
package render

import (
	"strconv"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

// Placeholder is shown for null or absent values.
const Placeholder = "-"

// DateLayout is the calendar-date display layout.
const DateLayout = "2006-01-02"

// Checkbox labels.
const (
	LabelChecked   = "Yes"
	LabelUnchecked = "No"
)

// Project returns the display string for v under col. ok is false when
// the entry holds no value for the column. A value whose kind no longer
// matches the column type (the column was retyped after the write) is
// shown by its own kind.
func Project(col types.ColumnSpec, v types.Value, ok bool) string {
	if !ok || v.IsNull() {
		return Placeholder
	}
	switch v.Kind() {
	case types.KindCheckbox:
		checked, _ := v.AsCheckbox()
		if checked {
			return LabelChecked
		}
		return LabelUnchecked
	case types.KindDate:
		t, _ := v.AsDate()
		return t.Format(DateLayout)
	case types.KindNumber:
		f, _ := v.AsNumber()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case types.KindText:
		s, _ := v.AsText()
		if s == "" && col.Type != types.ColumnText {
			return Placeholder
		}
		return s
	}
	return Placeholder
}

// Header returns the column names of schema in display order.
func Header(schema types.Schema) []string {
	out := make([]string, len(schema))
	for i, col := range schema {
		out[i] = col.Name
	}
	return out
}

// Row projects every schema column of e, in schema order. Data keys the
// schema does not name are never visited.
func Row(schema types.Schema, e *types.Entry) []string {
	out := make([]string, len(schema))
	for i, col := range schema {
		v, ok := e.Value(col.ID)
		out[i] = Project(col, v, ok)
	}
	return out
}

// Table is a rendered category: a header plus one row per entry.
type Table struct {
	Header   []string   `json:"header"`
	LoggedAt []string   `json:"logged_at"`
	EntryIDs []string   `json:"entry_ids"`
	Rows     [][]string `json:"rows"`
}

// Entries renders entries under schema. Rows keep the order of entries.
func Entries(schema types.Schema, entries []*types.Entry) Table {
	t := Table{
		Header:   Header(schema),
		LoggedAt: make([]string, len(entries)),
		EntryIDs: make([]string, len(entries)),
		Rows:     make([][]string, len(entries)),
	}
	for i, e := range entries {
		t.EntryIDs[i] = e.EntryID
		t.LoggedAt[i] = e.LoggedAt.UTC().Format("2006-01-02 15:04")
		t.Rows[i] = Row(schema, e)
	}
	return t
}
