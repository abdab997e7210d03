package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

func TestProject(t *testing.T) {
	text := types.ColumnSpec{ID: "t", Name: "Note", Type: types.ColumnText}
	num := types.ColumnSpec{ID: "n", Name: "Weight", Type: types.ColumnNumber}
	date := types.ColumnSpec{ID: "d", Name: "Day", Type: types.ColumnDate}
	box := types.ColumnSpec{ID: "b", Name: "Done", Type: types.ColumnCheckbox}

	tests := []struct {
		name string
		col  types.ColumnSpec
		v    types.Value
		ok   bool
		want string
	}{
		{"checked", box, types.Checkbox(true), true, "Yes"},
		{"unchecked", box, types.Checkbox(false), true, "No"},
		{"absent checkbox", box, types.Value{}, false, Placeholder},
		{"date", date, types.Date(time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)), true, "2025-03-14"},
		{"null date", date, types.Null(), true, Placeholder},
		{"absent date", date, types.Value{}, false, Placeholder},
		{"number", num, types.Number(72.5), true, "72.5"},
		{"whole number", num, types.Number(80), true, "80"},
		{"zero", num, types.Number(0), true, "0"},
		{"null number", num, types.Null(), true, Placeholder},
		{"text", text, types.Text("ran 5k"), true, "ran 5k"},
		{"empty text", text, types.Text(""), true, ""},
		{"absent text", text, types.Value{}, false, Placeholder},
		{"retyped column shows stored kind", box, types.Number(3), true, "3"},
		{"text under number column", num, types.Text("old"), true, "old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Project(tt.col, tt.v, tt.ok))
		})
	}
}

func TestRowSkipsOrphans(t *testing.T) {
	schema := types.Schema{
		{ID: "c2", Name: "Mood", Type: types.ColumnText},
		{ID: "c3", Name: "Slept", Type: types.ColumnCheckbox},
	}
	e := &types.Entry{
		EntryID: "e1",
		Data: map[string]types.Value{
			"c1": types.Number(72.5),
			"c2": types.Text("fine"),
		},
	}

	assert.Equal(t, []string{"Mood", "Slept"}, Header(schema))
	assert.Equal(t, []string{"fine", Placeholder}, Row(schema, e))
	// The orphaned value is still on the entry.
	v, ok := e.Value("c1")
	require.True(t, ok)
	assert.True(t, v.Equal(types.Number(72.5)))
}

func TestEntries(t *testing.T) {
	schema := types.Schema{{ID: "c1", Name: "Weight", Type: types.ColumnNumber}}
	at := time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)
	entries := []*types.Entry{
		{EntryID: "b", LoggedAt: at.Add(time.Hour), Data: map[string]types.Value{"c1": types.Number(71)}},
		{EntryID: "a", LoggedAt: at, Data: map[string]types.Value{}},
	}

	got := Entries(schema, entries)
	assert.Equal(t, []string{"Weight"}, got.Header)
	assert.Equal(t, []string{"b", "a"}, got.EntryIDs)
	assert.Equal(t, []string{"2025-01-02 09:30", "2025-01-02 08:30"}, got.LoggedAt)
	assert.Equal(t, [][]string{{"71"}, {Placeholder}}, got.Rows)

	empty := Entries(nil, nil)
	assert.Empty(t, empty.Header)
	assert.Empty(t, empty.Rows)
}
