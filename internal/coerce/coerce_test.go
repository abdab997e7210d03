package coerce

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

var testSchema = types.Schema{
	{ID: "note", Name: "Note", Type: types.ColumnText},
	{ID: "weight", Name: "Weight", Type: types.ColumnNumber},
	{ID: "day", Name: "Day", Type: types.ColumnDate},
	{ID: "done", Name: "Done", Type: types.ColumnCheckbox},
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    types.Value
		wantErr bool
	}{
		{"decimal string", map[string]any{"weight": "72.5"}, types.Number(72.5), false},
		{"padded string", map[string]any{"weight": " 80 "}, types.Number(80), false},
		{"float input", map[string]any{"weight": 3.25}, types.Number(3.25), false},
		{"int input", map[string]any{"weight": 4}, types.Number(4), false},
		{"empty string is null", map[string]any{"weight": ""}, types.Null(), false},
		{"absent is null", map[string]any{}, types.Null(), false},
		{"nil is null", map[string]any{"weight": nil}, types.Null(), false},
		{"zero stays zero", map[string]any{"weight": "0"}, types.Number(0), false},
		{"garbage fails", map[string]any{"weight": "abc"}, types.Value{}, true},
		{"NaN fails", map[string]any{"weight": "NaN"}, types.Value{}, true},
		{"bool fails", map[string]any{"weight": true}, types.Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Coerce(tt.raw, testSchema)
			if tt.wantErr {
				var verr *types.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, []string{"weight"}, verr.ColumnIDs())
				_, ok := record["weight"]
				assert.False(t, ok, "failed column must not be in the record")
				return
			}
			require.NoError(t, err)
			got, ok := record["weight"]
			require.True(t, ok)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    time.Time
		wantErr bool
	}{
		{"html date", "2025-03-14", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), false},
		{"datetime-local", "2025-03-14T09:30", time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC), false},
		{"rfc3339 offset", "2025-03-14T09:30:00+02:00", time.Date(2025, 3, 14, 7, 30, 0, 0, time.UTC), false},
		{"time value", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"not a date", "next tuesday", time.Time{}, true},
		{"number", 20250314, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Coerce(map[string]any{"day": tt.in}, testSchema)
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrValidation)
				return
			}
			require.NoError(t, err)
			got, ok := record["day"].AsDate()
			require.True(t, ok)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}

	record, err := Coerce(map[string]any{"day": ""}, testSchema)
	require.NoError(t, err)
	assert.True(t, record["day"].IsNull())
}

func TestCoerceCheckbox(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want bool
	}{
		{"absent is unchecked", map[string]any{}, false},
		{"html on", map[string]any{"done": "on"}, true},
		{"bool true", map[string]any{"done": true}, true},
		{"bool false", map[string]any{"done": false}, false},
		{"string false", map[string]any{"done": "false"}, false},
		{"empty string", map[string]any{"done": ""}, false},
		{"yes", map[string]any{"done": "Yes"}, true},
		{"nil", map[string]any{"done": nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Coerce(tt.raw, testSchema)
			require.NoError(t, err)
			got, ok := record["done"].AsCheckbox()
			require.True(t, ok, "checkbox must always be stored, never null")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceText(t *testing.T) {
	record, err := Coerce(map[string]any{"note": "slept 7h"}, testSchema)
	require.NoError(t, err)
	got, ok := record["note"].AsText()
	require.True(t, ok)
	assert.Equal(t, "slept 7h", got)

	record, err = Coerce(map[string]any{}, testSchema)
	require.NoError(t, err)
	_, ok = record["note"]
	assert.False(t, ok, "absent text is not stored")

	record, err = Coerce(map[string]any{"note": ""}, testSchema)
	require.NoError(t, err)
	got, ok = record["note"].AsText()
	require.True(t, ok)
	assert.Equal(t, "", got)
}

func TestCoerceIgnoresUnknownKeys(t *testing.T) {
	record, err := Coerce(map[string]any{
		"weight":  "1",
		"removed": "stale",
		"Weight":  "2",
	}, testSchema)
	require.NoError(t, err)
	for k := range record {
		_, ok := testSchema.Column(k)
		assert.True(t, ok, "record has key %q outside the schema", k)
	}
	assert.True(t, record["weight"].Equal(types.Number(1)))
}

func TestCoerceReportsEveryFailure(t *testing.T) {
	record, err := Coerce(map[string]any{
		"weight": "heavy",
		"day":    "someday",
		"note":   "kept",
	}, testSchema)
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"weight", "day"}, verr.ColumnIDs())
	assert.True(t, record["note"].Equal(types.Text("kept")), "valid columns are still coerced")
}

func TestCoerceEmptySchema(t *testing.T) {
	record, err := Coerce(map[string]any{"x": 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, record)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-02-14", time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)},
		{" 2025-02-14T09:30 ", time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC)},
		{"2025-02-14 09:30:15", time.Date(2025, 2, 14, 9, 30, 15, 0, time.UTC)},
		{"2025-02-14T09:30:00+02:00", time.Date(2025, 2, 14, 7, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err := ParseDate("14/02/2025")
	assert.Error(t, err)
}
