package logbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/logbook/internal/clock"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

var epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// backends lists the configs every service test runs against.
func backends(t *testing.T) map[string]types.Config {
	return map[string]types.Config{
		types.BackendMemory: {Backend: types.BackendMemory},
		types.BackendSQLite: {Backend: types.BackendSQLite, DataDir: t.TempDir()},
	}
}

func setupService(t *testing.T, config types.Config) (*Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch).Step(time.Second)
	s, err := Open(config, WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clk
}

func eachBackend(t *testing.T, fn func(t *testing.T, s *Service, clk *clock.FakeClock)) {
	for name, config := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s, clk := setupService(t, config)
			fn(t, s, clk)
		})
	}
}

func weightCategory(t *testing.T, s *Service) *types.Category {
	t.Helper()
	cat, err := s.CreateCategory("Health", "body metrics")
	require.NoError(t, err)
	cat, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{{ID: "c1", Name: "Weight", Type: types.ColumnNumber}})
	require.NoError(t, err)
	return cat
}

func TestCreateCategory(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat, err := s.CreateCategory("  Reading ", "books")
		require.NoError(t, err)
		assert.Equal(t, "Reading", cat.Title)
		assert.Equal(t, "books", cat.Description)
		assert.NotNil(t, cat.Schema)
		assert.Empty(t, cat.Schema)

		got, err := s.GetCategory(cat.CategoryID)
		require.NoError(t, err)
		assert.Equal(t, cat.Title, got.Title)

		_, err = s.CreateCategory("   ", "")
		assert.ErrorIs(t, err, types.ErrInvalidName)
		_, err = s.GetCategory("missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestListAndUpdateCategories(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		for _, title := range []string{"A", "B", "C"} {
			_, err := s.CreateCategory(title, "")
			require.NoError(t, err)
		}
		all, err := s.ListCategories(types.Page{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "A", all[0].Title)

		page, err := s.ListCategories(types.Page{Limit: 1, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "C", page[0].Title)

		title, desc := "Renamed", "new words"
		got, err := s.UpdateCategory(all[1].CategoryID, CategoryPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		got, err = s.UpdateCategory(all[1].CategoryID, CategoryPatch{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title, "nil fields are left alone")
		assert.Equal(t, "new words", got.Description)

		blank := " "
		_, err = s.UpdateCategory(all[1].CategoryID, CategoryPatch{Title: &blank})
		assert.ErrorIs(t, err, types.ErrInvalidName)
		_, err = s.UpdateCategory("missing", CategoryPatch{})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestUpdateCategorySchema(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat, err := s.CreateCategory("Log", "")
		require.NoError(t, err)

		cat, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{
			{Name: "Note"},
			{ID: "n", Name: "Count", Type: types.ColumnNumber},
		})
		require.NoError(t, err)
		require.Len(t, cat.Schema, 2)
		noteID := cat.Schema[0].ID
		assert.NotEmpty(t, noteID, "new column gets an id")
		assert.Equal(t, types.ColumnText, cat.Schema[0].Type, "omitted type defaults to text")

		// Rename, retype and reorder keep ids.
		cat, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{
			{ID: "n", Name: "Amount", Type: types.ColumnText},
			{ID: noteID, Name: "Memo", Type: types.ColumnText},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"n", noteID}, cat.Schema.IDs())

		_, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{
			{ID: "x", Name: "X"}, {ID: "x", Name: "Y"},
		})
		assert.ErrorIs(t, err, types.ErrSchemaConflict)

		_, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{{ID: "t", Name: "T", Type: "color"}})
		assert.ErrorIs(t, err, types.ErrInvalidColumnType)

		// Removing a column retires its id for good.
		_, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{{ID: noteID, Name: "Memo", Type: types.ColumnText}})
		require.NoError(t, err)
		_, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{{ID: "n", Name: "Back", Type: types.ColumnText}})
		assert.ErrorIs(t, err, types.ErrSchemaConflict)

		stored, err := s.GetCategory(cat.CategoryID)
		require.NoError(t, err)
		assert.Equal(t, []string{noteID}, stored.Schema.IDs(), "failed updates change nothing")

		_, err = s.UpdateCategorySchema("missing", nil)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestUpdateSchemaTwiceLeavesEntriesUntouched(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat := weightCategory(t, s)
		e, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": "70"}, time.Time{})
		require.NoError(t, err)

		for range 2 {
			_, err = s.UpdateCategorySchema(cat.CategoryID, cat.Schema)
			require.NoError(t, err)
		}
		got, err := s.GetEntry(e.EntryID)
		require.NoError(t, err)
		if diff := cmp.Diff(e.Record(), got.Record()); diff != "" {
			t.Errorf("entry changed (-before +after):\n%s", diff)
		}
	})
}

func TestCreateEntryNumberCoercion(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat := weightCategory(t, s)

		e, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": ""}, time.Time{})
		require.NoError(t, err)
		assert.True(t, e.Data["c1"].IsNull(), "empty number is stored as null")

		_, err = s.CreateEntry(cat.CategoryID, map[string]any{"c1": "abc"}, time.Time{})
		var verr *types.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"c1"}, verr.ColumnIDs())
		assert.ErrorIs(t, err, types.ErrValidation)

		list, err := s.ListEntriesForCategory(cat.CategoryID)
		require.NoError(t, err)
		assert.Len(t, list, 1, "a rejected entry is not stored")
	})
}

func TestCreateEntryDefaults(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, clk *clock.FakeClock) {
		cat, err := s.CreateCategory("Habits", "")
		require.NoError(t, err)
		cat, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{
			{ID: "done", Name: "Done", Type: types.ColumnCheckbox},
			{ID: "note", Name: "Note", Type: types.ColumnText},
		})
		require.NoError(t, err)

		clk.Set(epoch.Add(24 * time.Hour))
		e, err := s.CreateEntry(cat.CategoryID, map[string]any{"stray": "x"}, time.Time{})
		require.NoError(t, err)
		checked, ok := e.Data["done"].AsCheckbox()
		require.True(t, ok, "absent checkbox is stored")
		assert.False(t, checked)
		_, ok = e.Data["note"]
		assert.False(t, ok, "absent text is not stored")
		_, ok = e.Data["stray"]
		assert.False(t, ok, "unknown keys are ignored")
		assert.True(t, e.LoggedAt.Equal(epoch.Add(24*time.Hour)), "zero logged_at means now")

		_, err = s.CreateEntry("missing", nil, time.Time{})
		assert.ErrorIs(t, err, types.ErrNotFound)

		precise := time.Date(2025, 3, 1, 8, 0, 0, 123456789, time.FixedZone("CET", 3600))
		e, err = s.CreateEntry(cat.CategoryID, nil, precise)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, e.LoggedAt.Location())
		assert.Equal(t, 123456000, e.LoggedAt.Nanosecond(), "microsecond precision")
		got, err := s.GetEntry(e.EntryID)
		require.NoError(t, err)
		assert.True(t, got.LoggedAt.Equal(e.LoggedAt))
	})
}

func TestUpdateEntryReplacesData(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat, err := s.CreateCategory("Run", "")
		require.NoError(t, err)
		cat, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{
			{ID: "km", Name: "Km", Type: types.ColumnNumber},
			{ID: "note", Name: "Note", Type: types.ColumnText},
		})
		require.NoError(t, err)
		at := epoch.Add(-time.Hour)
		e, err := s.CreateEntry(cat.CategoryID, map[string]any{"km": "5", "note": "easy"}, at)
		require.NoError(t, err)

		got, err := s.UpdateEntry(e.EntryID, map[string]any{"km": 7.5}, time.Time{})
		require.NoError(t, err)
		assert.True(t, got.Data["km"].Equal(types.Number(7.5)))
		_, ok := got.Data["note"]
		assert.False(t, ok, "omitted columns are dropped")
		assert.True(t, got.LoggedAt.Equal(at), "zero logged_at keeps the stored one")

		later := epoch.Add(time.Hour)
		got, err = s.UpdateEntry(e.EntryID, map[string]any{"km": "8"}, later)
		require.NoError(t, err)
		assert.True(t, got.LoggedAt.Equal(later))

		_, err = s.UpdateEntry(e.EntryID, map[string]any{"km": "far"}, time.Time{})
		assert.ErrorIs(t, err, types.ErrValidation)
		stored, err := s.GetEntry(e.EntryID)
		require.NoError(t, err)
		assert.True(t, stored.Data["km"].Equal(types.Number(8)), "failed update stores nothing")

		_, err = s.UpdateEntry("missing", nil, time.Time{})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestDeleteEntry(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat := weightCategory(t, s)
		e, err := s.CreateEntry(cat.CategoryID, nil, time.Time{})
		require.NoError(t, err)
		require.NoError(t, s.DeleteEntry(e.EntryID))
		assert.ErrorIs(t, s.DeleteEntry(e.EntryID), types.ErrNotFound)
		_, err = s.GetEntry(e.EntryID)
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestListEntriesOrdering(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat := weightCategory(t, s)
		t1, t2, t3 := epoch, epoch.Add(time.Hour), epoch.Add(2*time.Hour)
		e2, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": 2}, t2)
		require.NoError(t, err)
		e3, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": 3}, t3)
		require.NoError(t, err)
		e1, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": 1}, t1)
		require.NoError(t, err)
		tie, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": 4}, t2)
		require.NoError(t, err)

		list, err := s.ListEntriesForCategory(cat.CategoryID)
		require.NoError(t, err)
		var got []string
		for _, e := range list {
			got = append(got, e.EntryID)
		}
		assert.Equal(t, []string{e3.EntryID, e2.EntryID, tie.EntryID, e1.EntryID}, got)

		page, err := s.ListEntriesPage(cat.CategoryID, types.Page{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, e3.EntryID, page[0].EntryID)

		_, err = s.ListEntriesForCategory("missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestDeleteCategoryCascades(t *testing.T) {
	for _, count := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d entries", count), func(t *testing.T) {
			eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
				cat := weightCategory(t, s)
				other := weightCategory(t, s)
				for i := range count {
					_, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": i}, time.Time{})
					require.NoError(t, err)
				}
				survivor, err := s.CreateEntry(other.CategoryID, map[string]any{"c1": 1}, time.Time{})
				require.NoError(t, err)

				purged, err := s.DeleteCategory(cat.CategoryID)
				require.NoError(t, err)
				assert.Equal(t, count, purged)

				_, err = s.ListEntriesForCategory(cat.CategoryID)
				assert.ErrorIs(t, err, types.ErrNotFound)
				entries, err := s.cupboard.GetTable(types.TableEntries)
				require.NoError(t, err)
				left, err := entries.Fetch(types.Filter{"category_id": cat.CategoryID})
				require.NoError(t, err)
				assert.Empty(t, left)

				_, err = s.GetEntry(survivor.EntryID)
				assert.NoError(t, err)

				_, err = s.DeleteCategory(cat.CategoryID)
				assert.ErrorIs(t, err, types.ErrNotFound, "a second delete is reported")
			})
		})
	}
}

func TestOrphanedDataSurvivesSchemaChange(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat := weightCategory(t, s)
		e, err := s.CreateEntry(cat.CategoryID, map[string]any{"c1": "72.5"}, time.Time{})
		require.NoError(t, err)
		weight, ok := e.Data["c1"].AsNumber()
		require.True(t, ok)
		assert.Equal(t, 72.5, weight)

		_, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{})
		require.NoError(t, err)

		list, err := s.ListEntriesForCategory(cat.CategoryID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Data["c1"].Equal(types.Number(72.5)), "orphaned value is kept")
		assert.Equal(t, []string{"c1"}, list[0].Orphans(types.Schema{}))

		_, table, err := s.RenderEntries(cat.CategoryID, types.Page{})
		require.NoError(t, err)
		assert.Empty(t, table.Header)
		require.Len(t, table.Rows, 1)
		assert.Empty(t, table.Rows[0], "renderer never visits the removed column")
	})
}

func TestRenderEntries(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Service, _ *clock.FakeClock) {
		cat, err := s.CreateCategory("Day", "")
		require.NoError(t, err)
		cat, err = s.UpdateCategorySchema(cat.CategoryID, types.Schema{
			{ID: "d", Name: "Date", Type: types.ColumnDate},
			{ID: "ok", Name: "Ok", Type: types.ColumnCheckbox},
		})
		require.NoError(t, err)
		_, err = s.CreateEntry(cat.CategoryID, map[string]any{"d": "2025-02-14", "ok": "on"}, epoch)
		require.NoError(t, err)
		_, err = s.CreateEntry(cat.CategoryID, map[string]any{}, epoch.Add(time.Minute))
		require.NoError(t, err)

		// A column added later has no value in existing entries.
		_, err = s.UpdateCategorySchema(cat.CategoryID, append(cat.Schema, types.ColumnSpec{Name: "Mood"}))
		require.NoError(t, err)

		_, table, err := s.RenderEntries(cat.CategoryID, types.Page{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Ok", "Mood"}, table.Header)
		assert.Equal(t, [][]string{
			{"-", "No", "-"},
			{"2025-02-14", "Yes", "-"},
		}, table.Rows)

		_, _, err = s.RenderEntries("missing", types.Page{})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestReconcile(t *testing.T) {
	s, _ := setupService(t, types.Config{Backend: types.BackendMemory})
	cat := weightCategory(t, s)
	_, err := s.CreateEntry(cat.CategoryID, nil, time.Time{})
	require.NoError(t, err)
	n, err := s.Reconcile()
	require.NoError(t, err)
	assert.Zero(t, n, "a consistent store is left alone")
}

func TestReconcileRemovesDanglingEntries(t *testing.T) {
	// A cascade cut short between the two file writes leaves entries
	// whose category is gone.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "categories.jsonl"),
		[]byte(`{"category_id":"kept","title":"Kept","schema":[],"created_at":"2025-01-15T10:30:00Z","updated_at":"2025-01-15T10:30:00Z"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "entries.jsonl"), []byte(
		`{"entry_id":"e1","category_id":"gone","seq":1,"logged_at":"2025-01-15T10:30:00Z","data":{}}`+"\n"+
			`{"entry_id":"e2","category_id":"gone","seq":2,"logged_at":"2025-01-15T10:31:00Z","data":{}}`+"\n"+
			`{"entry_id":"e3","category_id":"kept","seq":3,"logged_at":"2025-01-15T10:32:00Z","data":{}}`+"\n"), 0o644))

	s, _ := setupService(t, types.Config{Backend: types.BackendSQLite, DataDir: dir})
	n, err := s.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Reconcile()
	require.NoError(t, err)
	assert.Zero(t, n, "reconcile is idempotent")

	_, err = s.GetEntry("e3")
	assert.NoError(t, err)
	_, err = s.GetEntry("e1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
