package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

func TestCategoriesTable(t *testing.T) {
	tests := []struct {
		name  string
		check func(t *testing.T, b *Backend)
	}{
		{
			name: "set with empty id generates id and timestamps",
			check: func(t *testing.T, b *Backend) {
				cat := newCategory(t, b, "Workouts", nil)
				assert.NotEmpty(t, cat.CategoryID)
				assert.False(t, cat.CreatedAt.IsZero())

				got, err := mustTable(t, b, types.TableCategories).Get(cat.CategoryID)
				require.NoError(t, err)
				stored := got.(*types.Category)
				assert.Equal(t, "Workouts", stored.Title)
				assert.NotNil(t, stored.Schema)
				assert.Empty(t, stored.Schema)
			},
		},
		{
			name: "set with id replaces schema and retired ids",
			check: func(t *testing.T, b *Backend) {
				table := mustTable(t, b, types.TableCategories)
				cat := newCategory(t, b, "Sleep", types.Schema{{ID: "h", Name: "Hours", Type: types.ColumnNumber}})
				_, err := cat.ReplaceSchema(types.Schema{{ID: "q", Name: "Quality", Type: types.ColumnText}})
				require.NoError(t, err)
				cat.Description = "nightly"
				_, err = table.Set(cat.CategoryID, cat)
				require.NoError(t, err)

				got, err := table.Get(cat.CategoryID)
				require.NoError(t, err)
				stored := got.(*types.Category)
				assert.Equal(t, "nightly", stored.Description)
				assert.Equal(t, []string{"q"}, stored.Schema.IDs())
				assert.Equal(t, []string{"h"}, stored.RetiredColumnIDs)
			},
		},
		{
			name: "set rejects blank title",
			check: func(t *testing.T, b *Backend) {
				_, err := mustTable(t, b, types.TableCategories).Set("", &types.Category{Title: "  "})
				assert.ErrorIs(t, err, types.ErrInvalidName)
			},
		},
		{
			name: "set rejects wrong data type",
			check: func(t *testing.T, b *Backend) {
				_, err := mustTable(t, b, types.TableCategories).Set("", &types.Entry{})
				assert.ErrorIs(t, err, types.ErrInvalidData)
			},
		},
		{
			name: "set rejects duplicate column ids",
			check: func(t *testing.T, b *Backend) {
				cat := &types.Category{Title: "Dup", Schema: types.Schema{
					{ID: "a", Name: "A", Type: types.ColumnText},
					{ID: "a", Name: "B", Type: types.ColumnText},
				}}
				_, err := mustTable(t, b, types.TableCategories).Set("", cat)
				assert.ErrorIs(t, err, types.ErrSchemaConflict)
			},
		},
		{
			name: "get and delete report missing ids",
			check: func(t *testing.T, b *Backend) {
				table := mustTable(t, b, types.TableCategories)
				_, err := table.Get("missing")
				assert.ErrorIs(t, err, types.ErrNotFound)
				assert.ErrorIs(t, table.Delete("missing"), types.ErrNotFound)
				_, err = table.Get("")
				assert.ErrorIs(t, err, types.ErrInvalidID)
			},
		},
		{
			name: "delete cascades to entries",
			check: func(t *testing.T, b *Backend) {
				cats := mustTable(t, b, types.TableCategories)
				entries := mustTable(t, b, types.TableEntries)
				doomed := newCategory(t, b, "Doomed", types.Schema{{ID: "c", Name: "C", Type: types.ColumnText}})
				kept := newCategory(t, b, "Kept", nil)
				now := time.Now()
				for range 3 {
					_, err := entries.Set("", &types.Entry{CategoryID: doomed.CategoryID, LoggedAt: now, Data: map[string]types.Value{"c": types.Text("x")}})
					require.NoError(t, err)
				}
				_, err := entries.Set("", &types.Entry{CategoryID: kept.CategoryID, LoggedAt: now})
				require.NoError(t, err)

				require.NoError(t, cats.Delete(doomed.CategoryID))
				assert.ErrorIs(t, cats.Delete(doomed.CategoryID), types.ErrNotFound, "second delete is reported")

				left, err := entries.Fetch(types.Filter{"category_id": doomed.CategoryID})
				require.NoError(t, err)
				assert.Empty(t, left)
				all, err := entries.Fetch(nil)
				require.NoError(t, err)
				assert.Len(t, all, 1)

				var n int
				require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM entry_values").Scan(&n))
				assert.Zero(t, n, "cell rows follow their entries")
			},
		},
		{
			name: "fetch orders by creation and filters by title",
			check: func(t *testing.T, b *Backend) {
				table := mustTable(t, b, types.TableCategories)
				base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
				for i, title := range []string{"c", "a", "b"} {
					_, err := table.Set("", &types.Category{Title: title, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
					require.NoError(t, err)
				}

				all, err := table.Fetch(nil)
				require.NoError(t, err)
				var titles []string
				for _, v := range all {
					titles = append(titles, v.(*types.Category).Title)
				}
				assert.Equal(t, []string{"c", "a", "b"}, titles)

				page, err := table.Fetch(types.Filter{"limit": 1, "offset": 1})
				require.NoError(t, err)
				require.Len(t, page, 1)
				assert.Equal(t, "a", page[0].(*types.Category).Title)

				byTitle, err := table.Fetch(types.Filter{"title": "b"})
				require.NoError(t, err)
				assert.Len(t, byTitle, 1)

				_, err = table.Fetch(types.Filter{"title": 3})
				assert.ErrorIs(t, err, types.ErrInvalidFilter)
				_, err = table.Fetch(types.Filter{"color": "red"})
				assert.ErrorIs(t, err, types.ErrInvalidFilter)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, setupBackend(t))
		})
	}
}
