// Package storetest holds the behavior every Cupboard backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

// Opener returns a freshly attached, empty Cupboard. It registers its own
// cleanup.
type Opener func(t *testing.T) types.Cupboard

var t0 = time.Date(2025, 4, 1, 7, 0, 0, 0, time.UTC)

func table(t *testing.T, c types.Cupboard, name string) types.Table {
	t.Helper()
	tbl, err := c.GetTable(name)
	require.NoError(t, err)
	return tbl
}

func category(t *testing.T, c types.Cupboard, title string) string {
	t.Helper()
	id, err := table(t, c, types.TableCategories).Set("", &types.Category{
		Title:  title,
		Schema: types.Schema{{ID: "n", Name: "N", Type: types.ColumnNumber}},
	})
	require.NoError(t, err)
	return id
}

func entry(t *testing.T, c types.Cupboard, categoryID string, at time.Time, n float64) string {
	t.Helper()
	id, err := table(t, c, types.TableEntries).Set("", &types.Entry{
		CategoryID: categoryID,
		LoggedAt:   at,
		Data:       map[string]types.Value{"n": types.Number(n)},
	})
	require.NoError(t, err)
	return id
}

func ids(got []any) []string {
	out := make([]string, len(got))
	for i, v := range got {
		switch x := v.(type) {
		case *types.Entry:
			out[i] = x.EntryID
		case *types.Category:
			out[i] = x.CategoryID
		}
	}
	return out
}

// Run exercises open against the shared Cupboard contract.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name  string
		check func(t *testing.T, c types.Cupboard)
	}{
		{
			name: "unknown table",
			check: func(t *testing.T, c types.Cupboard) {
				_, err := c.GetTable("widgets")
				assert.ErrorIs(t, err, types.ErrTableNotFound)
			},
		},
		{
			name: "category round trip",
			check: func(t *testing.T, c types.Cupboard) {
				cats := table(t, c, types.TableCategories)
				cat := &types.Category{
					Title:       "Health",
					Description: "daily",
					Schema: types.Schema{
						{ID: "w", Name: "Weight", Type: types.ColumnNumber},
						{ID: "d", Name: "Done", Type: types.ColumnCheckbox},
					},
					RetiredColumnIDs: []string{"old"},
				}
				id, err := cats.Set("", cat)
				require.NoError(t, err)
				got, err := cats.Get(id)
				require.NoError(t, err)
				stored := got.(*types.Category)
				assert.Equal(t, "Health", stored.Title)
				assert.Equal(t, "daily", stored.Description)
				assert.Equal(t, cat.Schema, stored.Schema)
				assert.Equal(t, []string{"old"}, stored.RetiredColumnIDs)
			},
		},
		{
			name: "missing ids",
			check: func(t *testing.T, c types.Cupboard) {
				for _, name := range types.StandardTableNames {
					tbl := table(t, c, name)
					_, err := tbl.Get("missing")
					assert.ErrorIs(t, err, types.ErrNotFound, name)
					assert.ErrorIs(t, tbl.Delete("missing"), types.ErrNotFound, name)
					_, err = tbl.Get("")
					assert.ErrorIs(t, err, types.ErrInvalidID, name)
				}
			},
		},
		{
			name: "entry needs its category",
			check: func(t *testing.T, c types.Cupboard) {
				_, err := table(t, c, types.TableEntries).Set("", &types.Entry{CategoryID: "ghost", LoggedAt: t0})
				assert.ErrorIs(t, err, types.ErrNotFound)
			},
		},
		{
			name: "entry values keep their variant",
			check: func(t *testing.T, c types.Cupboard) {
				catID := category(t, c, "Mixed")
				data := map[string]types.Value{
					"t": types.Text("hello"),
					"n": types.Number(-1.25),
					"d": types.Date(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)),
					"b": types.Checkbox(false),
					"z": types.Null(),
				}
				entries := table(t, c, types.TableEntries)
				id, err := entries.Set("", &types.Entry{CategoryID: catID, LoggedAt: t0, Data: data})
				require.NoError(t, err)
				got, err := entries.Get(id)
				require.NoError(t, err)
				stored := got.(*types.Entry)
				require.Len(t, stored.Data, len(data))
				for k, want := range data {
					assert.True(t, stored.Data[k].Equal(want), "%s: got %v want %v", k, stored.Data[k], want)
				}
				assert.True(t, stored.LoggedAt.Equal(t0))
			},
		},
		{
			name: "entries list most recent first, ties by insertion",
			check: func(t *testing.T, c types.Cupboard) {
				catID := category(t, c, "Order")
				other := category(t, c, "Other")
				first := entry(t, c, catID, t0, 1)
				third := entry(t, c, catID, t0.Add(2*time.Hour), 3)
				tieA := entry(t, c, catID, t0.Add(time.Hour), 2)
				tieB := entry(t, c, catID, t0.Add(time.Hour), 2)
				entry(t, c, other, t0.Add(5*time.Hour), 9)

				got, err := table(t, c, types.TableEntries).Fetch(types.Filter{"category_id": catID})
				require.NoError(t, err)
				assert.Equal(t, []string{third, tieA, tieB, first}, ids(got))

				// Replacing an entry keeps its place among ties.
				_, err = table(t, c, types.TableEntries).Set(tieA, &types.Entry{CategoryID: catID, LoggedAt: t0.Add(time.Hour)})
				require.NoError(t, err)
				got, err = table(t, c, types.TableEntries).Fetch(types.Filter{"category_id": catID, "limit": 2, "offset": 1})
				require.NoError(t, err)
				assert.Equal(t, []string{tieA, tieB}, ids(got))
			},
		},
		{
			name: "paging past the end and with huge limits",
			check: func(t *testing.T, c types.Cupboard) {
				catID := category(t, c, "Paged")
				newest := entry(t, c, catID, t0.Add(2*time.Hour), 3)
				middle := entry(t, c, catID, t0.Add(time.Hour), 2)
				oldest := entry(t, c, catID, t0, 1)
				entries := table(t, c, types.TableEntries)

				got, err := entries.Fetch(types.Filter{"category_id": catID, "limit": math.MaxInt, "offset": 1})
				require.NoError(t, err)
				assert.Equal(t, []string{middle, oldest}, ids(got))

				got, err = entries.Fetch(types.Filter{"category_id": catID, "limit": math.MaxInt})
				require.NoError(t, err)
				assert.Equal(t, []string{newest, middle, oldest}, ids(got))

				got, err = entries.Fetch(types.Filter{"category_id": catID, "offset": 5})
				require.NoError(t, err)
				assert.Empty(t, got)

				cats, err := table(t, c, types.TableCategories).Fetch(types.Filter{"limit": math.MaxInt, "offset": 1})
				require.NoError(t, err)
				assert.Empty(t, cats)
			},
		},
		{
			name: "category delete cascades",
			check: func(t *testing.T, c types.Cupboard) {
				catID := category(t, c, "Doomed")
				keep := category(t, c, "Keep")
				for i := range 4 {
					entry(t, c, catID, t0.Add(time.Duration(i)*time.Minute), float64(i))
				}
				kept := entry(t, c, keep, t0, 0)

				require.NoError(t, table(t, c, types.TableCategories).Delete(catID))
				got, err := table(t, c, types.TableEntries).Fetch(types.Filter{"category_id": catID})
				require.NoError(t, err)
				assert.Empty(t, got)
				got, err = table(t, c, types.TableEntries).Fetch(nil)
				require.NoError(t, err)
				assert.Equal(t, []string{kept}, ids(got))
			},
		},
		{
			name: "bad filters",
			check: func(t *testing.T, c types.Cupboard) {
				_, err := table(t, c, types.TableEntries).Fetch(types.Filter{"category_id": 1})
				assert.ErrorIs(t, err, types.ErrInvalidFilter)
				_, err = table(t, c, types.TableCategories).Fetch(types.Filter{"offset": "2"})
				assert.ErrorIs(t, err, types.ErrInvalidFilter)
				_, err = table(t, c, types.TableCategories).Fetch(types.Filter{"owner": "me"})
				assert.ErrorIs(t, err, types.ErrInvalidFilter)
			},
		},
		{
			name: "concurrent writers",
			check: func(t *testing.T, c types.Cupboard) {
				catID := category(t, c, "Busy")
				entries := table(t, c, types.TableEntries)
				var wg sync.WaitGroup
				errs := make(chan error, 8)
				for i := range 8 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := entries.Set("", &types.Entry{
							CategoryID: catID,
							LoggedAt:   t0,
							Data:       map[string]types.Value{"n": types.Text(fmt.Sprint(i))},
						})
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					assert.NoError(t, err)
				}
				got, err := entries.Fetch(types.Filter{"category_id": catID})
				require.NoError(t, err)
				assert.Len(t, got, 8)
			},
		},
		{
			name: "detach",
			check: func(t *testing.T, c types.Cupboard) {
				tbl := table(t, c, types.TableCategories)
				require.NoError(t, c.Detach())
				require.NoError(t, c.Detach())
				_, err := c.GetTable(types.TableCategories)
				assert.ErrorIs(t, err, types.ErrCupboardDetached)
				_, err = tbl.Fetch(nil)
				assert.ErrorIs(t, err, types.ErrCupboardDetached)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, open(t))
		})
	}
}
