package postgres

import (
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/logbook/internal/storetest"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// dsnEnv names a disposable database for the conformance run. Its
// logbook tables are truncated before every case.
const dsnEnv = "LOGBOOK_TEST_POSTGRES_DSN"

func TestConformance(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	storetest.Run(t, func(t *testing.T) types.Cupboard {
		b := NewBackend(nil)
		require.NoError(t, b.Attach(types.Config{Backend: types.BackendPostgres, DSN: dsn}))
		_, err := b.DB().Exec(`TRUNCATE logbook_entries, logbook_categories`)
		require.NoError(t, err)
		t.Cleanup(func() { b.Detach() })
		return b
	})
}

func TestAttachValidatesConfig(t *testing.T) {
	b := NewBackend(nil)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendPostgres}), types.ErrDSNEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendSQLite}), types.ErrBackendUnknown)
	_, err := b.GetTable(types.TableEntries)
	assert.ErrorIs(t, err, types.ErrCupboardDetached)
}

func TestAttachReportsOpenFailure(t *testing.T) {
	boom := errors.New("boom")
	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, boom }
	t.Cleanup(func() { sqlOpen = orig })

	err := NewBackend(nil).Attach(types.Config{Backend: types.BackendPostgres, DSN: "postgres://x"})
	assert.ErrorIs(t, err, boom)
}

func TestQueryRender(t *testing.T) {
	var q query
	q.where("category_id", "c1")
	q.where("title", "t")
	got := q.render("SELECT * FROM x", " ORDER BY y", types.Page{Limit: 5, Offset: 10})
	assert.Equal(t, "SELECT * FROM x WHERE category_id = $1 AND title = $2 ORDER BY y LIMIT 5 OFFSET 10", got)
	assert.Equal(t, []any{"c1", "t"}, q.args)
}

func TestStringFilters(t *testing.T) {
	got, err := stringFilters(types.Filter{"category_id": "c", "limit": 3}, "category_id")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"category_id": "c"}, got)

	_, err = stringFilters(types.Filter{"category_id": 3}, "category_id")
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
	_, err = stringFilters(types.Filter{"title": "x"}, "category_id")
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
}
