// Package postgres implements the logbook Cupboard on Postgres through the
// pgx database/sql driver. Categories and entries are rows; schemas and
// entry data are JSONB documents.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/mesh-intelligence/logbook/pkg/types"
)

var _ types.Cupboard = (*Backend)(nil)

const driverName = "pgx"

// connectTimeout bounds the ping and DDL run by Attach.
const connectTimeout = 10 * time.Second

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Backend implements the Cupboard interface on Postgres.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB
	tables   map[string]types.Table
	logger   *slog.Logger
}

// NewBackend creates a detached Postgres backend. A nil logger discards.
func NewBackend(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{tables: make(map[string]types.Table), logger: logger}
}

// GetTable returns the Table for name.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}
	table, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return table, nil
}

// Attach connects to config.DSN and creates the tables if needed.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendPostgres {
		return fmt.Errorf("postgres backend cannot attach %q: %w", config.Backend, types.ErrBackendUnknown)
	}

	openMu.Lock()
	db, err := sqlOpen(driverName, config.DSN)
	openMu.Unlock()
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("execute ddl: %w", err)
		}
	}

	b.db = db
	b.attached = true
	b.tables[types.TableCategories] = &categoriesTable{backend: b}
	b.tables[types.TableEntries] = &entriesTable{backend: b}
	b.logger.Debug("postgres backend attached")
	return nil
}

// Detach closes the connection pool. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.attached = false
	b.tables = make(map[string]types.Table)
	return err
}

// DB exposes the underlying pool for tests.
func (b *Backend) DB() *sql.DB { return b.db }

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS logbook_categories (
		category_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		schema JSONB NOT NULL DEFAULT '[]'::jsonb,
		retired JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS logbook_entries (
		entry_id TEXT PRIMARY KEY,
		category_id TEXT NOT NULL,
		seq BIGSERIAL,
		logged_at TIMESTAMPTZ NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS logbook_entries_category_idx
		ON logbook_entries (category_id, logged_at DESC, seq ASC)`,
}
