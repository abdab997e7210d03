// Package sqlite provides the public API for the SQLite Cupboard backend.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"log/slog"

	"github.com/mesh-intelligence/logbook/internal/sqlite"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend(nil)
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".logbook-db",
//	})
//	defer backend.Detach()
func NewBackend(logger *slog.Logger) types.Cupboard {
	return sqlite.NewBackend(sqlite.WithLogger(logger))
}
