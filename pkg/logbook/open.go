package logbook

import (
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/logbook/internal/memory"
	"github.com/mesh-intelligence/logbook/internal/postgres"
	"github.com/mesh-intelligence/logbook/internal/sqlite"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// NewCupboard returns a detached Cupboard for config.Backend.
func NewCupboard(config types.Config, logger *slog.Logger) (types.Cupboard, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Backend {
	case types.BackendSQLite:
		return sqlite.NewBackend(sqlite.WithLogger(logger)), nil
	case types.BackendMemory:
		return memory.NewBackend(), nil
	case types.BackendPostgres:
		return postgres.NewBackend(logger), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, config.Backend)
}

// Open builds the Cupboard for config, attaches it, and wraps it in a
// Service. Call Close when done.
func Open(config types.Config, opts ...Option) (*Service, error) {
	s := NewService(nil, opts...)
	cupboard, err := NewCupboard(config, s.logger)
	if err != nil {
		return nil, err
	}
	if err := cupboard.Attach(config); err != nil {
		return nil, fmt.Errorf("attaching %s backend: %w", config.Backend, err)
	}
	s.cupboard = cupboard
	return s, nil
}

// Close detaches the underlying Cupboard.
func (s *Service) Close() error {
	return s.cupboard.Detach()
}
