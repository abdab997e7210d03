// Package cli implements the logbook command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/logbook/internal/paths"
	"github.com/mesh-intelligence/logbook/pkg/logbook"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app carries global flag values and per-run state shared by subcommands.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool

	cfg    *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the top-level "logbook" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "logbook",
		Short: "Log entries against categories you design",
		Long: "Logbook keeps categories of entries. Each category has an ordered\n" +
			"schema of typed columns; entries are checked against it when written.",
		Version:           logbook.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/logbook)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $(CWD)/.logbook-db)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newCategoryCmd(a),
		newEntryCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newReconcileCmd(a),
	)
	return root
}

// Execute runs the root command with os.Args and returns the process exit
// code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitSuccess
	}
	reportError(stderr, err)
	return exitCode(err)
}

// setup resolves the config directory, reads config.yaml and installs the
// stderr logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir
	if a.cfg, err = loadConfig(configDir); err != nil {
		return err
	}

	level := slog.LevelWarn
	if name := a.cfg.GetString(cfgKeyLogLevel); name != "" {
		if err := level.UnmarshalText([]byte(name)); err != nil {
			return usageError{fmt.Errorf("config %s: %w", cfgKeyLogLevel, err)}
		}
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

// backendConfig builds the storage config from config.yaml and flags.
func (a *app) backendConfig() (types.Config, error) {
	config := types.Config{
		Backend: a.cfg.GetString(cfgKeyBackend),
		DSN:     a.cfg.GetString(cfgKeyDSN),
	}
	if config.Backend == types.BackendSQLite {
		dataDir, err := paths.ResolveDataDir(a.dataDir, a.cfg.GetString(cfgKeyDataDir))
		if err != nil {
			return config, fmt.Errorf("resolve data dir: %w", err)
		}
		config.DataDir = dataDir
	}
	if err := config.Validate(); err != nil {
		return config, usageError{fmt.Errorf("config: %w", err)}
	}
	return config, nil
}

// withService opens the configured backend, runs fn and closes it.
func (a *app) withService(fn func(*logbook.Service) error) error {
	config, err := a.backendConfig()
	if err != nil {
		return err
	}
	s, err := logbook.Open(config, logbook.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warn("closing backend", "error", err)
		}
	}()
	return fn(s)
}

// usageError marks bad invocations: wrong arguments, unknown flags,
// unparsable values.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// userErrors are the sentinels caused by input rather than the system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidName,
	types.ErrInvalidColumnType,
	types.ErrInvalidFilter,
	types.ErrSchemaConflict,
	types.ErrValidation,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrDSNEmpty,
	logbook.ErrSnapshotFormat,
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return exitUserError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

// reportError prints err to w. Validation errors already list every
// failing column.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "logbook:", err)
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the logbook version",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "logbook v%s\n", logbook.Version)
			return nil
		},
	}
}
