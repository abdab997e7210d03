package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/logbook/pkg/logbook"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize logbook storage",
		Long:  "Write config.yaml if missing, then create the data directory and its files.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := a.backendConfig()
			if err != nil {
				return err
			}
			// Only an explicit --data-dir is pinned in the file.
			dataDir := ""
			if a.dataDir != "" {
				dataDir = config.DataDir
			}
			wrote, err := writeConfigIfMissing(a.configDir, configFile{
				Backend: config.Backend,
				DataDir: dataDir,
				DSN:     config.DSN,
			})
			if err != nil {
				return err
			}
			if wrote {
				a.logger.Info("wrote config", "dir", a.configDir)
			}

			if err := a.withService(func(*logbook.Service) error { return nil }); err != nil {
				return fmt.Errorf("initialize storage: %w", err)
			}
			out := cmd.OutOrStdout()
			if config.DataDir != "" {
				fmt.Fprintf(out, "Logbook initialized in %s\n", config.DataDir)
			} else {
				fmt.Fprintf(out, "Logbook initialized (%s backend)\n", config.Backend)
			}
			return nil
		},
	}
}
