package cli

import (
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/veritexai/internal/database"
)

// MigrateCmd creates the migrate command.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies all pending schema migrations to the configured Postgres database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err := database.Migrate(cfg.DatabaseURL()); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}

	return cmd
}
