package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Leganyst/cleaning-platform/internal/config"
	"github.com/Leganyst/cleaning-platform/internal/db"
	"github.com/Leganyst/cleaning-platform/internal/model"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			gormDB, err := db.NewGormDB(cfg.DB)
			if err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			defer db.Close(gormDB)

			if err := model.AutoMigrate(gormDB); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", cfg.DB.Driver)
			return nil
		},
	}
}
