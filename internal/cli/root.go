// Package cli содержит команды бинаря (serve, migrate, estimate).
package cli

import (
	"github.com/spf13/cobra"

	"github.com/Leganyst/cleaning-platform/internal/config"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cleaning-core",
		Short:         "Cleaning marketplace booking core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to config file (default: ./config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newEstimateCmd())
	return cmd
}
