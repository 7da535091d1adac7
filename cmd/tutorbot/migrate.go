package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/tutorbot/app/config"
	corecmd "github.com/m3rciful/tutorbot/core/cmd"
	coreconfig "github.com/m3rciful/tutorbot/core/config"
	coredatabase "github.com/m3rciful/tutorbot/core/database"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long:  "Applies migrations/<driver> to the configured database. The bot token is not required.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, *configPath)
		},
	}
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	if err := coreconfig.LoadDotEnv(); err != nil {
		return err
	}
	path, err := corecmd.ResolveConfigPath(configPath, configEnvVar, defaultConfigPath)
	if err != nil {
		return err
	}
	var cfg config.Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Database.Normalize(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.Database.Driver == coredatabase.DriverMemory {
		fmt.Fprintln(out, "memory driver selected, nothing to migrate")
		return nil
	}
	if err := coredatabase.RunMigrations(cfg.Database); err != nil {
		return err
	}
	fmt.Fprintf(out, "migrations applied (%s)\n", cfg.Database.Driver)
	return nil
}
