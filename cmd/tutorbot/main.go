// Command tutorbot runs the math tutoring Telegram bot and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/tutorbot/core/buildinfo"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "configs/config.yaml"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tutorbot",
		Short:         "Telegram math tutor for students and teachers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	cmd.AddCommand(newRunCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	cmd.AddCommand(newContentCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := buildinfo.Get()
			if info.Date == "" {
				info.Date = "unknown"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tutorbot %s (commit: %s, built: %s)\n", info.Version, info.Commit, info.Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
