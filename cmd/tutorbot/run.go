package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/tutorbot/app"
	"github.com/m3rciful/tutorbot/app/config"
	corecmd "github.com/m3rciful/tutorbot/core/cmd"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(*configPath)
		},
	}
}

func runBot(configPath string) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			a, err := app.Bootstrap(cfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	})
}
