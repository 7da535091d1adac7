// Package cmd is the process entry shared by bots: it loads configuration,
// bootstraps the app and runs Telegram until SIGINT or SIGTERM.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/tutorbot/core/config"
	"github.com/m3rciful/tutorbot/core/logger"
	coretelegram "github.com/m3rciful/tutorbot/core/telegram"
)

// DefaultConfigEnvVar names the variable consulted when no explicit path is given.
const DefaultConfigEnvVar = "CONFIG_PATH"

// ConfigCarrier is any bot config that embeds the core one.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is a bootstrapped bot ready to describe its runtime.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires Run to a concrete bot.
type Options struct {
	// ConfigPath wins over ConfigEnvVar, which wins over DefaultConfigPath.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string
	DotEnvFiles       []string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	// Test hooks. nil selects logger.Shutdown and coretelegram.RunTelegram.
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath returns explicit, else the value of envVar, else fallback.
func ResolveConfigPath(explicit, envVar, fallback string) (string, error) {
	if envVar == "" {
		envVar = DefaultConfigEnvVar
	}
	for _, p := range []string{explicit, os.Getenv(envVar), fallback} {
		if p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("cmd: config path not provided via flag, %s or default", envVar)
}

// Run loads configuration, bootstraps the app and blocks until the bot stops.
func Run(opts Options) error {
	switch {
	case opts.LoadConfig == nil:
		return errors.New("cmd: LoadConfig is required")
	case opts.Bootstrap == nil:
		return errors.New("cmd: Bootstrap is required")
	}
	if err := coreconfig.LoadDotEnv(opts.DotEnvFiles...); err != nil {
		return fmt.Errorf("cmd: %w", err)
	}
	path, err := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	started := time.Now()
	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer shutdownLogger(opts.ShutdownLogger)

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		if c, ok := app.(io.Closer); ok {
			_ = c.Close()
		}
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	withLifecycleLogs(&runOpts, started)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// withLifecycleLogs logs app readiness after the app's own OnStart and the
// shutdown before its OnStop.
func withLifecycleLogs(opts *coretelegram.RunOptions, started time.Time) {
	appLog := logger.Component("app")
	onStart, onStop := opts.OnStart, opts.OnStop

	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.LogEvent(ctx, appLog, slog.LevelInfo, "ready",
			slog.Duration("startup", logger.RoundMS(time.Since(started))),
		)
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.LogEvent(ctx, appLog, slog.LevelInfo, "shutdown",
			slog.Duration("uptime", logger.RoundMS(time.Since(started))),
		)
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}

func shutdownLogger(fn func() error) {
	if fn == nil {
		fn = logger.Shutdown
	}
	if err := fn(); err != nil {
		log.Printf("logger shutdown error: %v", err)
	}
}
