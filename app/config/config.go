// Package config assembles the tutor bot configuration on top of the core one.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/tutorbot/app/content"
	"github.com/m3rciful/tutorbot/app/llm"
	coreconfig "github.com/m3rciful/tutorbot/core/config"
	coredatabase "github.com/m3rciful/tutorbot/core/database"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// DialogConfig tunes conversation rules.
type DialogConfig struct {
	PasswordLength int    `yaml:"password_length" envconfig:"PASSWORD_LENGTH"`
	CancelKeyword  string `yaml:"cancel_keyword" envconfig:"CANCEL_KEYWORD"`
}

// SessionsConfig sizes the inbound worker pool and the idle session sweep.
type SessionsConfig struct {
	Workers        int    `yaml:"workers" envconfig:"SESSION_WORKERS"`
	QueueSize      int    `yaml:"queue_size" envconfig:"SESSION_QUEUE_SIZE"`
	IdleTTLMinutes int    `yaml:"idle_ttl_minutes" envconfig:"SESSION_IDLE_TTL_MINUTES"`
	SweepSchedule  string `yaml:"sweep_schedule" envconfig:"SESSION_SWEEP_SCHEDULE"`
}

// IdleTTL returns how long an untouched session is kept.
func (s SessionsConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	LLM      llm.Config          `yaml:"llm"`
	Content  content.Config      `yaml:"content"`
	Dialog   DialogConfig        `yaml:"dialog"`
	Sessions SessionsConfig      `yaml:"sessions"`
}

// CoreConfig exposes the embedded core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads YAML at path, applies environment overrides and normalizes.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if err := c.LLM.Normalize(); err != nil {
		return err
	}

	if c.Dialog.PasswordLength == 0 {
		c.Dialog.PasswordLength = 4
	}
	if c.Dialog.PasswordLength < 4 || c.Dialog.PasswordLength > 12 {
		return fmt.Errorf("dialog.password_length must be between 4 and 12")
	}
	c.Dialog.CancelKeyword = state.Fold(c.Dialog.CancelKeyword)
	if c.Dialog.CancelKeyword == "" {
		c.Dialog.CancelKeyword = state.DefaultCancelKeyword
	}

	if c.Sessions.Workers <= 0 {
		c.Sessions.Workers = 8
	}
	if c.Sessions.QueueSize <= 0 {
		c.Sessions.QueueSize = 64
	}
	if c.Sessions.IdleTTLMinutes <= 0 {
		c.Sessions.IdleTTLMinutes = 120
	}
	c.Sessions.SweepSchedule = strings.TrimSpace(c.Sessions.SweepSchedule)
	if c.Sessions.SweepSchedule == "" {
		c.Sessions.SweepSchedule = "@every 10m"
	}
	if _, err := cron.ParseStandard(c.Sessions.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sessions.sweep_schedule %q: %w", c.Sessions.SweepSchedule, err)
	}
	return nil
}
