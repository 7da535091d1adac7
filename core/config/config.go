// Package config holds the settings shared by every bot built on the core:
// Telegram access, webhook, logging and rate limiting.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Run modes for receiving updates.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds that rate_limit.exclude_updates may name.
const (
	UpdateCallback = "callback"
	UpdateMessage  = "message"
)

// TelegramConfig holds the bot token and how updates are received.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// 0 selects the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is used when RunMode is webhook.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile is "debug", "dev" or "prod"; debug profiles default to kv output.
	Profile string `yaml:"profile"`
}

// RateLimitConfig limits how often one user may hit the bot.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Interval returns the minimum gap between two updates of one user.
func (r RateLimitConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// Excluded returns the update kinds that bypass the limit.
func (r RateLimitConfig) Excluded() map[string]struct{} {
	out := make(map[string]struct{}, len(r.ExcludeUpdates))
	for _, kind := range r.ExcludeUpdates {
		out[strings.ToLower(kind)] = struct{}{}
	}
	return out
}

// SenderConfig sizes the outbound queue and the retry policy for Bot API calls.
type SenderConfig struct {
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
}

// RetryBackoff returns the delay before the first retry.
func (s SenderConfig) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffMS) * time.Millisecond
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
}

// Load decodes and normalizes the core configuration at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills out from the YAML file at path, then applies environment
// overrides. Any struct embedding Config inline can be decoded this way.
func Decode(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("config: env overrides: %w", err)
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given). Missing files are skipped and the real environment wins.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil, errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// Normalize validates cfg and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("config: telegram token is required")
	}
	for _, step := range []func(*Config) error{normalizeRunMode, normalizeRateLimit, normalizeSender} {
		if err := step(cfg); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func normalizeRunMode(cfg *Config) error {
	mode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch mode {
	case "", "polling", RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
		mode = RunModeLongpoll
	case RunModeWebhook:
		wh := cfg.Webhook
		switch {
		case strings.TrimSpace(wh.URL) == "":
			return errors.New("webhook.url is required in webhook mode")
		case strings.TrimSpace(wh.Listen) == "":
			return errors.New("webhook.listen is required in webhook mode")
		case wh.Port <= 0:
			return errors.New("webhook.port must be > 0 in webhook mode")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = mode
	return nil
}

func normalizeRateLimit(cfg *Config) error {
	if cfg.RateLimit.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	kinds := cfg.RateLimit.ExcludeUpdates[:0]
	for _, v := range cfg.RateLimit.ExcludeUpdates {
		kind := strings.ToLower(strings.TrimSpace(v))
		switch kind {
		case "":
			continue
		case UpdateCallback, UpdateMessage:
			kinds = append(kinds, kind)
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
	}
	cfg.RateLimit.ExcludeUpdates = kinds
	return nil
}

func normalizeSender(cfg *Config) error {
	s := cfg.Sender
	if s.Workers < 0 || s.QueueSize < 0 || s.MaxRetries < 0 || s.RetryBackoffMS < 0 {
		return errors.New("sender values must be >= 0")
	}
	return nil
}
