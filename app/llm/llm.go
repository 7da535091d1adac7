// Package llm talks to the text generation backends used by the tutoring assistant.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/tutorbot/core/logger"
)

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrDisabled is returned by the "none" provider.
var ErrDisabled = errors.New("llm: provider disabled")

// ErrEmpty is returned when the backend answered with no text.
var ErrEmpty = errors.New("llm: empty response")

const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderNone   = "none"

	DefaultSystem      = "You are a helpful math teacher."
	DefaultOllamaModel = "phi"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultEndpoint    = "http://localhost:11434"
)

// Config selects and tunes the backend.
type Config struct {
	Provider       string `yaml:"provider" envconfig:"LLM_PROVIDER"`
	Endpoint       string `yaml:"endpoint" envconfig:"LLM_ENDPOINT"`
	Model          string `yaml:"model" envconfig:"LLM_MODEL"`
	APIKey         string `yaml:"api_key" envconfig:"LLM_API_KEY"`
	System         string `yaml:"system"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"LLM_TIMEOUT_SECONDS"`
}

// Normalize fills defaults and validates the provider.
func (c *Config) Normalize() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.System == "" {
		c.System = DefaultSystem
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 120
	}
	switch c.Provider {
	case ProviderOllama:
		if c.Endpoint == "" {
			c.Endpoint = DefaultEndpoint
		}
		if c.Model == "" {
			c.Model = DefaultOllamaModel
		}
	case ProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %q", c.Provider)
		}
		if c.Model == "" {
			c.Model = DefaultGeminiModel
		}
	case ProviderNone:
	default:
		return fmt.Errorf("invalid llm.provider %q; allowed: ollama, gemini, none", c.Provider)
	}
	return nil
}

// Timeout returns the per-call deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// New builds the configured backend wrapped with timeout and logging.
func New(ctx context.Context, cfg Config) (Completer, error) {
	var (
		base Completer
		err  error
	)
	switch cfg.Provider {
	case ProviderOllama:
		base = NewOllama(cfg.Endpoint, cfg.Model, cfg.System)
	case ProviderGemini:
		base, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.System)
	default:
		base = CompleterFunc(func(context.Context, string) (string, error) { return "", ErrDisabled })
	}
	if err != nil {
		return nil, err
	}
	return Logged(base, cfg.Provider, cfg.Model, cfg.Timeout()), nil
}

// Logged applies timeout to every call and logs its outcome under the llm component.
func Logged(next Completer, provider, model string, timeout time.Duration) Completer {
	return CompleterFunc(func(ctx context.Context, prompt string) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		out, err := next.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(out) == "" {
			err = ErrEmpty
		}
		attrs := []slog.Attr{
			slog.String("provider", provider),
			slog.String("model", model),
			slog.Int("len", len(prompt)),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		}
		if err != nil {
			attrs = append(attrs, slog.String("status", "fail"), slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
			logger.Warn(ctx, "llm", "complete.failed", attrs...)
			return "", err
		}
		attrs = append(attrs, slog.String("status", "ok"))
		logger.Info(ctx, "llm", "complete.done", attrs...)
		return strings.TrimSpace(out), nil
	})
}
