// Package telegram runs a telebot bot on top of the core config, logging
// and outbound dispatcher.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/tutorbot/core/config"
	"github.com/m3rciful/tutorbot/core/logger"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/tutorbot/core/telegram/sender"
)

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint (a command string or one of
// the tele.On* constants).
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions describes the bot RunTelegram builds.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	Middlewares []Middleware
	Routes      []Route

	// Synchronous makes telebot run handlers on the polling goroutine.
	Synchronous bool

	// OnStart runs after routes are installed and before polling starts.
	// An error aborts the run.
	OnStart func(ctx context.Context, rt Runtime) error
	// OnStop runs after polling stopped and before the dispatcher drains.
	OnStop func(ctx context.Context, rt Runtime) error
}

// Runtime exposes the running pieces to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot and serves updates until ctx is done.
// Cancellation is a clean shutdown and returns nil.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	started := time.Now()
	pollerOpts := PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	}
	poller := BuildPoller(pollerOpts)
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(HTTPClientOptions{
			Timeout:      pollerOpts.Timeout() + 20*time.Second,
			Retries:      cfg.Sender.MaxRetries,
			RetryBackoff: cfg.Sender.RetryBackoff(),
		}),
		Synchronous: opts.Synchronous,
		OnError:     logBotError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logMode(ctx, bot, poller, time.Since(started))

	rt := Runtime{
		Bot:      bot,
		Registry: opts.Registry,
		Dispatcher: tgsender.NewDispatcher(tgsender.Options{
			Workers:      cfg.Sender.Workers,
			QueueSize:    cfg.Sender.QueueSize,
			MaxRetries:   cfg.Sender.MaxRetries,
			RetryBackoff: cfg.Sender.RetryBackoff(),
		}),
	}
	tghelpers.SetDispatcher(rt.Dispatcher)
	defer func() {
		rt.Dispatcher.Close()
		tghelpers.SetDispatcher(nil)
	}()

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	InitBotCommands(bot, opts.Registry)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, bot)

	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// serve blocks in bot.Start until ctx is done or the poller gives up.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func logBotError(err error, c tele.Context) {
	ctx := logger.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelError, "bot.error",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

// logMode reports how updates arrive. Long polling first drops any webhook
// left behind by an earlier webhook run, since Telegram refuses getUpdates
// while one is set.
func logMode(ctx context.Context, bot *tele.Bot, poller tele.Poller, took time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	case *tele.LongPoller:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		status := "ok"
		var attrs []slog.Attr
		if err := bot.RemoveWebhook(); err != nil {
			status = "fail"
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "webhook.removed",
			append(attrs, slog.String("status", status))...)
	}
}
