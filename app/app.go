// Package app wires the tutoring dialog into the core Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/tutorbot/app/config"
	"github.com/m3rciful/tutorbot/app/content"
	"github.com/m3rciful/tutorbot/app/dispatch"
	"github.com/m3rciful/tutorbot/app/llm"
	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/app/roles"
	"github.com/m3rciful/tutorbot/app/transport"
	"github.com/m3rciful/tutorbot/core/bootstrap"
	coredatabase "github.com/m3rciful/tutorbot/core/database"
	"github.com/m3rciful/tutorbot/core/keyed"
	"github.com/m3rciful/tutorbot/core/logger"
	coretelegram "github.com/m3rciful/tutorbot/core/telegram"
	"github.com/m3rciful/tutorbot/core/telegram/sender"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// App owns the long-lived pieces of a running bot.
type App struct {
	cfg      *config.Config
	db       *bootstrap.Result
	profiles profile.Store
	content  *content.Store
	sessions *state.Registry
	pool     *keyed.Pool
	router   *dispatch.Router
	out      *transport.Telegram

	// dispatcher is set once in OnStart before the bot starts polling.
	dispatcher *sender.Dispatcher

	cron      *cron.Cron
	stopWatch context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
}

// Bootstrap runs the shared bootstrap pipeline and assembles the bot.
func Bootstrap(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}

	var profiles profile.Store
	if res.Driver == coredatabase.DriverMemory {
		profiles = profile.NewMemoryStore()
	} else {
		profiles = profile.NewSQLStore(res.DB)
	}

	completer, err := llm.New(context.Background(), cfg.LLM)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("app: llm init failed: %w", err)
	}

	a, err := New(cfg, profiles, completer)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	a.db = res
	return a, nil
}

// New assembles the bot around already opened storage and text generation.
func New(cfg *config.Config, profiles profile.Store, completer llm.Completer) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	if profiles == nil {
		return nil, fmt.Errorf("app: profile store is required")
	}

	catalog, err := content.NewStore(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("app: content init failed: %w", err)
	}

	a := &App{
		cfg:      cfg,
		profiles: profiles,
		content:  catalog,
		sessions: state.NewRegistry(state.Options{CancelKeyword: cfg.Dialog.CancelKeyword}),
		out:      transport.New(),
	}
	a.pool = keyed.New(keyed.Options{
		Workers:   cfg.Sessions.Workers,
		QueueSize: cfg.Sessions.QueueSize,
		OnPanic: func(key uint64, recovered any, stack []byte) {
			logger.Error(context.Background(), "dialog", "worker.panic",
				slog.Uint64("key", key),
				slog.String("panic", fmt.Sprint(recovered)),
				slog.String("stack", string(stack)),
			)
		},
	})

	deps := roles.Deps{
		Profiles:       profiles,
		LLM:            completer,
		Notify:         a.out,
		PasswordLength: cfg.Dialog.PasswordLength,
	}
	a.router, err = dispatch.New(dispatch.Options{
		Sessions: a.sessions,
		Resolver: dispatch.RoleResolver{Profiles: profiles},
		Build: func(role profile.Role, id state.Identity) state.CommandSet {
			return roles.New(role, id, deps)
		},
		Content: catalog,
		Sender:  a.out,
	})
	if err != nil {
		_ = a.pool.Close()
		return nil, err
	}

	logger.Info(context.Background(), "app", "assembled",
		slog.Int("workers", a.pool.Workers()),
		slog.Int("topics", catalog.Catalog().Len()),
		slog.String("llm", cfg.LLM.Provider),
	)
	return a, nil
}

// Enqueue queues one text message for ordered processing in its chat.
func (a *App) Enqueue(ctx context.Context, chatID int64, text string) error {
	return a.submit(ctx, chatID, func(ctx context.Context) error {
		return a.router.Route(ctx, state.Identity(chatID), text)
	})
}

// Press queues an inline button action behind the chat's pending messages.
func (a *App) Press(ctx context.Context, chatID int64, key, payload string) error {
	return a.submit(ctx, chatID, func(ctx context.Context) error {
		return a.router.Action(ctx, state.Identity(chatID), key, payload)
	})
}

func (a *App) submit(ctx context.Context, chatID int64, run func(context.Context) error) error {
	err := a.pool.Submit(ctx, keyed.Key(chatID), func(ctx context.Context) {
		if err := run(ctx); err != nil {
			logger.Warn(ctx, "dialog", "reply.undelivered",
				slog.Int64("chat_id", chatID),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	})
	if errors.Is(err, keyed.ErrClosed) {
		return fmt.Errorf("app: inbound queue closed: %w", err)
	}
	return err
}

// Sweep drops sessions idle for longer than the configured TTL.
func (a *App) Sweep(ctx context.Context) int {
	n := a.sessions.Evict(a.cfg.Sessions.IdleTTL())
	logger.Debug(ctx, "dialog", "sessions.swept",
		slog.Int("evicted", n),
		slog.Int("active", a.sessions.Len()),
	)
	return n
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	a.dispatcher = rt.Dispatcher
	a.out.Bind(rt.Bot, rt.Dispatcher)

	if a.cfg.Content.Watch && a.cfg.Content.Path != "" {
		watchCtx, cancel := context.WithCancel(logger.Background())
		a.stopWatch = cancel
		a.watchDone = make(chan struct{})
		go func() {
			defer close(a.watchDone)
			if err := a.content.Watch(watchCtx); err != nil {
				logger.Warn(watchCtx, "content", "watch.stopped", slog.String("err", err.Error()))
			}
		}()
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(a.cfg.Sessions.SweepSchedule, func() { a.Sweep(logger.Background()) }); err != nil {
		return fmt.Errorf("app: session sweep schedule: %w", err)
	}
	a.cron.Start()

	logger.Info(ctx, "app", "started",
		slog.Bool("content_watch", a.stopWatch != nil),
		slog.String("sweep", a.cfg.Sessions.SweepSchedule),
	)
	return nil
}

// Close stops background jobs, drains the inbound queue and releases storage.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cron != nil {
			<-a.cron.Stop().Done()
		}
		if a.stopWatch != nil {
			a.stopWatch()
			<-a.watchDone
		}
		err = errors.Join(a.pool.Close(), a.db.Close())
	})
	return err
}

// TelegramRunOptions describes commands, callbacks and lifecycle hooks for the runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg, err := a.registry()
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	core := a.cfg.CoreConfig()

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Synchronous: true,
		Middlewares: coretelegram.DefaultMiddlewares(core, a.limited),
		Routes:      a.routes(reg),
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.start(ctx, rt)
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}
