package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	tg "github.com/m3rciful/tutorbot/core/telegram"
	"github.com/m3rciful/tutorbot/core/telegram/middleware"
)

// CommandRouteOptions configures admin-only commands.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes turns every registered command into a route. Admin-only
// commands are checked before logging so rejected calls never reach the handler.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for endpoint, def := range cmds {
		name := "command." + handlerName(endpoint)
		run := def.Handler
		h := func(c tele.Context) error {
			return newSummary(name).run(c, func() error { return run(c) })
		}
		h = middleware.LoggerMiddleware(middleware.RecoverMiddleware(h))
		if def.AdminOnly {
			h = adminOnly(h)
		}
		routes = append(routes, tg.Route{Endpoint: endpoint, Handler: h})
	}

	logger.LogEvent(logger.Background(), logger.TWire, slog.LevelInfo, "routes.commands",
		slog.Int("count", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
