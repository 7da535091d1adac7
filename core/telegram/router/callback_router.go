package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/tutorbot/core/telegram"
	"github.com/m3rciful/tutorbot/core/telegram/callbacks"
	"github.com/m3rciful/tutorbot/core/telegram/middleware"
)

// CallbackOptions configures callbacks with no registered handler.
type CallbackOptions struct {
	// NotFound is used when the registry has no fallback of its own.
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every button press and dispatches it by key
// through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.Parse(c.Callback())
		s := newSummary("callback."+handlerName(key), slog.String("cb_key", key))

		// Stops the client spinner whatever the handler does.
		_ = c.Respond()

		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			s.extras = append(s.extras, slog.String("reason", "not_found"))
			h = reg.CallbackNotFound()
			if h == nil {
				h = opts.NotFound
			}
		}
		if h == nil {
			s.skip(c)
			return nil
		}
		return s.run(c, func() error { return h(c) })
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
