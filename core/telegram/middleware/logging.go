package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
)

// LoggerMiddleware attaches the per-update logging context and logs the
// receipt once. Wrapping a handler that already went through it is a no-op,
// so it can sit both in the global chain and on individual routes.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, seen := tghelpers.ContextFrom(c); seen {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.Parse(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil && upd.Message.Text != "":
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(upd.Message.Text, 256)))
	}
	return attrs
}
