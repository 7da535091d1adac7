package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
)

// RecoverMiddleware turns a handler panic into an error log so one bad
// update cannot stop the bot.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "handler.panic",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 256)),
				slog.String("stack", string(debug.Stack())),
			)
			err = nil
		}()
		return next(c)
	}
}
