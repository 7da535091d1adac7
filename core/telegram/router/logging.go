package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
)

// summary collects what one handler invocation did and logs it as a single
// handler.handled event.
type summary struct {
	handler string
	start   time.Time
	status  string
	outcome string
	extras  []slog.Attr
}

func newSummary(handler string, extras ...slog.Attr) *summary {
	return &summary{handler: handler, start: time.Now(), extras: extras}
}

// run calls fn with the handler name set in the update context and logs
// the result.
func (s *summary) run(c tele.Context, fn func() error) error {
	tghelpers.WithHandler(c, s.handler)
	err := fn()
	s.log(c, err)
	return err
}

func (s *summary) skip(c tele.Context) {
	s.status, s.outcome = "skip", "ok"
	s.log(c, nil)
}

func (s *summary) log(c tele.Context, err error) {
	ctx := tghelpers.WithHandler(c, s.handler)
	result := "ok"
	if err != nil {
		result = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", orDefault(s.status, result)),
		slog.String("outcome", orDefault(s.outcome, result)),
		slog.Duration("duration", logger.RoundMS(time.Since(s.start))),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", append(attrs, s.extras...)...)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// handlerName turns a command or button key into a log friendly name.
func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// errorCode prefers an explicit Code() from anywhere in the chain and falls
// back to the Go type name of err.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
