package router

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/tutorbot/core/telegram"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
	"github.com/m3rciful/tutorbot/core/telegram/middleware"
)

// Inbound accepts text updates for ordered, per-chat processing.
type Inbound interface {
	Enqueue(ctx context.Context, chatID int64, text string) error
}

// TextOptions controls updates that are not dialog text.
type TextOptions struct {
	UnknownDocument tele.HandlerFunc
}

// TextRoutes hands plain text to inbound. Documents are not part of the
// dialog and go to UnknownDocument.
func TextRoutes(inbound Inbound, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		s := newSummary("text", slog.Int("len", len(c.Text())))
		chat := c.Chat()
		if inbound == nil || chat == nil {
			s.skip(c)
			return nil
		}
		return s.run(c, func() error {
			err := inbound.Enqueue(tghelpers.BuildContext(c), chat.ID, c.Text())
			if err == nil {
				s.outcome = "queued"
			}
			return err
		})
	}

	document := func(c tele.Context) error {
		s := newSummary("unexpected_document")
		if opts.UnknownDocument == nil {
			s.skip(c)
			return nil
		}
		return s.run(c, func() error { return opts.UnknownDocument(c) })
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}
