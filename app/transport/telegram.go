// Package transport delivers dialog replies through the Telegram bot.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/keyboard"
	"github.com/m3rciful/tutorbot/core/telegram/sender"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// ErrNotBound is returned by Send before the bot is running.
var ErrNotBound = errors.New("transport: bot is not bound")

// API is the part of tele.Bot used for delivery.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram implements state.Sender. The bot is bound once the runtime starts;
// replies go through the outbound dispatcher so that each chat keeps its order.
type Telegram struct {
	api  atomic.Pointer[apiBox]
	disp atomic.Pointer[sender.Dispatcher]
}

type apiBox struct{ API }

// New returns an unbound transport.
func New() *Telegram { return &Telegram{} }

// Bind attaches the live bot and dispatcher. A nil dispatcher sends inline.
func (t *Telegram) Bind(api API, d *sender.Dispatcher) {
	if api != nil {
		t.api.Store(&apiBox{api})
	}
	t.disp.Store(d)
}

// Send implements state.Sender.
func (t *Telegram) Send(ctx context.Context, to state.Identity, r state.Reply) error {
	box := t.api.Load()
	if box == nil {
		return ErrNotBound
	}
	chat := &tele.Chat{ID: int64(to)}
	markup := Markup(r)

	if r.Text != "" {
		// A document following the text carries the keyboard instead.
		textMarkup := markup
		if r.Document != "" {
			textMarkup = nil
		}
		err := t.enqueue(ctx, chat.ID, "send.text", "sendMessage", func() error {
			_, err := box.Send(chat, r.Text, options(textMarkup)...)
			return err
		})
		if err != nil {
			return err
		}
	}
	if r.Document != "" {
		doc := &tele.Document{File: tele.FromDisk(r.Document), FileName: filepath.Base(r.Document)}
		return t.enqueue(ctx, chat.ID, "send.document", "sendDocument", func() error {
			_, err := box.Send(chat, doc, options(markup)...)
			return err
		})
	}
	return nil
}

func (t *Telegram) enqueue(ctx context.Context, chatID int64, action, endpoint string, run func() error) error {
	d := t.disp.Load()
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, chatID, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

func options(m *tele.ReplyMarkup) []interface{} {
	if m == nil {
		return nil
	}
	return []interface{}{m}
}

// Markup converts the reply's keyboard request. Inline buttons win over a reply
// menu; HideMenu removes the keyboard; otherwise the current keyboard stays.
func Markup(r state.Reply) *tele.ReplyMarkup {
	switch {
	case len(r.Inline) > 0:
		rows := make([][]keyboard.Button, len(r.Inline))
		for i, row := range r.Inline {
			rows[i] = make([]keyboard.Button, len(row))
			for j, b := range row {
				rows[i][j] = keyboard.Button(b)
			}
		}
		return keyboard.Inline(rows...)
	case len(r.Menu) > 0:
		return keyboard.Reply(r.Menu...)
	case r.HideMenu:
		return keyboard.Remove()
	}
	return nil
}
