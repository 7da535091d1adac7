// Package helpers ties tele.Context to the logging context and the
// outbound dispatcher.
package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d. nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// send queues run on the dispatcher when one is set. A full or closed queue
// falls back to calling run inline so the reply is not lost.
func send(c tele.Context, action, endpoint string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	err := d.Enqueue(ctx, chatID, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("op", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// SendText sends plain text to the chat of c.
func SendText(c tele.Context, text string, opts ...interface{}) error {
	return send(c, "send.text", "sendMessage", func() error {
		return c.Send(text, opts...)
	})
}
