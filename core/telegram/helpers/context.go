package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
)

// ctxSlot is the tele.Context key holding the per-update context.Context.
const ctxSlot = "tutorbot.ctx"

// MetaOf extracts the correlation data of the update behind c.
func MetaOf(c tele.Context) logger.Meta {
	m := logger.Meta{UpdateID: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		m.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		m.UserID = user.ID
	}
	m.RID = logger.BuildRID(m.UpdateID, m.ChatID, m.UserID)
	return m
}

// StoreContext keeps ctx on c for the rest of the update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxSlot, ctx)
	}
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxSlot).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the per-update context, creating and storing it on
// first use. The context carries the update metadata and the tg logger.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	ctx := logger.WithMeta(logger.Background(), MetaOf(c))
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler in the stored context and returns it.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" && logger.HandlerFrom(ctx) != handler {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
