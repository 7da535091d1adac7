package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	metaKey ctxKey = iota
	loggerKey
)

// Meta is the per-update correlation data carried in context and added to
// every record logged with that context.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
}

// attrs returns the non-zero fields as log attributes.
func (m Meta) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 5)
	if m.RID != "" {
		out = append(out, slog.String("rid", m.RID))
	}
	if m.UpdateID != 0 {
		out = append(out, slog.Int("update_id", m.UpdateID))
	}
	if m.UserID != 0 {
		out = append(out, slog.Int64("user_id", m.UserID))
	}
	if m.ChatID != 0 {
		out = append(out, slog.Int64("chat_id", m.ChatID))
	}
	if m.Handler != "" {
		out = append(out, slog.String("handler", m.Handler))
	}
	return out
}

// MetaFrom returns the correlation data stored in ctx, zero when absent.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey).(Meta)
	return m
}

func withMeta(ctx context.Context, update func(*Meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := MetaFrom(ctx)
	update(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithMeta replaces the correlation data stored in ctx.
func WithMeta(ctx context.Context, m Meta) context.Context {
	return withMeta(ctx, func(cur *Meta) { *cur = m })
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.RID = rid })
}

// WithUpdateMeta attaches the Telegram update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *Meta) {
		m.UpdateID = updateID
		m.UserID = userID
		m.ChatID = chatID
	})
}

// WithHandler names the handler processing the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *Meta) { m.Handler = handler })
}

// RIDFrom returns the correlation id stored in ctx.
func RIDFrom(ctx context.Context) string { return MetaFrom(ctx).RID }

// HandlerFrom returns the handler name stored in ctx.
func HandlerFrom(ctx context.Context) string { return MetaFrom(ctx).Handler }

// UpdateIDFrom returns the Telegram update id stored in ctx.
func UpdateIDFrom(ctx context.Context) int { return MetaFrom(ctx).UpdateID }

// UserIDFrom returns the Telegram user id stored in ctx.
func UserIDFrom(ctx context.Context) int64 { return MetaFrom(ctx).UserID }

// ChatIDFrom returns the chat id stored in ctx.
func ChatIDFrom(ctx context.Context) int64 { return MetaFrom(ctx).ChatID }

// WithLogger stores a scoped logger in ctx.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx or the global one.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}
