package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/tutorbot/core/logger"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	Now       func() time.Time
}

// Limiter remembers the last accepted update per user.
type Limiter struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

// NewLimiter builds a Limiter; a non-positive interval allows everything.
func NewLimiter(interval time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{interval: interval, now: now, lastSeen: make(map[int64]time.Time)}
}

// Allow records an update for userID and reports whether it passes the interval.
func (l *Limiter) Allow(userID int64) bool {
	if l.interval <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[userID]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.lastSeen[userID] = now
	if len(l.lastSeen) > 4096 {
		for id, ts := range l.lastSeen {
			if now.Sub(ts) >= l.interval {
				delete(l.lastSeen, id)
			}
		}
	}
	return true
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between messages from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiter := NewLimiter(opts.Interval, opts.Now)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}
			if limiter.Allow(user.ID) {
				return next(c)
			}

			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", updateKind(c.Update())),
				slog.Duration("interval", opts.Interval),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
