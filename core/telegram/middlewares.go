package telegram

import (
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/tutorbot/core/config"
	"github.com/m3rciful/tutorbot/core/telegram/middleware"
)

// DefaultMiddlewares returns the shared middleware chain, outermost first.
// The rate limiter is added only when an interval is configured; onLimited
// may be nil.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}

	if cfg != nil && cfg.RateLimit.Interval() > 0 {
		chain = append(chain, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  cfg.RateLimit.Interval(),
				Exclude:   cfg.RateLimit.Excluded(),
				OnLimited: onLimited,
			}),
		})
	}

	return append(chain, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
}
