// Package middleware holds the telebot middlewares shared by every route:
// panic recovery, update logging, rate limiting and admin checks.
package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions names the admin and what non-admins get instead.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the sender is the admin. Without an AdminID
// nobody is.
func (o AdminOptions) IsAdmin(c tele.Context) bool {
	user := c.Sender()
	return o.AdminID != 0 && user != nil && user.ID == o.AdminID
}

// AdminOnlyMiddleware lets only the admin through and hands everyone else
// to OnReject.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.IsAdmin(c) {
				return next(c)
			}
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
