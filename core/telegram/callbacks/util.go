// Package callbacks decodes inline button callback data.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Parse returns the button key and payload of cb. Telebot fills Unique
// only when the button has its own handler; otherwise Data still carries
// the raw "\f<key>|<payload>" form.
func Parse(cb *tele.Callback) (key, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return ParseCallbackData(cb.Data)
}

// ParseCallbackData splits raw "\f<key>|<payload>" data.
func ParseCallbackData(data string) (key, payload string) {
	key, payload, _ = strings.Cut(strings.TrimPrefix(data, "\f"), "|")
	return strings.TrimSpace(key), payload
}

// CallbackKey returns the key of the pressed button, empty for non-callback updates.
func CallbackKey(c tele.Context) string {
	key, _ := Parse(c.Callback())
	return key
}

// CallbackPayload returns the payload of the pressed button.
func CallbackPayload(c tele.Context) string {
	_, payload := Parse(c.Callback())
	return payload
}
