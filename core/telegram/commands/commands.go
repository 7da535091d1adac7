// Package commands describes slash commands kept in the registry.
package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command. Hidden commands stay out of the Telegram menu;
// AdminOnly ones are also checked against the configured admin on each call.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
}
