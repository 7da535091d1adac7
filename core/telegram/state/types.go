package state

import (
	"context"
	"strconv"
	"strings"
)

// Identity is the stable handle of one conversation (the Telegram chat id).
type Identity int64

func (id Identity) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Role names the command set bound to a session.
type Role string

// Button is an inline button attached to a reply.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Reply is an outbound message.
type Reply struct {
	Text     string
	Menu     [][]string
	Inline   [][]Button
	HideMenu bool
	// Document is a path to a file sent after the text.
	Document string
}

// Sender delivers replies to an identity.
type Sender interface {
	Send(ctx context.Context, to Identity, r Reply) error
}

// Handler runs a command or button action for the session's identity.
type Handler func(ctx context.Context, s *Session, input string) error

// CommandSet is the static command table of one role, bound to one identity.
type CommandSet interface {
	Role() Role
	// Lookup resolves a normalized text command.
	Lookup(command string) (Handler, bool)
	// Action resolves an inline button key.
	Action(key string) (Handler, bool)
	MainMenu() [][]string
}

// Values holds answers collected by a process.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// String returns the value under key if it is a string.
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// Int returns the value under key if it is an int.
func (v Values) Int(key string) int {
	switch n := v[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// Int64 returns the value under key if it is an integer.
func (v Values) Int64(key string) int64 {
	switch n := v[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case Identity:
		return int64(n)
	}
	return 0
}

var foldReplacer = strings.NewReplacer("ё", "е")

// Fold normalizes user input for command matching: trims, lowercases and folds ё to е.
func Fold(text string) string {
	return foldReplacer.Replace(strings.ToLower(strings.TrimSpace(text)))
}
