// Package roles builds the per-identity command tables of guests, students and
// teachers. Each table is constructed for exactly one identity and is never
// shared between sessions.
package roles

import (
	"context"
	"log/slog"

	"github.com/m3rciful/tutorbot/app/llm"
	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// DefaultPasswordLength is the number of digits in a profile password.
const DefaultPasswordLength = 4

// Inline button keys handled through CommandSet.Action.
const (
	ActionAccept = "application.accept"
	ActionReject = "application.reject"
)

// Deps are the collaborators shared by every command table.
type Deps struct {
	Profiles profile.Store
	LLM      llm.Completer
	// Notify delivers messages to identities other than the session owner.
	Notify         state.Sender
	PasswordLength int
}

func (d Deps) passwordLength() int {
	if d.PasswordLength > 0 {
		return d.PasswordLength
	}
	return DefaultPasswordLength
}

// notify sends r to id and logs delivery failures. The owner's flow never fails
// because a third party could not be reached.
func (d Deps) notify(ctx context.Context, id int64, r state.Reply) {
	if d.Notify == nil {
		return
	}
	if err := d.Notify.Send(ctx, state.Identity(id), r); err != nil {
		logger.Warn(ctx, "dialog", "notify.failed",
			slog.Int64("to", id),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// New returns the command table of role bound to id. Unknown roles get the guest table.
func New(role profile.Role, id state.Identity, deps Deps) state.CommandSet {
	switch role {
	case profile.RoleStudent:
		return newStudent(id, deps)
	case profile.RoleTeacher:
		return newTeacher(id, deps)
	default:
		return newGuest(id, deps)
	}
}

// table is the common CommandSet implementation.
type table struct {
	role     state.Role
	menu     [][]string
	commands map[string]state.Handler
	actions  map[string]state.Handler
}

func (t *table) Role() state.Role { return t.role }

func (t *table) Lookup(command string) (state.Handler, bool) {
	h, ok := t.commands[state.Fold(command)]
	return h, ok
}

func (t *table) Action(key string) (state.Handler, bool) {
	h, ok := t.actions[key]
	return h, ok
}

func (t *table) MainMenu() [][]string { return t.menu }

// show returns a handler replying with a fixed text and menu.
func show(text string, menu [][]string) state.Handler {
	return func(ctx context.Context, s *state.Session, _ string) error {
		return s.Reply(ctx, state.Reply{Text: text, Menu: menu})
	}
}
