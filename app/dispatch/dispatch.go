// Package dispatch routes every inbound message of an identity through content
// lookup, navigation keywords, the active process and the role's commands.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/m3rciful/tutorbot/app/content"
	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// Fixed replies.
const (
	StartText       = "Здравствуйте, этот бот даст теорию по математике, для его полного использования нужно зарегестрироваться"
	MainMenuText    = "главная"
	UnknownText     = "Неизвестная команда"
	UnavailableText = "Действие недоступно"
)

// Navigation keywords, compared after state.Fold.
var (
	startWords = map[string]struct{}{"/start": {}, "start": {}, "старт": {}}
	menuWords  = map[string]struct{}{
		"/menu": {}, "меню": {}, "главное меню": {}, "главная": {}, "/main": {}, "/home": {},
	}
)

// Route names reported in logs.
const (
	RouteContent = "content"
	RouteStart   = "start"
	RouteMenu    = "menu"
	RouteCancel  = "cancel"
	RouteProcess = "process"
	RouteCommand = "command"
	RouteUnknown = "unknown"
	RouteAction  = "action"
)

// Resolver reports the persisted role of an identity.
type Resolver interface {
	Resolve(ctx context.Context, id state.Identity) (profile.Role, error)
}

// RoleResolver reads roles from the profile store.
type RoleResolver struct {
	Profiles profile.Store
}

// Resolve returns the stored role, guest for unknown identities.
func (r RoleResolver) Resolve(ctx context.Context, id state.Identity) (profile.Role, error) {
	return profile.RoleOf(ctx, r.Profiles, int64(id))
}

// Builder constructs the command table of role for id.
type Builder func(role profile.Role, id state.Identity) state.CommandSet

// Options wires a Router.
type Options struct {
	Sessions *state.Registry
	Resolver Resolver
	Build    Builder
	// Content may be nil when no catalog is configured.
	Content content.Lookup
	Sender  state.Sender
}

// Router is the single entry point for inbound text and button presses.
// Calls for one identity must not overlap; the inbound pool keys work by chat.
type Router struct {
	opts Options
}

// New returns a Router. Sessions, Resolver, Build and Sender are required.
func New(opts Options) (*Router, error) {
	switch {
	case opts.Sessions == nil:
		return nil, fmt.Errorf("dispatch: sessions registry is required")
	case opts.Resolver == nil:
		return nil, fmt.Errorf("dispatch: role resolver is required")
	case opts.Build == nil:
		return nil, fmt.Errorf("dispatch: command set builder is required")
	case opts.Sender == nil:
		return nil, fmt.Errorf("dispatch: sender is required")
	}
	return &Router{opts: opts}, nil
}

// session returns the identity's session with a fresh sender and the command
// table of the currently stored role.
func (r *Router) session(ctx context.Context, id state.Identity) (*state.Session, error) {
	s := r.opts.Sessions.Get(id)
	s.Bind(r.opts.Sender)
	role, err := r.opts.Resolver.Resolve(ctx, id)
	if err != nil {
		return s, fmt.Errorf("resolve role: %w", err)
	}
	if s.EnsureRole(state.Role(role), func() state.CommandSet { return r.opts.Build(role, id) }) {
		logger.Debug(ctx, "dialog", "session.role_bound",
			slog.String("identity", id.String()),
			slog.String("role", string(role)),
		)
	}
	return s, nil
}

// Route handles one text message.
func (r *Router) Route(ctx context.Context, id state.Identity, raw string) (err error) {
	start := time.Now()
	route := ""
	s, err := r.session(ctx, id)
	defer func() {
		if p := recover(); p != nil {
			route = "panic"
			err = r.fail(ctx, s, fmt.Errorf("panic: %v", p), slog.String("stack", string(debug.Stack())))
		}
		r.log(ctx, s, "route.done", route, start, err)
	}()
	if err != nil {
		return r.fail(ctx, s, err)
	}
	route, err = r.route(ctx, s, raw)
	if err != nil {
		return r.fail(ctx, s, err, slog.String("route", route))
	}
	return nil
}

func (r *Router) route(ctx context.Context, s *state.Session, raw string) (string, error) {
	text := state.Fold(raw)

	if r.opts.Content != nil {
		if entry, ok := r.opts.Content.Lookup(text); ok {
			for _, reply := range entry.Replies() {
				if err := s.Reply(ctx, reply); err != nil {
					return RouteContent, err
				}
			}
			return RouteContent, nil
		}
	}

	if _, ok := startWords[text]; ok {
		s.Interrupt()
		msg := StartText
		if s.Role() != state.Role(profile.RoleGuest) {
			msg = MainMenuText
		}
		return RouteStart, s.Reply(ctx, state.Reply{Text: msg, Menu: s.MainMenu()})
	}
	if _, ok := menuWords[text]; ok {
		s.Interrupt()
		return RouteMenu, s.Reply(ctx, state.Reply{Text: MainMenuText, Menu: s.MainMenu()})
	}

	if s.CheckCancel(ctx, raw) {
		return RouteCancel, nil
	}
	if s.Active() {
		return RouteProcess, s.Continue(ctx, raw)
	}
	if h, ok := s.Commands().Lookup(text); ok {
		return RouteCommand, h(ctx, s, raw)
	}
	return RouteUnknown, s.Reply(ctx, state.Reply{Text: UnknownText, Menu: s.MainMenu()})
}

// Action handles an inline button press with its payload.
func (r *Router) Action(ctx context.Context, id state.Identity, key, payload string) (err error) {
	start := time.Now()
	s, err := r.session(ctx, id)
	defer func() {
		if p := recover(); p != nil {
			err = r.fail(ctx, s, fmt.Errorf("panic: %v", p), slog.String("stack", string(debug.Stack())))
		}
		r.log(ctx, s, "action.done", RouteAction+":"+key, start, err)
	}()
	if err != nil {
		return r.fail(ctx, s, err)
	}
	h, ok := s.Commands().Action(key)
	if !ok {
		return s.Reply(ctx, state.Reply{Text: UnavailableText, Menu: s.MainMenu()})
	}
	if err := h(ctx, s, payload); err != nil {
		return r.fail(ctx, s, err, slog.String("action", key))
	}
	return nil
}

// fail logs cause, drops any process and apologizes. Only a failed apology is
// returned to the caller.
func (r *Router) fail(ctx context.Context, s *state.Session, cause error, attrs ...slog.Attr) error {
	attrs = append(attrs,
		slog.String("identity", s.Identity().String()),
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(cause.Error(), 512)),
	)
	logger.Error(ctx, "dialog", "route.failed", attrs...)
	s.Interrupt()
	return s.Apologize(ctx)
}

func (r *Router) log(ctx context.Context, s *state.Session, event, route string, start time.Time, err error) {
	logger.Debug(ctx, "dialog", event,
		slog.String("identity", s.Identity().String()),
		slog.String("role", string(s.Role())),
		slog.String("route", route),
		slog.String("status", logger.Status(err)),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	)
}
