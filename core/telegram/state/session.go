package state

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/tutorbot/core/logger"
)

// ErrNoSender is returned when a session replies before a transport was bound.
var ErrNoSender = errors.New("state: session has no sender")

// Session is the per-identity container of role, command set and active process.
type Session struct {
	id       Identity
	role     Role
	commands CommandSet
	process  *Process
	command  string
	sender   Sender
	opts     *Options

	// Data keeps values that outlive a single process, such as the result of a
	// search that a later command acts on. It is reset on role change.
	Data Values

	lastSeen atomic.Int64
}

func newSession(id Identity, opts *Options) *Session {
	s := &Session{id: id, opts: opts, Data: Values{}}
	s.Touch(opts.now())
	return s
}

// Identity returns the owner of the session.
func (s *Session) Identity() Identity { return s.id }

// Role returns the role the command set was built for.
func (s *Session) Role() Role { return s.role }

// Commands returns the live command set, nil before the first EnsureRole.
func (s *Session) Commands() CommandSet { return s.commands }

// Process returns the active process, if any.
func (s *Session) Process() *Process { return s.process }

// Command returns the name of the process awaiting input.
func (s *Session) Command() string { return s.command }

// Active reports whether a process is awaiting input.
func (s *Session) Active() bool {
	return s.process != nil && s.process.Active()
}

// Touch records activity at t.
func (s *Session) Touch(t time.Time) { s.lastSeen.Store(t.UnixNano()) }

// LastSeen returns the last recorded activity.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Bind refreshes the transport used for replies.
func (s *Session) Bind(sender Sender) {
	if sender != nil {
		s.sender = sender
	}
}

// EnsureRole rebuilds the command set when role differs from the current one and
// discards any in-flight process. It reports whether a rebuild happened.
func (s *Session) EnsureRole(role Role, build func() CommandSet) bool {
	if s.commands != nil && s.role == role {
		return false
	}
	if s.process != nil {
		logger.Debug(context.Background(), "dialog", "session.role_changed",
			slog.String("identity", s.id.String()),
			slog.String("role", string(role)),
			slog.String("process", s.process.Name()),
			slog.String("outcome", "cancelled"),
		)
	}
	s.discard()
	s.role = role
	s.commands = build()
	s.Data = Values{}
	return true
}

// MainMenu returns the role's main menu.
func (s *Session) MainMenu() [][]string {
	if s.commands == nil {
		return nil
	}
	return s.commands.MainMenu()
}

// Reply implements Replier for the session's identity.
func (s *Session) Reply(ctx context.Context, r Reply) error {
	if s.sender == nil {
		return ErrNoSender
	}
	return s.sender.Send(ctx, s.id, r)
}

// Say sends text with an optional menu.
func (s *Session) Say(ctx context.Context, text string, menu ...[]string) error {
	return s.Reply(ctx, Reply{Text: text, Menu: menu})
}

// Start installs def as the session's process, replacing any previous one, and runs
// its leading prompts.
func (s *Session) Start(ctx context.Context, def Definition) error {
	s.discard()
	p := NewProcess(def, s, WithCancelKeyword(s.opts.CancelKeyword))
	s.process = p
	s.command = def.Name
	return s.settle(ctx, p, p.Start(ctx))
}

// Continue feeds raw input to the active process.
func (s *Session) Continue(ctx context.Context, raw string) error {
	p := s.process
	if p == nil || !p.Active() {
		return ErrNotActive
	}
	if p.UpdateInput(raw) {
		s.discard()
		return s.ackCancel(ctx, p)
	}
	return s.settle(ctx, p, p.Execute(ctx))
}

// CheckCancel stops the active process when raw is the cancel keyword and
// acknowledges it. It reports whether the input was consumed.
func (s *Session) CheckCancel(ctx context.Context, raw string) bool {
	p := s.process
	if p == nil || !p.Active() || !p.Cancelable() || !p.IsCancel(raw) {
		return false
	}
	p.Cancel()
	s.discard()
	if err := s.ackCancel(ctx, p); err != nil {
		logger.Warn(ctx, "dialog", "process.cancel_ack_failed",
			slog.String("process", p.Name()),
			slog.String("err", err.Error()),
		)
	}
	return true
}

// Interrupt drops the active process without acknowledgment.
func (s *Session) Interrupt() {
	if s.process != nil && s.process.Active() {
		s.process.Cancel()
	}
	s.discard()
}

// Apologize sends the generic failure reply with the main menu.
func (s *Session) Apologize(ctx context.Context) error {
	return s.Reply(ctx, Reply{Text: s.opts.apology(), Menu: s.MainMenu()})
}

func (s *Session) ackCancel(ctx context.Context, p *Process) error {
	logger.Debug(ctx, "dialog", "process.cancelled",
		slog.String("process", p.Name()),
		slog.String("outcome", "cancelled"),
	)
	return s.Reply(ctx, Reply{Text: s.opts.cancelled(), Menu: s.MainMenu()})
}

// settle drops finished processes. Step failures are logged and answered with an
// apology here so they never leave a half-run process behind.
func (s *Session) settle(ctx context.Context, p *Process, err error) error {
	if err == nil {
		if !p.Active() {
			if s.process == p {
				s.discard()
			}
			logger.Debug(ctx, "dialog", "process.finished",
				slog.String("process", p.Name()),
				slog.String("status", p.Status().String()),
			)
		}
		return nil
	}
	if s.process == p {
		s.discard()
	}
	attrs := []slog.Attr{
		slog.String("process", p.Name()),
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		attrs = append(attrs, slog.String("step", stepErr.Step), slog.String("err_code", stepErr.Code()))
	}
	logger.Error(ctx, "dialog", "process.aborted", attrs...)
	if replyErr := s.Apologize(ctx); replyErr != nil {
		return errors.Join(err, replyErr)
	}
	return nil
}

func (s *Session) discard() {
	s.process = nil
	s.command = ""
}
