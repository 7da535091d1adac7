package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/tutorbot/core/logger"
)

// Options configures sessions created by a Registry.
type Options struct {
	CancelKeyword string
	// CancelledText acknowledges a cancelled process.
	CancelledText string
	// ApologyText answers failures that are not the user's fault.
	ApologyText string
	Now         func() time.Time
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Options) cancelled() string {
	if o.CancelledText != "" {
		return o.CancelledText
	}
	return "Действие отменено"
}

func (o *Options) apology() string {
	if o.ApologyText != "" {
		return o.ApologyText
	}
	return "Произошла внутренняя ошибка обработки сообщения"
}

// Registry holds one Session per identity.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Identity]*Session
	opts     Options
}

// NewRegistry constructs an empty in-memory registry.
func NewRegistry(opts Options) *Registry {
	if opts.CancelKeyword == "" {
		opts.CancelKeyword = DefaultCancelKeyword
	}
	return &Registry{
		sessions: make(map[Identity]*Session),
		opts:     opts,
	}
}

// Get returns the session for id, creating it on first use.
func (r *Registry) Get(id Identity) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.Touch(r.opts.now())
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.sessions[id]; ok {
		s.Touch(r.opts.now())
		return s
	}
	s = newSession(id, &r.opts)
	r.sessions[id] = s
	return s
}

// Peek returns the session for id without creating it.
func (r *Registry) Peek(id Identity) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Drop removes the session for id.
func (r *Registry) Drop(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Evict removes sessions idle for longer than idle and returns how many were removed.
func (r *Registry) Evict(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := r.opts.now().Add(-idle)
	r.mu.Lock()
	evicted := 0
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if evicted > 0 {
		logger.Info(context.Background(), "dialog", "session.evicted",
			slog.Int("evicted", evicted),
			slog.Int("sessions", remaining),
		)
	}
	return evicted
}
