package telegram

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/commands"
)

// Registration errors.
var (
	ErrInvalidCommand   = errors.New("telegram: invalid command")
	ErrInvalidCallback  = errors.New("telegram: invalid callback")
	ErrDuplicateHandler = errors.New("telegram: already registered")
)

const defaultCallbackNotFoundText = "Действие недоступно"

// Registry maps slash commands and callback keys to handlers. It is filled
// before the bot starts and read from update handlers afterwards.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback fallback
// answers with a short toast.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: defaultCallbackNotFoundText})
		},
	}
}

// RegisterCommand adds a "/name" command. The handler and description are required.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var err error
	switch {
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		err = fmt.Errorf("%w: %q needs a slash prefix", ErrInvalidCommand, name)
	case cmd.Handler == nil || strings.TrimSpace(cmd.Description) == "":
		err = fmt.Errorf("%w: %q needs a handler and a description", ErrInvalidCommand, name)
	}
	if err == nil {
		r.mu.Lock()
		if _, exists := r.commands[name]; exists {
			err = fmt.Errorf("%w: command %s", ErrDuplicateHandler, name)
		} else {
			r.commands[name] = cmd
		}
		r.mu.Unlock()
	}
	if err != nil {
		logger.LogEvent(logger.Background(), logger.TWire, slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// RegisterCallback maps a button key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	var err error
	if strings.TrimSpace(key) == "" || handler == nil {
		err = fmt.Errorf("%w: key %q", ErrInvalidCallback, key)
	} else {
		r.mu.Lock()
		if _, exists := r.callbacks[key]; exists {
			err = fmt.Errorf("%w: callback %s", ErrDuplicateHandler, key)
		} else {
			r.callbacks[key] = handler
		}
		r.mu.Unlock()
	}
	if err != nil {
		logger.LogEvent(logger.Background(), logger.TWire, slog.LevelWarn, "register.callback.skip",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for name, cmd := range r.commands {
		out[name] = cmd
	}
	return out
}

// CommandNames returns every command name sorted, hidden ones included.
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.commands)
}

// ListCommands returns the menu entries for SetCommands. With visibleOnly,
// hidden and admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for _, name := range sortedKeys(r.commands) {
		cmd := r.commands[name]
		if visibleOnly && (cmd.Hidden || cmd.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	return list
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.callbacks)
}

// SetCallbackNotFound replaces the fallback for unknown callback keys. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the fallback for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// InitBotCommands publishes the visible commands to the Telegram menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if len(list) == 0 {
		return
	}
	if err := bot.SetCommands(list); err != nil {
		logger.LogEvent(logger.Background(), logger.TWire, slog.LevelError, "register.commands.set_failed",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
