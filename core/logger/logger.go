// Package logger is the structured logging layer shared by every component.
//
// Records go through a slog handler that flattens attributes, adds the
// update correlation data carried in context and writes KV or JSON lines
// asynchronously. Before InitLogger runs every logger falls back to
// slog.Default, so packages and tests can log freely.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/tutorbot/core/buildinfo"
	coreconfig "github.com/m3rciful/tutorbot/core/config"
)

const (
	defaultSampleNum = 1
	defaultSampleDen = 50
)

var (
	// L is the root logger.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// MIG logs schema migrations.
	MIG *slog.Logger
	// TG logs Telegram runtime events.
	TG *slog.Logger
	// TWire logs command and callback registration.
	TWire *slog.Logger
)

var state struct {
	initOnce sync.Once

	mu      sync.Mutex
	closed  bool
	writer  *asyncWriter
	closers []io.Closer

	level   slog.LevelVar
	sampler *ratioSampler
	trace   bool

	components sync.Map // name -> *slog.Logger
}

func init() {
	state.sampler = newRatioSampler(defaultSampleNum, defaultSampleDen)
	setRoot(slog.Default())
}

func setRoot(root *slog.Logger) {
	L = root
	state.components.Clear()
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component("tg")
	TWire = Component("tg.wire")
}

// settings is the logging section of the config after defaults.
type settings struct {
	format    logFormat
	keyOrder  []string
	level     slog.Level
	sampleNum int
	sampleDen int
	file      string
	profile   string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:    formatJSON,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		level:     slog.LevelInfo,
		sampleNum: defaultSampleNum,
		sampleDen: defaultSampleDen,
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	s.profile = strings.ToLower(cmpOrTrim(lc.Profile, "prod"))

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if order := splitList(lc.KeysOrder); len(order) > 0 && !(len(order) == 1 && order[0] == "default") {
		s.keyOrder = order
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		num, den := parseRatioSpec(spec)
		if num > 0 && den > 0 || num == 0 && den == 0 {
			s.sampleNum, s.sampleDen = num, den
		}
	}

	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

// InitLogger installs the structured handler as the process default.
// Only the first call has any effect. A log file that cannot be opened is
// reported and skipped.
func InitLogger(cfg *coreconfig.Config) error {
	state.initOnce.Do(func() {
		s := settingsFrom(cfg)
		state.level.Set(s.level)
		state.sampler.Set(s.sampleNum, s.sampleDen)
		state.trace = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		if s.file != "" {
			if f, openErr := openLogFile(s.file); openErr != nil {
				log.Printf("logger: %v", openErr)
			} else {
				outputs = append(outputs, f)
				state.closers = append(state.closers, f)
			}
		}
		state.writer = newAsyncWriter(outputs, 64*1024)

		root := slog.New(newStructuredHandler(handlerConfig{
			level:    &state.level,
			writer:   state.writer,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(root)
		setRoot(root)
		logStartup(s.profile)
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func logStartup(profile string) {
	build := buildinfo.Get()
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", build.Version),
		slog.String("build_commit", build.Commit),
		slog.String("build_time", build.Date),
		slog.String("cfg_profile", profile),
	)
}

// Shutdown flushes pending lines and closes file sinks. Later calls are no-ops.
func Shutdown() error {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.closed {
		return nil
	}
	state.closed = true

	var errs []error
	if state.writer != nil {
		errs = append(errs, state.writer.Flush(), state.writer.Close())
	}
	for _, c := range state.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns a context with no correlation data, for background jobs.
func Background() context.Context {
	return context.Background()
}

// Component returns the root logger scoped to name.
func Component(name string) *slog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return L
	}
	if l, ok := state.components.Load(name); ok {
		return l.(*slog.Logger)
	}
	l, _ := state.components.LoadOrStore(name, L.With("component", name))
	return l.(*slog.Logger)
}

// LogEvent writes one event through logg, or the context logger when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Event logs event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warning event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high volume debug event should be
// logged. TRACE=1 lets every event through.
func ShouldSampleDebug() bool {
	return state.trace || state.sampler.Allow()
}

// TraceEnabled reports whether TRACE forces full debug output.
func TraceEnabled() bool {
	return state.trace
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cmpOrTrim(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
