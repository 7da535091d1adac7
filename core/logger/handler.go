package logger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler flattens records into a flat key set, fills the
// correlation fields from context and writes one line per record.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	jsonOut := h.cfg.format == formatJSON

	f := make(fields, 16)
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	f["level"] = levelName(r.Level.String())
	if jsonOut {
		f["ts_unix_nano"] = ts.UnixNano()
	}
	for _, a := range h.attrs {
		f.add(h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	for _, a := range MetaFrom(ctx).attrs() {
		f.setDefault(a.Key, a.Value.Any())
	}

	if rid := f.str("rid"); rid != "" {
		if short := CompactRID(rid); short != rid {
			if jsonOut {
				f.setDefault("rid_full", rid)
			}
			f["rid"] = short
		}
	}
	if f.str("event") == "" {
		f["event"] = cmp.Or(r.Message, "unknown")
	}
	if f.str("component") == "" {
		f["component"] = "app"
	}
	f.normalizeEnums()
	f.prune()

	var line []byte
	if jsonOut {
		var err error
		if line, err = encodeJSON(f, h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = encodeKV(f, h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// fields is the flattened record being built.
type fields map[string]any

func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if val, ok := plain(v); ok {
		if d, isDur := val.(time.Duration); isDur {
			f[durationKey(key)] = RoundMS(d).Milliseconds()
			return
		}
		f[key] = val
	}
}

func (f fields) setDefault(key string, v any) {
	if _, ok := f[key]; !ok {
		f[key] = v
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (f fields) normalizeEnums() {
	if s := f.str("status"); s != "" {
		f["status"], _ = statusValues.lookup(s)
	}
	for key, values := range map[string]enum{"cache": cacheValues, "outcome": outcomeValues} {
		s := f.str(key)
		if s == "" {
			continue
		}
		if v, ok := values.lookup(s); ok {
			f[key] = v
		} else {
			delete(f, key)
		}
	}
}

func (f fields) prune() {
	for k, v := range f {
		switch val := v.(type) {
		case nil:
			delete(f, k)
		case string:
			if val == "" {
				delete(f, k)
			}
		case fmt.Stringer:
			if val.String() == "" {
				delete(f, k)
			}
		}
	}
}

// plain converts a slog value into something both encoders understand.
// Durations are returned as time.Duration for the caller to rename.
func plain(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return int64(u), true
		}
		return v.Uint64(), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindDuration:
		return v.Duration(), true
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case string:
		return strings.TrimSpace(x), true
	case time.Duration:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	case int, int64, uint64, float64, bool:
		return x, true
	default:
		return fmt.Sprint(x), true
	}
}

// durationKey makes duration fields carry an _ms suffix.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}
