package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func captureLine(t *testing.T, format logFormat, ctx context.Context, component, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	LogEvent(ctx, slog.New(h).With("component", component), slog.LevelInfo, event, attrs...)
	if err := aw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("no line written")
	}
	return line
}

func assertOrdered(t *testing.T, line string, parts ...string) {
	t.Helper()
	pos := -1
	for _, p := range parts {
		idx := strings.Index(line, p)
		if idx < 0 || idx < pos {
			t.Fatalf("%q missing or out of order in %s", p, line)
		}
		pos = idx
	}
}

func TestHandlerKeyOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(Background(), "r1"), 42, 7, 9)
	attrs := []slog.Attr{slog.String("status", "ok"), slog.String("cause", "unit")}

	kv := captureLine(t, formatKV, ctx, "dialog", "step.done", attrs...)
	if !strings.HasPrefix(kv, "ts=") {
		t.Fatalf("kv line should start with ts: %s", kv)
	}
	assertOrdered(t, kv, "level=INFO", "component=dialog", "event=step.done", "status=ok", "rid=r1", "chat_id=9", "cause=unit")

	js := captureLine(t, formatJSON, ctx, "dialog", "step.done", attrs...)
	assertOrdered(t, js, `{"ts":`, `"level":"INFO"`, `"component":"dialog"`, `"event":"step.done"`, `"status":"ok"`, `"rid":"r1"`)
}

func TestHandlerCompactsRID(t *testing.T) {
	raw := "12:34:56"
	ctx := WithRID(Background(), raw)

	kv := captureLine(t, formatKV, ctx, "tg", "handler.handled")
	if !strings.Contains(kv, "rid="+CompactRID(raw)) || strings.Contains(kv, "rid_full=") {
		t.Fatalf("kv rid: %s", kv)
	}

	js := captureLine(t, formatJSON, ctx, "tg", "handler.handled")
	for _, want := range []string{`"rid":"` + CompactRID(raw) + `"`, `"rid_full":"` + raw + `"`, `"ts_unix_nano"`} {
		if !strings.Contains(js, want) {
			t.Fatalf("json line missing %s: %s", want, js)
		}
	}
}

func TestHandlerNormalizesEnums(t *testing.T) {
	line := captureLine(t, formatKV, Background(), "tg", "handler.handled",
		slog.String("status", "OK"),
		slog.String("outcome", "queued"),
		slog.String("cache", "bogus"),
	)
	if !strings.Contains(line, "status=ok") || !strings.Contains(line, "outcome=queued") {
		t.Fatalf("enums not kept: %s", line)
	}
	if strings.Contains(line, "cache=") {
		t.Fatalf("unknown cache value kept: %s", line)
	}
}

func TestComponentLoggersUsableBeforeInit(t *testing.T) {
	for name, l := range map[string]*slog.Logger{"db": DB, "db.migrate": MIG, "tg": TG, "tg.wire": TWire} {
		if l == nil {
			t.Fatalf("%s logger is nil before InitLogger", name)
		}
	}
	if Component("dialog") != Component(" dialog ") {
		t.Fatal("component loggers should be cached by trimmed name")
	}
	if Component("") != L {
		t.Fatal("empty component should return the root logger")
	}
}

func TestSettingsFromConfigDefaults(t *testing.T) {
	s := settingsFrom(nil)
	if s.format != formatJSON || s.level != slog.LevelInfo || s.sampleDen != defaultSampleDen {
		t.Fatalf("unexpected defaults: %+v", s)
	}
}
