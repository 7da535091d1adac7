package logger

import "strings"

// Values accepted for enum-like keys. Unknown status values pass through
// lowercased; unknown cache and outcome values are dropped.
var (
	statusValues  = enumSet("ok", "fail", "skip", "retry", "rate_limited", "cancelled", "queued", "error")
	cacheValues   = enumSet("hit", "miss", "refresh")
	outcomeValues = enumSet("ok", "fail", "cancelled", "rate_limited", "queued")
)

type enum map[string]struct{}

func enumSet(values ...string) enum {
	e := make(enum, len(values))
	for _, v := range values {
		e[v] = struct{}{}
	}
	return e
}

func (e enum) lookup(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	_, ok := e[v]
	return v, ok
}

func levelName(level string) string {
	switch l := strings.ToUpper(strings.TrimSpace(level)); l {
	case "":
		return "INFO"
	case "WARNING":
		return "WARN"
	default:
		return l
	}
}

// defaultKeyOrder lists the keys written first, in this order. The rest
// follow alphabetically.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "handler",
	"op", "cb_key", "outcome", "duration_ms",
	"identity", "role", "process", "step", "cursor",
	"topic", "entries", "sessions", "evicted",
	"provider", "model", "db", "mode", "listen", "public_url",
	"http_code", "attempts", "backoff_ms", "retryable", "kind",
	"err", "err_code", "cause",
}
