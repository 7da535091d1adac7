// Package sender runs outbound Bot API calls off the update path. Calls for
// one chat run in the order they were queued and transient failures are
// retried with a linear backoff.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/keyed"
	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the chat's worker has no room left.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

const component = "tg.sender"

// Options sizes the dispatcher. Zero values select defaults.
type Options struct {
	Workers int
	// QueueSize bounds pending jobs per worker.
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on one job, retries included.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// Dispatcher executes queued Bot API calls on a keyed worker pool.
type Dispatcher struct {
	opts Options
	pool *keyed.Pool
	errs atomic.Uint64
	sent atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{opts: opts.withDefaults()}
	d.pool = keyed.New(keyed.Options{
		Workers:   d.opts.Workers,
		QueueSize: d.opts.QueueSize,
		OnPanic: func(key uint64, recovered any, stack []byte) {
			d.errs.Add(1)
			logger.Error(logger.Background(), component, "send.panic",
				slog.Int64("chat_id", int64(key)),
				slog.Any("err", recovered),
				slog.String("stack", string(stack)),
			)
		},
	})
	return d
}

// job is one queued call. run must be safe to repeat.
type job struct {
	ctx      context.Context
	chatID   int64
	action   string
	endpoint string
	run      func() error
}

// Enqueue queues run behind the chat's earlier jobs without blocking.
func (d *Dispatcher) Enqueue(ctx context.Context, chatID int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = logger.Background()
	}
	j := job{ctx: ctx, chatID: chatID, action: action, endpoint: endpoint, run: run}
	err := d.pool.TrySubmit(ctx, keyed.Key(chatID), func(context.Context) { d.deliver(j) })
	switch {
	case errors.Is(err, keyed.ErrFull):
		return ErrQueueFull
	case errors.Is(err, keyed.ErrClosed):
		return ErrQueueClosed
	}
	return err
}

// SentCount returns how many jobs eventually succeeded.
func (d *Dispatcher) SentCount() uint64 { return d.sent.Load() }

// ErrorCount returns how many jobs failed for good.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close stops accepting jobs and waits for the queued ones.
func (d *Dispatcher) Close() {
	_ = d.pool.Close()
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts, err := d.attempt(ctx, j)
	attrs := append(j.attrs(),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	if err != nil {
		d.errs.Add(1)
		logger.Error(j.ctx, component, "send.fail", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", redact(err)),
			slog.String("kind", errorKind(err)),
		)...)
		return
	}
	d.sent.Add(1)
	if attempts > 1 {
		logger.Info(j.ctx, component, "send.retry.success", attrs...)
	} else if logger.ShouldSampleDebug() {
		logger.Debug(j.ctx, component, "send.success", attrs...)
	}
}

// attempt runs j until it succeeds, fails permanently or runs out of
// retries or time. It returns the number of calls made.
func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	limit := d.opts.MaxRetries + 1
	for n := 1; ; n++ {
		err := j.run()
		if err == nil {
			return n, nil
		}
		delay, retry := d.backoff(err, n)
		if !retry || n == limit {
			return n, err
		}
		logger.Debug(j.ctx, component, "send.retry.backoff", append(j.attrs(),
			slog.Int("attempt", n),
			slog.String("kind", errorKind(err)),
			slog.Duration("backoff", delay),
		)...)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// backoff returns how long to wait before retrying after the n-th failed
// call. Flood control waits as long as the Bot API asks.
func (d *Dispatcher) backoff(err error, n int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(n), true
	}
	return 0, false
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("op", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	if logger.ChatIDFrom(j.ctx) == 0 && j.chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", j.chatID))
	}
	return attrs
}

// redact strips bot tokens that net/http puts into URL errors.
func redact(err error) string {
	return logger.SanitizeLimit(tokenRe.ReplaceAllString(err.Error(), "bot<redacted>"), 256)
}

// errorKind names a failure: a network kind when netutil recognises one,
// else the HTTP status class reported by the Bot API.
func errorKind(err error) string {
	if kind := netutil.Classify(err); kind != netutil.KindOther {
		return string(kind)
	}
	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return "flood"
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return string(netutil.KindOther)
}

func statusCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	var group tele.GroupError
	if errors.As(err, &group) {
		return http.StatusBadRequest
	}
	// Wrapped Bot API errors end with "(<code>)".
	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(msg[open+1 : len(msg)-1])
	if convErr != nil {
		return 0
	}
	return code
}
