package telegram

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/tutorbot/core/logger"
	"github.com/m3rciful/tutorbot/core/telegram/netutil"
)

// HTTPClientOptions tunes the Bot API client. Zero values select defaults.
type HTTPClientOptions struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

func (o HTTPClientOptions) withDefaults() HTTPClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

// BuildHTTPClient returns the client telebot uses for Bot API calls.
// Connection level failures are retried before telebot sees them.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	opts = opts.withDefaults()
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: &retryTransport{base: base, retries: opts.Retries, backoff: opts.RetryBackoff},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for n := 1; err != nil && n <= t.retries && netutil.ShouldRetry(err); n++ {
		// A body that cannot be replayed makes the request single-shot.
		if req.Body != nil && req.GetBody == nil {
			break
		}
		logger.LogEvent(req.Context(), logger.TG, slog.LevelDebug, "http.retry",
			slog.Int("attempt", n),
			slog.String("kind", string(netutil.Classify(err))),
		)
		timer := time.NewTimer(t.backoff * time.Duration(n))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}

		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			retry.Body = body
		}
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}
