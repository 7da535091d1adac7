package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestDispatcherKeepsPerChatOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	d := NewDispatcher(Options{Workers: 3, QueueSize: 32})

	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := 0; i < 20; i++ {
		for _, chat := range []int64{10, 11} {
			i, chat := i, chat
			err := d.Enqueue(context.Background(), chat, "send.text", "sendMessage", func() error {
				mu.Lock()
				got[chat] = append(got[chat], i)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}
		}
	}
	d.Close()

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	for _, chat := range []int64{10, 11} {
		if diff := cmp.Diff(want, got[chat]); diff != "" {
			t.Fatalf("chat %d order (-want +got):\n%s", chat, diff)
		}
	}
	if d.SentCount() != 40 || d.ErrorCount() != 0 {
		t.Fatalf("sent=%d errs=%d", d.SentCount(), d.ErrorCount())
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	calls := 0
	_ = d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return timeoutErr{}
		}
		return nil
	})
	d.Close()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("errors = %d, want 0", d.ErrorCount())
	}
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	calls := 0
	_ = d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		return errors.New("bad request (400)")
	})
	d.Close()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("errors = %d, want 1", d.ErrorCount())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	err := d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestRedactAndErrorKind(t *testing.T) {
	msg := redact(errors.New(`Post "https://api.telegram.org/bot123456:AA-bb_cc/sendMessage": EOF`))
	if want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`; msg != want {
		t.Fatalf("redacted = %q, want %q", msg, want)
	}
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{errors.New("telegram: Forbidden (403)"), "http_4xx"},
		{errors.New("telegram: Internal (502)"), "http_5xx"},
		{errors.New("telegram: Too Many Requests (429)"), "flood"},
		{errors.New("no status here"), "unknown"},
	}
	for _, tc := range cases {
		if got := errorKind(tc.err); got != tc.want {
			t.Fatalf("errorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestDispatcherGivesUpAtDeadline(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Hour, MaxDuration: 20 * time.Millisecond})
	calls := 0
	_ = d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls++
		return timeoutErr{}
	})
	d.Close()
	if calls != 1 || d.ErrorCount() != 1 {
		t.Fatalf("calls = %d, errors = %d", calls, d.ErrorCount())
	}
}
