package middleware

import (
	"context"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/core/logger"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
)

func TestLimiterAllowsAfterInterval(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	l := NewLimiter(time.Second, clock)

	if !l.Allow(1) {
		t.Fatal("first update must pass")
	}
	if l.Allow(1) {
		t.Fatal("second update inside interval must be limited")
	}
	if !l.Allow(2) {
		t.Fatal("other users are independent")
	}
	now = now.Add(time.Second)
	if !l.Allow(1) {
		t.Fatal("update after interval must pass")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(0, nil)
	for i := 0; i < 3; i++ {
		if !l.Allow(7) {
			t.Fatalf("disabled limiter rejected update %d", i)
		}
	}
}

func TestRateLimitMiddlewareAnswersLimitedUpdates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var handled, answered int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  300 * time.Millisecond,
		Now:       func() time.Time { return now },
		OnLimited: func(tele.Context) error { answered++; return nil },
	})
	h := mw(func(tele.Context) error { handled++; return nil })

	for i := 0; i < 2; i++ {
		if err := h(newFakeContext(20+i, 5)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if handled != 1 || answered != 1 {
		t.Fatalf("handled=%d answered=%d, want 1 and 1", handled, answered)
	}

	now = now.Add(300 * time.Millisecond)
	if err := h(newFakeContext(22, 5)); err != nil {
		t.Fatalf("update after interval: %v", err)
	}
	if handled != 2 || answered != 1 {
		t.Fatalf("handled=%d answered=%d after interval", handled, answered)
	}
}

type fakeContext struct {
	tele.Context
	upd   tele.Update
	store map[string]any
}

func newFakeContext(updateID int, chatID int64) *fakeContext {
	return &fakeContext{
		upd: tele.Update{ID: updateID, Message: &tele.Message{
			Text:   "алгебра",
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
			Sender: &tele.User{ID: chatID},
		}},
		store: map[string]any{},
	}
}

func (f *fakeContext) Update() tele.Update           { return f.upd }
func (f *fakeContext) Chat() *tele.Chat              { return f.upd.Message.Chat }
func (f *fakeContext) Sender() *tele.User            { return f.upd.Message.Sender }
func (f *fakeContext) Callback() *tele.Callback      { return nil }
func (f *fakeContext) Get(key string) interface{}    { return f.store[key] }
func (f *fakeContext) Set(key string, v interface{}) { f.store[key] = v }

func TestLoggerMiddlewareAttachesContextOnce(t *testing.T) {
	c := newFakeContext(11, 5)
	var first, second context.Context

	inner := LoggerMiddleware(func(c tele.Context) error {
		second, _ = tghelpers.ContextFrom(c)
		return nil
	})
	outer := LoggerMiddleware(func(c tele.Context) error {
		first, _ = tghelpers.ContextFrom(c)
		return inner(c)
	})
	if err := outer(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if first == nil || first != second {
		t.Fatal("nested middleware should reuse the stored context")
	}
	m := logger.MetaFrom(first)
	if m.UpdateID != 11 || m.ChatID != 5 || m.UserID != 5 || m.RID == "" {
		t.Fatalf("meta = %+v", m)
	}
}

func TestRecoverMiddlewareSwallowsPanic(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newFakeContext(1, 2)); err != nil {
		t.Fatalf("recovered panic returned %v", err)
	}
}
