package telegram

import (
	"errors"
	"testing"

	"github.com/m3rciful/tutorbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegisterCommandValidation(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		name string
		cmd  commands.Command
		want error
	}{
		{"/start", commands.Command{Handler: noop, Description: "Начать"}, nil},
		{"menu", commands.Command{Handler: noop, Description: "no slash"}, ErrInvalidCommand},
		{"/stats", commands.Command{Handler: noop, Description: "Статистика", AdminOnly: true}, nil},
		{"/start", commands.Command{Handler: noop, Description: "duplicate"}, ErrDuplicateHandler},
		{"/empty", commands.Command{Handler: noop}, ErrInvalidCommand},
	}
	for _, tc := range cases {
		if err := reg.RegisterCommand(tc.name, tc.cmd); !errors.Is(err, tc.want) {
			t.Fatalf("RegisterCommand(%q) = %v, want %v", tc.name, err, tc.want)
		}
	}

	names := reg.CommandNames()
	if len(names) != 2 || names[0] != "/start" || names[1] != "/stats" {
		t.Fatalf("names = %v", names)
	}
	visible := reg.ListCommands(true)
	if len(visible) != 1 || visible[0].Text != "/start" || visible[0].Description != "Начать" {
		t.Fatalf("visible = %+v", visible)
	}
}

func TestRegisterCallback(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterCallback("menu.theory", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterCallback("menu.theory", noop); err == nil {
		t.Fatal("duplicate callback accepted")
	}
	if err := reg.RegisterCallback("", noop); err == nil {
		t.Fatal("empty key accepted")
	}
	if _, ok := reg.GetCallback("menu.theory"); !ok {
		t.Fatal("callback not found")
	}
	if got := reg.ListCallbacks(); len(got) != 1 {
		t.Fatalf("callbacks = %v", got)
	}
	if reg.CallbackNotFound() == nil {
		t.Fatal("default not-found handler missing")
	}
}

func TestBuildPollerModes(t *testing.T) {
	if _, ok := BuildPoller(PollerOptions{RunMode: "webhook", Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://example.org/hook"}}).(*tele.Webhook); !ok {
		t.Fatal("webhook mode should build a webhook poller")
	}
	lp, ok := BuildPoller(PollerOptions{RunMode: "longpoll"}).(*tele.LongPoller)
	if !ok || lp.Timeout.Seconds() != 10 {
		t.Fatalf("longpoll poller = %+v", lp)
	}
}
