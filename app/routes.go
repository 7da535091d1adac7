package app

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tutorbot/app/roles"
	coretelegram "github.com/m3rciful/tutorbot/core/telegram"
	"github.com/m3rciful/tutorbot/core/telegram/callbacks"
	"github.com/m3rciful/tutorbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/tutorbot/core/telegram/helpers"
	"github.com/m3rciful/tutorbot/core/telegram/router"
)

const (
	documentText    = "Файлы не принимаются, отправьте ответ текстом"
	adminRejectText = "Команда доступна только администратору"
	staleButtonText = "Кнопка устарела"
	rateLimitedText = "Слишком часто, повторите через секунду"
)

func (a *App) registry() (*coretelegram.Registry, error) {
	reg := coretelegram.NewRegistry()
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: a.forward("/start"), Description: "Начать работу"}},
		{"/menu", commands.Command{Handler: a.forward("/menu"), Description: "Главное меню"}},
		{"/stats", commands.Command{Handler: a.stats, Description: "Состояние бота", AdminOnly: true, Hidden: true}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	for _, key := range []string{roles.ActionAccept, roles.ActionReject} {
		if err := reg.RegisterCallback(key, a.press); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
	}
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return tghelpers.SendText(c, staleButtonText)
	})
	return reg, nil
}

func (a *App) routes(reg *coretelegram.Registry) []coretelegram.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, adminRejectText)
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a, router.TextOptions{
		UnknownDocument: func(c tele.Context) error {
			return tghelpers.SendText(c, documentText)
		},
	})...)
	return routes
}

// forward hands a slash command to the dialog as if it were typed text so it
// goes through the same per-chat queue as everything else.
func (a *App) forward(word string) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return nil
		}
		ctx := tghelpers.WithHandler(c, strings.TrimPrefix(word, "/"))
		return a.Enqueue(ctx, chat.ID, word)
	}
}

func (a *App) press(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	key := callbacks.CallbackKey(c)
	ctx := tghelpers.WithHandler(c, "action."+key)
	return a.Press(ctx, chat.ID, key, callbacks.CallbackPayload(c))
}

// limited answers an update dropped by the rate limiter.
func (a *App) limited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: rateLimitedText})
	}
	return tghelpers.SendText(c, rateLimitedText)
}

func (a *App) stats(c tele.Context) error {
	return tghelpers.SendText(c, a.Stats())
}

// Stats renders the runtime counters shown to the admin.
func (a *App) Stats() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Сессии: %d\n", a.sessions.Len())
	fmt.Fprintf(&b, "Воркеры: %d\n", a.pool.Workers())
	if d := a.dispatcher; d != nil {
		fmt.Fprintf(&b, "Отправлено: %d, ошибок: %d\n", d.SentCount(), d.ErrorCount())
	}
	fmt.Fprintf(&b, "Темы: %d, перезагрузок: %d", a.content.Catalog().Len(), a.content.Reloads())
	return b.String()
}
