package roles

import (
	"context"
	"fmt"
	"strings"

	"github.com/m3rciful/tutorbot/app/llm"
	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/app/validate"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

const (
	chooseAction      = "Выберите действие"
	askDeletePassword = "Введите ваш пароль для удаления профиля"
	wrongPassword     = "Неверный пароль, повторите попытку"
	profileDeleted    = "Профиль удалён"
	askOldPassword    = "Введите текущий пароль"
	askNewPassword    = "Придумайте новый пароль, содержащий %d цифры"
	passwordChanged   = "Пароль изменён"
	aiSection         = "Раздел AI Помощник"
)

// Process names shared by registered roles.
const (
	ProcDeleteProfile  = "profile.delete"
	ProcChangePassword = "profile.password"
	ProcAIPrefix       = "ai."
)

// member holds what students and teachers have in common.
type member struct {
	id   state.Identity
	deps Deps
	menu [][]string
}

func (m *member) me(ctx context.Context) (profile.Record, error) {
	return m.deps.Profiles.GetProfile(ctx, int64(m.id))
}

func (m *member) showProfile(ctx context.Context, s *state.Session, _ string) error {
	rec, err := m.me(ctx)
	if err != nil {
		return err
	}
	return s.Reply(ctx, state.Reply{Text: describe(rec) + "\n\n" + chooseAction, Menu: profileMenu})
}

func describe(r profile.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Имя: %s\nФамилия: %s", r.Name, r.Surname)
	switch r.Role {
	case profile.RoleStudent:
		fmt.Fprintf(&b, "\nГород: %s\nШкола: №%d\nКласс: %s", r.City, r.School, r.StudentClass)
	case profile.RoleTeacher:
		b.WriteString("\nРоль: учитель")
	}
	return b.String()
}

// checkPassword accepts input matching the stored password hash.
func (m *member) checkPassword(ctx context.Context, input string, _ state.Values) state.Result {
	rec, err := m.me(ctx)
	if err != nil {
		return state.Fail(err)
	}
	if !rec.CheckPassword(input) {
		return state.Retry(wrongPassword)
	}
	return state.Accepted("", nil)
}

// DeleteProfile asks for the password and deletes the profile once it matches.
func (m *member) DeleteProfile(s *state.Session) state.Definition {
	return state.Definition{
		Name:       ProcDeleteProfile,
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask_password", askDeletePassword),
			state.Check("password", m.checkPassword),
		},
		Complete: func(ctx context.Context, _ state.Values) error {
			if _, err := m.deps.Profiles.DeleteProfile(ctx, int64(m.id)); err != nil {
				return err
			}
			return s.Reply(ctx, state.Reply{Text: profileDeleted, Menu: GuestMenu})
		},
	}
}

// ChangePassword verifies the current password and stores a new one.
func (m *member) ChangePassword(s *state.Session) state.Definition {
	n := m.deps.passwordLength()
	return state.Definition{
		Name:       ProcChangePassword,
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask_old", askOldPassword),
			state.Check("old", m.checkPassword),
			state.Ask("ask_new", fmt.Sprintf(askNewPassword, n)),
			state.Check("new", validate.PasswordStep(profile.FieldPassword, fmt.Sprintf(retryPassword, n), n)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			if err := m.deps.Profiles.UpdateField(ctx, int64(m.id), profile.FieldPassword, v.String(profile.FieldPassword)); err != nil {
				return err
			}
			return s.Reply(ctx, state.Reply{Text: passwordChanged, Menu: m.menu})
		},
	}
}

func (m *member) deleteProfile(ctx context.Context, s *state.Session, _ string) error {
	return s.Start(ctx, m.DeleteProfile(s))
}

func (m *member) changePassword(ctx context.Context, s *state.Session, _ string) error {
	return s.Start(ctx, m.ChangePassword(s))
}

// AskAI is a one-question process sending the answer through the LLM in mode.
// The reply carries menu so the user stays in the AI section.
func (m *member) AskAI(s *state.Session, mode llm.Mode, question string, menu [][]string) state.Definition {
	return state.Definition{
		Name:       ProcAIPrefix + string(mode),
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask", question),
			state.Check("text", validate.Step("text", "", validate.Text)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			answer, err := m.complete(ctx, mode, v.String("text"))
			if err != nil {
				return err
			}
			return s.Reply(ctx, state.Reply{Text: answer, Menu: menu})
		},
	}
}

func (m *member) complete(ctx context.Context, mode llm.Mode, text string) (string, error) {
	if m.deps.LLM == nil {
		return "", llm.ErrDisabled
	}
	return m.deps.LLM.Complete(ctx, llm.Prompt(mode, text))
}

func (m *member) ai(mode llm.Mode, question string, menu [][]string) state.Handler {
	return func(ctx context.Context, s *state.Session, _ string) error {
		return s.Start(ctx, m.AskAI(s, mode, question, menu))
	}
}

func (m *member) base() map[string]state.Handler {
	return map[string]state.Handler{
		LabelProfile:        m.showProfile,
		LabelDeleteProfile:  m.deleteProfile,
		LabelChangePassword: m.changePassword,
	}
}
