package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/app/validate"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

// Registration prompts and retry hints.
const (
	askName       = "Введите ваше настоящее имя"
	askSurname    = "Введите вашу настоящую фамилию"
	askPassword   = "Придумайте пароль, содержащий %d цифры"
	askCity       = "В каком городе вы учитесь?"
	askSchool     = "В какой школе вы учитесь?"
	askClass      = "В каком классе вы учитесь?"
	retryName     = "Имя должно содержать только русские буквы"
	retrySurname  = "Фамилия должна содержать только русские буквы"
	retryPassword = "Пароль должен состоять из %d цифр"
	retryCity     = "Название города должно содержать только русские буквы"
	retrySchool   = "Укажите номер школы, например: школа 5"
	retryClass    = "Укажите класс номером и буквой, например: 9а"

	registeredStudent = "Вы зарегистрированы как ученик"
	registeredTeacher = "Вы зарегистрированы как учитель"
	alreadyRegistered = "Вы уже зарегистрированы"
)

// Process names.
const (
	ProcRegisterStudent = "register.student"
	ProcRegisterTeacher = "register.teacher"
)

type guest struct {
	id   state.Identity
	deps Deps
}

func newGuest(id state.Identity, deps Deps) *table {
	g := &guest{id: id, deps: deps}
	return &table{
		role: state.Role(profile.RoleGuest),
		menu: GuestMenu,
		commands: map[string]state.Handler{
			LabelRegisterStudent: g.registerStudent,
			LabelRegisterTeacher: g.registerTeacher,
		},
	}
}

func (g *guest) identitySteps() []state.Step {
	n := g.deps.passwordLength()
	return []state.Step{
		askHidden("ask_name", askName),
		state.Check("name", validate.Step(profile.FieldName, retryName, validate.Name)),
		state.Ask("ask_surname", askSurname),
		state.Check("surname", validate.Step(profile.FieldSurname, retrySurname, validate.Surname)),
		state.Ask("ask_password", fmt.Sprintf(askPassword, n)),
		state.Check("password", validate.PasswordStep(profile.FieldPassword, fmt.Sprintf(retryPassword, n), n)),
	}
}

// StudentRegistration is the six-field student registration process.
func (g *guest) StudentRegistration(s *state.Session) state.Definition {
	steps := append(g.identitySteps(),
		state.Ask("ask_city", askCity),
		state.Check("city", validate.Step(profile.FieldCity, retryCity, validate.City)),
		state.Ask("ask_school", askSchool),
		state.Check("school", validate.Step(profile.FieldSchool, retrySchool, validate.School)),
		state.Ask("ask_class", askClass),
		state.Check("class", validate.Step(profile.FieldStudentClass, retryClass, validate.ClassNumber)),
	)
	return state.Definition{
		Name:       ProcRegisterStudent,
		Steps:      steps,
		Cancelable: true,
		Complete: func(ctx context.Context, v state.Values) error {
			p := profile.NewProfile{
				Role:         profile.RoleStudent,
				Name:         v.String(profile.FieldName),
				Surname:      v.String(profile.FieldSurname),
				Password:     v.String(profile.FieldPassword),
				City:         v.String(profile.FieldCity),
				School:       v.Int(profile.FieldSchool),
				StudentClass: v.String(profile.FieldStudentClass),
			}
			return g.create(ctx, s, p, registeredStudent, StudentMenu)
		},
	}
}

// TeacherRegistration collects name, surname and password.
func (g *guest) TeacherRegistration(s *state.Session) state.Definition {
	return state.Definition{
		Name:       ProcRegisterTeacher,
		Steps:      g.identitySteps(),
		Cancelable: true,
		Complete: func(ctx context.Context, v state.Values) error {
			p := profile.NewProfile{
				Role:     profile.RoleTeacher,
				Name:     v.String(profile.FieldName),
				Surname:  v.String(profile.FieldSurname),
				Password: v.String(profile.FieldPassword),
				Ref:      TeacherRef(g.id),
			}
			return g.create(ctx, s, p, registeredTeacher, TeacherMenu)
		},
	}
}

func (g *guest) create(ctx context.Context, s *state.Session, p profile.NewProfile, done string, menu [][]string) error {
	err := g.deps.Profiles.CreateProfile(ctx, int64(g.id), p)
	if errors.Is(err, profile.ErrExists) {
		return s.Say(ctx, alreadyRegistered)
	}
	if err != nil {
		return err
	}
	return s.Reply(ctx, state.Reply{Text: done, Menu: menu})
}

func (g *guest) registerStudent(ctx context.Context, s *state.Session, _ string) error {
	return s.Start(ctx, g.StudentRegistration(s))
}

func (g *guest) registerTeacher(ctx context.Context, s *state.Session, _ string) error {
	return s.Start(ctx, g.TeacherRegistration(s))
}

// askHidden prompts with the reply keyboard removed.
func askHidden(name, text string) state.Step {
	return state.AskFunc(name, func(context.Context, state.Values) (state.Reply, error) {
		return state.Reply{Text: text, HideMenu: true}, nil
	})
}

// TeacherRef is the contact link stored for teachers.
func TeacherRef(id state.Identity) string {
	return "tg://user?id=" + id.String()
}
