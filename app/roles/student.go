package roles

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/tutorbot/app/llm"
	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/app/validate"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

const (
	noApplications     = "Заявок нет"
	chooseTeacher      = "Выберите учителя"
	applicationOK      = "Заявка принята"
	applicationNo      = "Заявка отклонена"
	applicationMissing = "Заявка не найдена"
	acceptedNotice     = "%s %s из школы №%d класса %s принял заявку"
	rejectedNotice     = "%s %s из школы №%d класса %s отклонил заявку"
	noTeachers         = "У вас пока нет прикрепленных учителей"
	yourTeachers       = "Ваши учителя:\n\n"
	tasksSection       = "Выберите действие с заданиями"
	noAssignments      = "Заданий пока нет"
	yourAssignments    = "Ваши задания:\n\n"
	askSolution        = "Пришлите решение одним сообщением"
	solutionSent       = "Решение отправлено учителям"
	solutionNotice     = "Решение от ученика %s (%s класс):\n\n%s"

	askHelpProblem   = "Пришлите условие задачи одним сообщением"
	askExplain       = "Какую тему объяснить?"
	askTips          = "По какой теме дать советы?"
	askPlan          = "Укажите тему и срок (например: Квадратные уравнения за 2 недели)"
	askCheckSolution = "Пришлите условие задачи и ваше решение одним сообщением"
	askPractice      = "Укажите тему, по которой нужны тренировки"
	askGenerateTask  = "Укажите тему, по которой сгенерировать одно задание (без решения)"
)

// ProcSubmitSolution forwards a solution to the student's teachers.
const ProcSubmitSolution = "student.solution"

type student struct {
	member
}

func newStudent(id state.Identity, deps Deps) *table {
	st := &student{member{id: id, deps: deps, menu: StudentMenu}}
	commands := st.base()
	commands[LabelApplications] = st.applications
	commands[LabelMyTeachers] = st.myTeachers
	commands[LabelTasks] = show(tasksSection, studentTasksMenu)
	commands[LabelGetTasks] = st.assignments
	commands[LabelSubmitSolution] = st.submitSolution
	commands[LabelAIHelper] = show(aiSection, studentAIMenu)
	commands[LabelHelpProblem] = st.ai(llm.ModeHelpProblem, askHelpProblem, studentAIMenu)
	commands[LabelExplain] = st.ai(llm.ModeExplain, askExplain, studentAIMenu)
	commands[LabelTips] = st.ai(llm.ModeTips, askTips, studentAIMenu)
	commands[LabelPlan] = st.ai(llm.ModePlan, askPlan, studentAIMenu)
	commands[LabelCheckSolution] = st.ai(llm.ModeCheckSolution, askCheckSolution, studentAIMenu)
	commands[LabelPractice] = st.ai(llm.ModePractice, askPractice, studentAIMenu)
	commands[LabelGenerateTask] = st.ai(llm.ModeGenerateTask, askGenerateTask, studentAIMenu)
	return &table{
		role:     state.Role(profile.RoleStudent),
		menu:     StudentMenu,
		commands: commands,
		actions: map[string]state.Handler{
			ActionAccept: st.accept,
			ActionReject: st.reject,
		},
	}
}

func (st *student) applications(ctx context.Context, s *state.Session, _ string) error {
	teachers, err := st.deps.Profiles.ListApplications(ctx, int64(st.id))
	if err != nil {
		return err
	}
	if len(teachers) == 0 {
		return s.Reply(ctx, state.Reply{Text: noApplications, Menu: StudentMenu})
	}
	var b strings.Builder
	b.WriteString(chooseTeacher)
	rows := make([][]state.Button, 0, len(teachers))
	for _, t := range teachers {
		fmt.Fprintf(&b, "\n• %s, %s", t.FullName(), t.Ref)
		data := strconv.FormatInt(t.TelegramID, 10)
		rows = append(rows, []state.Button{
			{Text: "Принять: " + t.FullName(), Unique: ActionAccept, Data: data},
			{Text: "Отклонить", Unique: ActionReject, Data: data},
		})
	}
	return s.Reply(ctx, state.Reply{Text: b.String(), Inline: rows})
}

func (st *student) accept(ctx context.Context, s *state.Session, payload string) error {
	return st.answer(ctx, s, payload, true)
}

func (st *student) reject(ctx context.Context, s *state.Session, payload string) error {
	return st.answer(ctx, s, payload, false)
}

func (st *student) answer(ctx context.Context, s *state.Session, payload string, accept bool) error {
	teacherID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || teacherID == 0 {
		return s.Reply(ctx, state.Reply{Text: applicationMissing, Menu: StudentMenu})
	}
	var ok bool
	if accept {
		ok, err = st.deps.Profiles.AcceptApplication(ctx, int64(st.id), teacherID)
	} else {
		ok, err = st.deps.Profiles.RejectApplication(ctx, int64(st.id), teacherID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return s.Reply(ctx, state.Reply{Text: applicationMissing, Menu: StudentMenu})
	}
	me, err := st.me(ctx)
	if err != nil {
		return err
	}
	text, notice := applicationNo, rejectedNotice
	if accept {
		text, notice = applicationOK, acceptedNotice
	}
	st.deps.notify(ctx, teacherID, state.Reply{
		Text: fmt.Sprintf(notice, me.Name, me.Surname, me.School, me.StudentClass),
	})
	return s.Reply(ctx, state.Reply{Text: text, Menu: StudentMenu})
}

func (st *student) myTeachers(ctx context.Context, s *state.Session, _ string) error {
	teachers, err := st.deps.Profiles.ListTeachers(ctx, int64(st.id))
	if err != nil {
		return err
	}
	if len(teachers) == 0 {
		return s.Reply(ctx, state.Reply{Text: noTeachers, Menu: StudentMenu})
	}
	var b strings.Builder
	b.WriteString(yourTeachers)
	for _, t := range teachers {
		fmt.Fprintf(&b, "• %s\n", t.FullName())
	}
	return s.Reply(ctx, state.Reply{Text: strings.TrimRight(b.String(), "\n"), Menu: StudentMenu})
}

func (st *student) assignments(ctx context.Context, s *state.Session, _ string) error {
	list, err := st.deps.Profiles.ListAssignments(ctx, int64(st.id))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return s.Reply(ctx, state.Reply{Text: noAssignments, Menu: studentTasksMenu})
	}
	names := map[int64]string{}
	var b strings.Builder
	b.WriteString(yourAssignments)
	for i, a := range list {
		name, ok := names[a.TeacherID]
		if !ok {
			if rec, err := st.deps.Profiles.GetProfile(ctx, a.TeacherID); err == nil {
				name = rec.FullName()
			}
			names[a.TeacherID] = name
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s: %s", i+1, name, a.Body)
	}
	return s.Reply(ctx, state.Reply{Text: b.String(), Menu: studentTasksMenu})
}

// SubmitSolution collects one message and forwards it to every attached teacher.
func (st *student) SubmitSolution(s *state.Session, teachers []profile.Record) state.Definition {
	return state.Definition{
		Name:       ProcSubmitSolution,
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask", askSolution),
			state.Check("text", validate.Step("text", "", validate.Text)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			me, err := st.me(ctx)
			if err != nil {
				return err
			}
			notice := state.Reply{Text: fmt.Sprintf(solutionNotice, me.FullName(), me.StudentClass, v.String("text"))}
			for _, t := range teachers {
				st.deps.notify(ctx, t.TelegramID, notice)
			}
			return s.Reply(ctx, state.Reply{Text: solutionSent, Menu: StudentMenu})
		},
	}
}

func (st *student) submitSolution(ctx context.Context, s *state.Session, _ string) error {
	teachers, err := st.deps.Profiles.ListTeachers(ctx, int64(st.id))
	if err != nil {
		return err
	}
	if len(teachers) == 0 {
		return s.Reply(ctx, state.Reply{Text: noTeachers, Menu: StudentMenu})
	}
	return s.Start(ctx, st.SubmitSolution(s, teachers))
}
