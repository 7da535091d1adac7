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
	askSearchCity   = "В каком городе учатся учащиеся? (название города)"
	askSearchSchool = "В какой школе?"
	askSearchClass  = "В каком классе? (номер класса и буква)"
	nothingFound    = "ничего не найдено"
	searchFirst     = "Сначала найдите класс через «прикрепить класс»"
	applicationSent = "Заявка отправлена"
	attachNotice    = "учитель %s %s хочет прикрепить вас к себе. Для подтверждения перейдите в заявки"
	noStudents      = "У вас пока нет прикрепленных учеников"
	yourStudents    = "Ваши ученики:\n\n"
	homeworkSection = "Выберите тип задания"
	checkSection    = "Выберите тип заданий для проверки"
	chooseStudent   = "Выберите ученика"
	unknownStudent  = "Ученик не найден, выберите из списка"
	askClassTask    = "Пришлите текст задания для класса"
	askPersonalTask = "Пришлите текст индивидуального задания для ученика"
	askClassTopic   = "Укажите тему и уровень задания для класса"
	classTaskSaved  = "Задание для класса сформировано и сохранено"
	personalSaved   = "Индивидуальное задание сформировано и сохранено"
	taskNotice      = "Новое задание от учителя %s:\n\n%s"

	askReview        = "Загрузите решение ученика текстом. Я помогу проверить."
	askClassAnalysis = "Пришлите текст решений учащихся одним сообщением для анализа."
	askTeacherTask   = "Укажите тему и уровень (например: Квадратные уравнения, базовый) — сгенерирую ОДНО задание без решения"
)

// Process names of teacher flows.
const (
	ProcSearchClass      = "teacher.search"
	ProcClassTask        = "teacher.class_task"
	ProcPersonalTask     = "teacher.personal_task"
	ProcGenerateForClass = "teacher.class_generate"
)

// DataSearch keeps the ids found by the last class search in Session.Data.
const DataSearch = "search.students"

const keyStudent = "student"

type teacher struct {
	member
}

func newTeacher(id state.Identity, deps Deps) *table {
	t := &teacher{member{id: id, deps: deps, menu: TeacherMenu}}
	review := t.ai(llm.ModeReviewSolution, askReview, TeacherMenu)
	analysis := t.ai(llm.ModeClassAnalysis, askClassAnalysis, TeacherMenu)
	commands := t.base()
	commands[LabelAttachClass] = t.searchClass
	commands[LabelAttachAll] = t.attachAll
	commands[LabelMyStudents] = t.myStudents
	commands[LabelSendTask] = show(homeworkSection, teacherHomeworkMenu)
	commands[LabelSendIndividual] = t.personalTask
	commands[LabelSendClass] = t.classTask
	commands[LabelCheckTasks] = show(checkSection, teacherCheckMenu)
	commands[LabelCheckIndividual] = review
	commands[LabelCheckClass] = analysis
	commands[LabelAIHelper] = show(aiSection, teacherAIMenu)
	commands[LabelGenerateTask] = t.ai(llm.ModeTeacherTask, askTeacherTask, teacherAIMenu)
	commands[LabelGenerateForClass] = t.generateForClass
	commands[LabelAICheck] = review
	commands[LabelProgress] = analysis
	return &table{
		role:     state.Role(profile.RoleTeacher),
		menu:     TeacherMenu,
		commands: commands,
	}
}

// SearchClass asks for city, school and class and keeps the matching students
// in the session for a later "attach all".
func (t *teacher) SearchClass(s *state.Session) state.Definition {
	return state.Definition{
		Name:       ProcSearchClass,
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask_city", askSearchCity),
			state.Check("city", validate.Step(profile.FieldCity, retryCity, validate.City)),
			state.Ask("ask_school", askSearchSchool),
			state.Check("school", validate.Step(profile.FieldSchool, retrySchool, validate.School)),
			state.Ask("ask_class", askSearchClass),
			state.Check("class", validate.Step(profile.FieldStudentClass, retryClass, validate.ClassNumber)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			found, err := t.deps.Profiles.Search(ctx, profile.Criteria{
				Role:         profile.RoleStudent,
				City:         v.String(profile.FieldCity),
				School:       v.Int(profile.FieldSchool),
				StudentClass: v.String(profile.FieldStudentClass),
			})
			if err != nil {
				return err
			}
			delete(s.Data, DataSearch)
			if len(found) == 0 {
				return s.Reply(ctx, state.Reply{Text: nothingFound, Menu: TeacherMenu})
			}
			ids := make([]int64, 0, len(found))
			var b strings.Builder
			for _, r := range found {
				ids = append(ids, r.TelegramID)
				fmt.Fprintf(&b, "%s\n", r.FullName())
			}
			s.Data[DataSearch] = ids
			return s.Reply(ctx, state.Reply{Text: strings.TrimRight(b.String(), "\n"), Menu: teacherAttachMenu})
		},
	}
}

func (t *teacher) searchClass(ctx context.Context, s *state.Session, _ string) error {
	return s.Start(ctx, t.SearchClass(s))
}

func (t *teacher) attachAll(ctx context.Context, s *state.Session, _ string) error {
	ids, _ := s.Data[DataSearch].([]int64)
	if len(ids) == 0 {
		return s.Reply(ctx, state.Reply{Text: searchFirst, Menu: TeacherMenu})
	}
	me, err := t.me(ctx)
	if err != nil {
		return err
	}
	notice := state.Reply{Text: fmt.Sprintf(attachNotice, me.Name, me.Surname)}
	for _, id := range ids {
		created, err := t.deps.Profiles.AddApplication(ctx, int64(t.id), id)
		if err != nil {
			return err
		}
		if created {
			t.deps.notify(ctx, id, notice)
		}
	}
	delete(s.Data, DataSearch)
	return s.Reply(ctx, state.Reply{Text: applicationSent, Menu: TeacherMenu})
}

func (t *teacher) students(ctx context.Context) ([]profile.Record, error) {
	return t.deps.Profiles.ListStudents(ctx, int64(t.id))
}

func (t *teacher) myStudents(ctx context.Context, s *state.Session, _ string) error {
	list, err := t.students(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return s.Reply(ctx, state.Reply{Text: noStudents, Menu: TeacherMenu})
	}
	var b strings.Builder
	b.WriteString(yourStudents)
	for _, r := range list {
		fmt.Fprintf(&b, "• %s (школа №%d, %s класс)\n", r.FullName(), r.School, r.StudentClass)
	}
	return s.Reply(ctx, state.Reply{Text: strings.TrimRight(b.String(), "\n"), Menu: TeacherMenu})
}

// assign stores body for every student and notifies them.
func (t *teacher) assign(ctx context.Context, students []profile.Record, body string) error {
	me, err := t.me(ctx)
	if err != nil {
		return err
	}
	for _, st := range students {
		if _, err := t.deps.Profiles.AddAssignment(ctx, profile.Assignment{
			TeacherID: int64(t.id),
			StudentID: st.TelegramID,
			Body:      body,
		}); err != nil {
			return err
		}
		t.deps.notify(ctx, st.TelegramID, state.Reply{Text: fmt.Sprintf(taskNotice, me.FullName(), body)})
	}
	return nil
}

// ClassTask sends one text to all attached students.
func (t *teacher) ClassTask(s *state.Session, students []profile.Record) state.Definition {
	return state.Definition{
		Name:       ProcClassTask,
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask", askClassTask),
			state.Check("text", validate.Step("text", "", validate.Text)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			if err := t.assign(ctx, students, v.String("text")); err != nil {
				return err
			}
			return s.Reply(ctx, state.Reply{Text: classTaskSaved, Menu: TeacherMenu})
		},
	}
}

// GenerateForClass asks for a topic, generates one task and sends it to all
// attached students.
func (t *teacher) GenerateForClass(s *state.Session, students []profile.Record) state.Definition {
	return state.Definition{
		Name:       ProcGenerateForClass,
		Cancelable: true,
		Steps: []state.Step{
			askHidden("ask", askClassTopic),
			state.Check("text", validate.Step("text", "", validate.Text)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			task, err := t.complete(ctx, llm.ModeTeacherTask, v.String("text"))
			if err != nil {
				return err
			}
			if err := t.assign(ctx, students, task); err != nil {
				return err
			}
			return s.Reply(ctx, state.Reply{Text: task + "\n\n" + classTaskSaved, Menu: TeacherMenu})
		},
	}
}

// PersonalTask picks one attached student by name and sends them a task.
func (t *teacher) PersonalTask(s *state.Session, students []profile.Record) state.Definition {
	labels := studentLabels(students)
	byName := make(map[string]int64, len(students))
	menu := make([][]string, 0, len(students))
	for i, st := range students {
		byName[state.Fold(labels[i])] = st.TelegramID
		menu = append(menu, []string{labels[i]})
	}
	return state.Definition{
		Name:       ProcPersonalTask,
		Cancelable: true,
		Steps: []state.Step{
			state.Ask("ask_student", chooseStudent, menu...),
			state.Check("student", func(_ context.Context, input string, _ state.Values) state.Result {
				id, ok := byName[state.Fold(input)]
				if !ok {
					return state.Retry(unknownStudent)
				}
				return state.Accepted(keyStudent, id)
			}),
			askHidden("ask_text", askPersonalTask),
			state.Check("text", validate.Step("text", "", validate.Text)),
		},
		Complete: func(ctx context.Context, v state.Values) error {
			id := v.Int64(keyStudent)
			var target []profile.Record
			for _, st := range students {
				if st.TelegramID == id {
					target = append(target, st)
				}
			}
			if err := t.assign(ctx, target, v.String("text")); err != nil {
				return err
			}
			return s.Reply(ctx, state.Reply{Text: personalSaved, Menu: TeacherMenu})
		},
	}
}

// studentLabels names students for the pick menu. Names shared by several
// students get the class appended, then a running number if still ambiguous.
func studentLabels(students []profile.Record) []string {
	count := make(map[string]int, len(students))
	for _, st := range students {
		count[state.Fold(st.FullName())]++
	}
	labels := make([]string, len(students))
	seen := make(map[string]int, len(students))
	for i, st := range students {
		label := st.FullName()
		if count[state.Fold(label)] > 1 && st.StudentClass != "" {
			label = fmt.Sprintf("%s (%s)", label, st.StudentClass)
		}
		key := state.Fold(label)
		seen[key]++
		if seen[key] > 1 {
			label = fmt.Sprintf("%s #%d", label, seen[key])
		}
		labels[i] = label
	}
	return labels
}

// withStudents starts the process built by def, or explains there is nobody to send to.
func (t *teacher) withStudents(def func(*state.Session, []profile.Record) state.Definition) state.Handler {
	return func(ctx context.Context, s *state.Session, _ string) error {
		list, err := t.students(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return s.Reply(ctx, state.Reply{Text: noStudents, Menu: TeacherMenu})
		}
		return s.Start(ctx, def(s, list))
	}
}

func (t *teacher) classTask(ctx context.Context, s *state.Session, in string) error {
	return t.withStudents(t.ClassTask)(ctx, s, in)
}

func (t *teacher) personalTask(ctx context.Context, s *state.Session, in string) error {
	return t.withStudents(t.PersonalTask)(ctx, s, in)
}

func (t *teacher) generateForClass(ctx context.Context, s *state.Session, in string) error {
	return t.withStudents(t.GenerateForClass)(ctx, s, in)
}
