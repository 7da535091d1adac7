package roles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"

	"github.com/m3rciful/tutorbot/app/llm"
	"github.com/m3rciful/tutorbot/app/profile"
	"github.com/m3rciful/tutorbot/core/telegram/state"
)

func TestMain(m *testing.M) {
	profile.HashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type mailbox struct {
	mu  sync.Mutex
	got map[state.Identity][]state.Reply
}

func (m *mailbox) Send(_ context.Context, to state.Identity, r state.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.got == nil {
		m.got = map[state.Identity][]state.Reply{}
	}
	m.got[to] = append(m.got[to], r)
	return nil
}

func (m *mailbox) all(id state.Identity) []state.Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.Reply(nil), m.got[id]...)
}

func (m *mailbox) last(id state.Identity) state.Reply {
	rs := m.all(id)
	if len(rs) == 0 {
		return state.Reply{}
	}
	return rs[len(rs)-1]
}

type fixture struct {
	store *profile.MemoryStore
	box   *mailbox
	reg   *state.Registry
	deps  Deps
}

func newFixture(t *testing.T, completer llm.Completer) *fixture {
	t.Helper()
	f := &fixture{
		store: profile.NewMemoryStore(),
		box:   &mailbox{},
		reg:   state.NewRegistry(state.Options{}),
	}
	f.deps = Deps{Profiles: f.store, LLM: completer, Notify: f.box}
	return f
}

func (f *fixture) session(t *testing.T, id state.Identity) *state.Session {
	t.Helper()
	role, err := profile.RoleOf(context.Background(), f.store, int64(id))
	if err != nil {
		t.Fatalf("role: %v", err)
	}
	s := f.reg.Get(id)
	s.Bind(f.box)
	s.EnsureRole(state.Role(role), func() state.CommandSet { return New(role, id, f.deps) })
	return s
}

func (f *fixture) run(t *testing.T, s *state.Session, command string, inputs ...string) {
	t.Helper()
	ctx := context.Background()
	h, ok := s.Commands().Lookup(command)
	if !ok {
		t.Fatalf("command %q not found for %s", command, s.Role())
	}
	if err := h(ctx, s, command); err != nil {
		t.Fatalf("command %q: %v", command, err)
	}
	for _, in := range inputs {
		if err := s.Continue(ctx, in); err != nil {
			t.Fatalf("input %q: %v", in, err)
		}
	}
}

func (f *fixture) student(t *testing.T, id int64, name, surname, class string) {
	t.Helper()
	err := f.store.CreateProfile(context.Background(), id, profile.NewProfile{
		Role: profile.RoleStudent, Name: name, Surname: surname, Password: "1234",
		City: "Москва", School: 5, StudentClass: class,
	})
	if err != nil {
		t.Fatalf("create student: %v", err)
	}
}

func (f *fixture) teacher(t *testing.T, id int64) {
	t.Helper()
	err := f.store.CreateProfile(context.Background(), id, profile.NewProfile{
		Role: profile.RoleTeacher, Name: "Анна", Surname: "Смирнова", Password: "4321",
		Ref: TeacherRef(state.Identity(id)),
	})
	if err != nil {
		t.Fatalf("create teacher: %v", err)
	}
}

func TestNewPicksTableByRole(t *testing.T) {
	deps := Deps{Profiles: profile.NewMemoryStore()}
	cases := map[profile.Role]string{
		profile.RoleGuest:   LabelRegisterStudent,
		profile.RoleStudent: LabelApplications,
		profile.RoleTeacher: LabelAttachClass,
		"unknown":           LabelRegisterTeacher,
	}
	for role, label := range cases {
		set := New(role, 7, deps)
		if _, ok := set.Lookup(label); !ok {
			t.Fatalf("%s: %q not registered", role, label)
		}
	}
	if _, ok := New(profile.RoleGuest, 7, deps).Lookup(LabelProfile); ok {
		t.Fatalf("guest must not see profile")
	}
	if _, ok := New(profile.RoleStudent, 7, deps).Action(ActionAccept); !ok {
		t.Fatalf("student accept action missing")
	}
}

func TestStudentRegistration(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t, 1)
	f.run(t, s, "Зарегестрироваться как ученик", "Иван", "Петров", "1234", "Москва", "школа 5", "9а")

	rec, err := f.store.GetProfile(context.Background(), 1)
	if err != nil {
		t.Fatalf("profile not created: %v", err)
	}
	want := profile.Record{
		TelegramID: 1, Role: profile.RoleStudent, Name: "Иван", Surname: "Петров",
		City: "Москва", School: 5, StudentClass: "9а",
	}
	rec.PasswordHash, want.PasswordHash = "", ""
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if s.Active() {
		t.Fatalf("process still active")
	}
	if got := f.box.last(1); got.Text != registeredStudent {
		t.Fatalf("last reply = %q", got.Text)
	}
}

func TestRegistrationRetriesInvalidName(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t, 1)
	f.run(t, s, LabelRegisterTeacher, "Ivan")
	rs := f.box.all(1)
	if len(rs) != 3 {
		t.Fatalf("replies = %d, want 3", len(rs))
	}
	if rs[1].Text != retryName || rs[2].Text != askName {
		t.Fatalf("retry replies = %q, %q", rs[1].Text, rs[2].Text)
	}
	if s.Process().Cursor() != 1 {
		t.Fatalf("cursor = %d, want 1", s.Process().Cursor())
	}
}

func TestTeacherRegistrationStoresRef(t *testing.T) {
	f := newFixture(t, nil)
	s := f.session(t, 55)
	f.run(t, s, LabelRegisterTeacher, "Анна", "Смирнова", "4321")
	rec, err := f.store.GetProfile(context.Background(), 55)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Role != profile.RoleTeacher || rec.Ref != "tg://user?id=55" {
		t.Fatalf("record = %+v", rec)
	}
}

func TestDeleteProfileWrongThenRight(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, 1, "Иван", "Петров", "9а")
	s := f.session(t, 1)
	f.run(t, s, LabelDeleteProfile, "0000")

	if _, err := f.store.GetProfile(context.Background(), 1); err != nil {
		t.Fatalf("profile deleted after wrong password: %v", err)
	}
	rs := f.box.all(1)
	if rs[len(rs)-2].Text != wrongPassword || rs[len(rs)-1].Text != askDeletePassword {
		t.Fatalf("unexpected retry replies: %+v", rs[len(rs)-2:])
	}

	if err := s.Continue(context.Background(), "1234"); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if _, err := f.store.GetProfile(context.Background(), 1); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("profile still present: %v", err)
	}
	if got := f.box.last(1); got.Text != profileDeleted {
		t.Fatalf("last reply = %q", got.Text)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, nil)
	f.student(t, 1, "Иван", "Петров", "9а")
	s := f.session(t, 1)
	f.run(t, s, LabelChangePassword, "1234", "12", "5678")
	rec, _ := f.store.GetProfile(context.Background(), 1)
	if !rec.CheckPassword("5678") {
		t.Fatalf("password not updated")
	}
	if got := f.box.last(1); got.Text != passwordChanged {
		t.Fatalf("last reply = %q", got.Text)
	}
}

func TestSearchAttachAndAccept(t *testing.T) {
	f := newFixture(t, nil)
	f.teacher(t, 10)
	f.student(t, 1, "Иван", "Петров", "9а")
	f.student(t, 2, "Олег", "Антонов", "9а")
	f.student(t, 3, "Пётр", "Сидоров", "9б")

	ts := f.session(t, 10)
	f.run(t, ts, LabelAttachClass, "москва", "5", "9А")
	if got := f.box.last(10); got.Text != "Олег Антонов\nИван Петров" {
		t.Fatalf("search reply = %q", got.Text)
	}
	f.run(t, ts, LabelAttachAll)
	if got := f.box.last(10).Text; got != applicationSent {
		t.Fatalf("attach reply = %q", got)
	}
	notice := fmt.Sprintf(attachNotice, "Анна", "Смирнова")
	for _, id := range []state.Identity{1, 2} {
		if got := f.box.last(id).Text; got != notice {
			t.Fatalf("student %d notice = %q", id, got)
		}
	}
	if len(f.box.all(3)) != 0 {
		t.Fatalf("student outside the class was notified")
	}

	ss := f.session(t, 1)
	f.run(t, ss, LabelApplications)
	inline := f.box.last(1).Inline
	if len(inline) != 1 || inline[0][0].Unique != ActionAccept || inline[0][0].Data != "10" {
		t.Fatalf("inline = %+v", inline)
	}
	h, _ := ss.Commands().Action(ActionAccept)
	if err := h(context.Background(), ss, "10"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := f.box.last(1).Text; got != applicationOK {
		t.Fatalf("accept reply = %q", got)
	}
	if got := f.box.last(10).Text; got != "Иван Петров из школы №5 класса 9а принял заявку" {
		t.Fatalf("teacher notice = %q", got)
	}
	if err := h(context.Background(), ss, "10"); err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if got := f.box.last(1).Text; got != applicationMissing {
		t.Fatalf("repeated accept reply = %q", got)
	}

	f.run(t, ts, LabelMyStudents)
	if got := f.box.last(10).Text; got != "Ваши ученики:\n\n• Иван Петров (школа №5, 9а класс)" {
		t.Fatalf("students = %q", got)
	}
	f.run(t, ss, LabelMyTeachers)
	if got := f.box.last(1).Text; got != "Ваши учителя:\n\n• Анна Смирнова" {
		t.Fatalf("teachers = %q", got)
	}
}

func TestAttachAllWithoutSearch(t *testing.T) {
	f := newFixture(t, nil)
	f.teacher(t, 10)
	f.run(t, f.session(t, 10), LabelAttachAll)
	if got := f.box.last(10).Text; got != searchFirst {
		t.Fatalf("reply = %q", got)
	}
}

func link(t *testing.T, f *fixture, teacherID, studentID int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.AddApplication(ctx, teacherID, studentID); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := f.store.AcceptApplication(ctx, studentID, teacherID); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestPersonalTaskReachesStudent(t *testing.T) {
	f := newFixture(t, nil)
	f.teacher(t, 10)
	f.student(t, 1, "Иван", "Петров", "9а")
	link(t, f, 10, 1)

	ts := f.session(t, 10)
	f.run(t, ts, LabelSendIndividual)
	if diff := cmp.Diff([][]string{{"Иван Петров"}}, f.box.last(10).Menu); diff != "" {
		t.Fatalf("student menu mismatch (-want +got):\n%s", diff)
	}
	for _, in := range []string{"Кто-то другой", "иван петров", "Решите уравнение x^2=4"} {
		if err := ts.Continue(context.Background(), in); err != nil {
			t.Fatalf("input %q: %v", in, err)
		}
	}
	if got := f.box.last(10).Text; got != personalSaved {
		t.Fatalf("teacher reply = %q", got)
	}
	list, err := f.store.ListAssignments(context.Background(), 1)
	if err != nil || len(list) != 1 || list[0].Body != "Решите уравнение x^2=4" {
		t.Fatalf("assignments = %+v, %v", list, err)
	}
	if got := f.box.last(1).Text; got != fmt.Sprintf(taskNotice, "Анна Смирнова", "Решите уравнение x^2=4") {
		t.Fatalf("student notice = %q", got)
	}

	f.run(t, f.session(t, 1), LabelGetTasks)
	if got := f.box.last(1).Text; got != "Ваши задания:\n\n1. Анна Смирнова: Решите уравнение x^2=4" {
		t.Fatalf("tasks = %q", got)
	}
}

func TestClassTaskWithoutStudents(t *testing.T) {
	f := newFixture(t, nil)
	f.teacher(t, 10)
	ts := f.session(t, 10)
	f.run(t, ts, LabelSendClass)
	if ts.Active() {
		t.Fatalf("process started without students")
	}
	if got := f.box.last(10).Text; got != noStudents {
		t.Fatalf("reply = %q", got)
	}
}

func TestSubmitSolutionForwardsToTeachers(t *testing.T) {
	f := newFixture(t, nil)
	f.teacher(t, 10)
	f.student(t, 1, "Иван", "Петров", "9а")
	link(t, f, 10, 1)
	f.run(t, f.session(t, 1), LabelSubmitSolution, "x = 2")
	if got := f.box.last(10).Text; got != fmt.Sprintf(solutionNotice, "Иван Петров", "9а", "x = 2") {
		t.Fatalf("teacher got %q", got)
	}
	if got := f.box.last(1).Text; got != solutionSent {
		t.Fatalf("student got %q", got)
	}
}

func TestAIModeUsesPromptTemplate(t *testing.T) {
	var prompts []string
	completer := llm.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "ответ", nil
	})
	f := newFixture(t, completer)
	f.student(t, 1, "Иван", "Петров", "9а")
	s := f.session(t, 1)
	f.run(t, s, LabelExplain, "Производная")

	if diff := cmp.Diff([]string{llm.Prompt(llm.ModeExplain, "Производная")}, prompts); diff != "" {
		t.Fatalf("prompts mismatch (-want +got):\n%s", diff)
	}
	got := f.box.last(1)
	if got.Text != "ответ" {
		t.Fatalf("answer = %q", got.Text)
	}
	if diff := cmp.Diff(studentAIMenu, got.Menu); diff != "" {
		t.Fatalf("menu mismatch (-want +got):\n%s", diff)
	}
}

func TestAIModeCancelAndFailure(t *testing.T) {
	calls := 0
	completer := llm.CompleterFunc(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("backend down")
	})
	f := newFixture(t, completer)
	f.teacher(t, 10)
	s := f.session(t, 10)

	f.run(t, s, LabelGenerateTask)
	if !s.CheckCancel(context.Background(), "Отмена") {
		t.Fatalf("cancel not consumed")
	}
	if calls != 0 || s.Active() {
		t.Fatalf("calls = %d active = %v", calls, s.Active())
	}

	f.run(t, s, LabelAICheck, "решение")
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if s.Active() {
		t.Fatalf("failed process left active")
	}
	if got := f.box.last(10).Text; got != "Произошла внутренняя ошибка обработки сообщения" {
		t.Fatalf("reply = %q", got)
	}
}

type flakyStore struct {
	*profile.MemoryStore
	failGet bool
}

func (s *flakyStore) GetProfile(ctx context.Context, id int64) (profile.Record, error) {
	if s.failGet {
		return profile.Record{}, errors.New("storage unavailable")
	}
	return s.MemoryStore.GetProfile(ctx, id)
}

func TestPasswordCheckStorageFailureAborts(t *testing.T) {
	for _, label := range []string{LabelDeleteProfile, LabelChangePassword} {
		f := newFixture(t, nil)
		f.student(t, 1, "Иван", "Петров", "9а")
		store := &flakyStore{MemoryStore: f.store}
		f.deps.Profiles = store
		s := f.session(t, 1)
		f.run(t, s, label)

		store.failGet = true
		if err := s.Continue(context.Background(), "1234"); err != nil {
			t.Fatalf("%s: continue: %v", label, err)
		}
		if s.Active() {
			t.Fatalf("%s: process left active after storage failure", label)
		}
		if got := f.box.last(1).Text; got != "Произошла внутренняя ошибка обработки сообщения" {
			t.Fatalf("%s: reply = %q", label, got)
		}
		for _, r := range f.box.all(1) {
			if r.Text == wrongPassword {
				t.Fatalf("%s: storage failure reported as wrong password", label)
			}
		}
		if _, err := f.store.GetProfile(context.Background(), 1); err != nil {
			t.Fatalf("%s: profile touched: %v", label, err)
		}
	}
}

func TestStudentLabelsDisambiguateNamesakes(t *testing.T) {
	students := []profile.Record{
		{TelegramID: 1, Name: "Иван", Surname: "Петров", StudentClass: "9а"},
		{TelegramID: 2, Name: "Иван", Surname: "Петров", StudentClass: "9б"},
		{TelegramID: 3, Name: "Иван", Surname: "Петров", StudentClass: "9б"},
		{TelegramID: 4, Name: "Олег", Surname: "Антонов", StudentClass: "9а"},
	}
	want := []string{"Иван Петров (9а)", "Иван Петров (9б)", "Иван Петров (9б) #2", "Олег Антонов"}
	if diff := cmp.Diff(want, studentLabels(students)); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestPersonalTaskPicksNamesakeByClass(t *testing.T) {
	f := newFixture(t, nil)
	f.teacher(t, 10)
	f.student(t, 1, "Иван", "Петров", "9а")
	f.student(t, 2, "Иван", "Петров", "9б")
	link(t, f, 10, 1)
	link(t, f, 10, 2)

	ts := f.session(t, 10)
	f.run(t, ts, LabelSendIndividual, "иван петров (9б)", "Решите уравнение x+1=3")

	if list, _ := f.store.ListAssignments(context.Background(), 1); len(list) != 0 {
		t.Fatalf("task reached the wrong student: %+v", list)
	}
	list, err := f.store.ListAssignments(context.Background(), 2)
	if err != nil || len(list) != 1 {
		t.Fatalf("assignments = %+v, %v", list, err)
	}
}
