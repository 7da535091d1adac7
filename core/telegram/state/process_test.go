package state

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	replies []Reply
	err     error
}

func (r *recorder) Reply(_ context.Context, reply Reply) error {
	if r.err != nil {
		return r.err
	}
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recorder) texts() []string {
	out := make([]string, 0, len(r.replies))
	for _, rep := range r.replies {
		out = append(out, rep.Text)
	}
	return out
}

func (r *recorder) last() string {
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1].Text
}

func nonEmpty(key, hint string) ValidateFunc {
	return func(_ context.Context, input string, _ Values) Result {
		if strings.TrimSpace(input) == "" || strings.ContainsAny(input, "0123456789") {
			return Retry(hint)
		}
		return Accepted(key, input)
	}
}

// chain builds n (Prompt, Validate) pairs and counts completion calls.
func chain(n int, commits *[]Values) Definition {
	steps := make([]Step, 0, 2*n)
	for i := 0; i < n; i++ {
		key := string(rune('a' + i))
		steps = append(steps,
			Ask("ask_"+key, "question "+key),
			Check("check_"+key, nonEmpty(key, "bad "+key)),
		)
	}
	return Definition{
		Name:       "chain",
		Steps:      steps,
		Cancelable: true,
		Complete: func(_ context.Context, v Values) error {
			*commits = append(*commits, v)
			return nil
		},
	}
}

func TestStartRunsLeadingPrompts(t *testing.T) {
	out := &recorder{}
	def := Definition{
		Name: "intro",
		Steps: []Step{
			Ask("hello", "hello"),
			Ask("first", "first question"),
			Check("first", nonEmpty("first", "")),
		},
	}
	p := NewProcess(def, out)
	if p.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle", p.Status())
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if diff := cmp.Diff([]string{"hello", "first question"}, out.texts()); diff != "" {
		t.Fatalf("prompts (-want +got):\n%s", diff)
	}
	if !p.Active() || p.Cursor() != 2 || p.Status() != StatusRunning {
		t.Fatalf("active=%v cursor=%d status=%s", p.Active(), p.Cursor(), p.Status())
	}
}

func TestCompletionCommitsOnce(t *testing.T) {
	for _, n := range []int{1, 3, 6} {
		var commits []Values
		out := &recorder{}
		p := NewProcess(chain(n, &commits), out)
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		for i := 0; i < n; i++ {
			if len(commits) != 0 {
				t.Fatalf("n=%d: committed before the last answer", n)
			}
			p.UpdateInput("answer")
			if err := p.Execute(context.Background()); err != nil {
				t.Fatalf("n=%d step %d: %v", n, i, err)
			}
		}
		if p.Active() || p.Status() != StatusCompleted {
			t.Fatalf("n=%d: active=%v status=%s", n, p.Active(), p.Status())
		}
		if len(commits) != 1 {
			t.Fatalf("n=%d: commits = %d, want 1", n, len(commits))
		}
		if len(commits[0]) != n {
			t.Fatalf("n=%d: collected %d entries", n, len(commits[0]))
		}
		if err := p.Execute(context.Background()); !errors.Is(err, ErrNotActive) {
			t.Fatalf("execute after completion: %v", err)
		}
	}
}

func TestRetryKeepsCursorAndReasks(t *testing.T) {
	var commits []Values
	out := &recorder{}
	p := NewProcess(chain(3, &commits), out)
	_ = p.Start(context.Background())

	p.UpdateInput("ok")
	_ = p.Execute(context.Background())
	cursor := p.Cursor()
	before := p.Collected()
	asked := out.last()

	p.UpdateInput("123")
	if err := p.Execute(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if p.Cursor() != cursor {
		t.Fatalf("cursor moved from %d to %d", cursor, p.Cursor())
	}
	if diff := cmp.Diff(before, p.Collected()); diff != "" {
		t.Fatalf("collected changed (-before +after):\n%s", diff)
	}
	texts := out.texts()
	if got := texts[len(texts)-2:]; got[0] != "bad b" || got[1] != asked {
		t.Fatalf("retry replies = %v, want [bad b %s]", got, asked)
	}
	if !p.Active() {
		t.Fatal("process should stay active after retry")
	}
}

func TestCancelAtAnyStepDiscards(t *testing.T) {
	const n = 4
	for i := 0; i < n; i++ {
		var commits []Values
		p := NewProcess(chain(n, &commits), &recorder{})
		_ = p.Start(context.Background())
		for j := 0; j < i; j++ {
			p.UpdateInput("ok")
			_ = p.Execute(context.Background())
		}
		if !p.UpdateInput("  ОТМЕНА ") {
			t.Fatalf("step %d: cancel keyword not recognized", i)
		}
		if p.Active() || p.Cursor() != 0 || len(p.Collected()) != 0 || p.Status() != StatusCancelled {
			t.Fatalf("step %d: active=%v cursor=%d collected=%v", i, p.Active(), p.Cursor(), p.Collected())
		}
		if len(commits) != 0 {
			t.Fatalf("step %d: committed after cancel", i)
		}
	}
}

func TestNonCancelableTreatsKeywordAsInput(t *testing.T) {
	var got string
	def := Definition{
		Name:  "strict",
		Steps: []Step{Ask("q", "q"), Check("q", func(_ context.Context, in string, _ Values) Result { got = in; return Accepted("q", in) })},
	}
	p := NewProcess(def, &recorder{})
	_ = p.Start(context.Background())
	if p.UpdateInput("отмена") {
		t.Fatal("non-cancelable process was cancelled")
	}
	_ = p.Execute(context.Background())
	if got != "отмена" {
		t.Fatalf("validator saw %q", got)
	}
}

func TestCustomCancelKeyword(t *testing.T) {
	var commits []Values
	p := NewProcess(chain(1, &commits), &recorder{}, WithCancelKeyword("Стоп"))
	_ = p.Start(context.Background())
	if p.UpdateInput("отмена") {
		t.Fatal("default keyword should not cancel when overridden")
	}
	p2 := NewProcess(chain(1, &commits), &recorder{}, WithCancelKeyword("Стоп"))
	_ = p2.Start(context.Background())
	if !p2.UpdateInput("стоп") {
		t.Fatal("custom keyword not recognized")
	}
}

func TestCompletionFailureAborts(t *testing.T) {
	boom := errors.New("storage down")
	def := Definition{
		Name:     "failing",
		Steps:    []Step{Ask("q", "q"), Check("q", nonEmpty("q", ""))},
		Complete: func(context.Context, Values) error { return boom },
	}
	p := NewProcess(def, &recorder{})
	_ = p.Start(context.Background())
	p.UpdateInput("x")
	err := p.Execute(context.Background())

	var stepErr *StepError
	if !errors.As(err, &stepErr) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want StepError wrapping %v", err, boom)
	}
	if stepErr.Step != "complete" || stepErr.Process != "failing" {
		t.Fatalf("step error = %+v", stepErr)
	}
	if p.Active() || p.Status() != StatusAborted || len(p.Collected()) != 0 {
		t.Fatalf("active=%v status=%s collected=%v", p.Active(), p.Status(), p.Collected())
	}
}

func TestValidateFailureAbortsWithoutRetry(t *testing.T) {
	boom := errors.New("lookup failed")
	commits := 0
	def := Definition{
		Name: "lookup",
		Steps: []Step{
			Ask("q", "question"),
			Check("q", func(context.Context, string, Values) Result { return Fail(boom) }),
		},
		Complete: func(context.Context, Values) error { commits++; return nil },
	}
	out := &recorder{}
	p := NewProcess(def, out)
	_ = p.Start(context.Background())
	p.UpdateInput("x")
	err := p.Execute(context.Background())

	var stepErr *StepError
	if !errors.As(err, &stepErr) || !errors.Is(err, boom) || stepErr.Step != "q" {
		t.Fatalf("err = %v, want StepError at q wrapping %v", err, boom)
	}
	if p.Active() || p.Status() != StatusAborted || commits != 0 {
		t.Fatalf("active=%v status=%s commits=%d", p.Active(), p.Status(), commits)
	}
	if diff := cmp.Diff([]string{"question"}, out.texts()); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingHandlerIsReported(t *testing.T) {
	p := NewProcess(Definition{Name: "broken", Steps: []Step{{Kind: Validate, Name: "x"}}}, &recorder{})
	_ = p.Start(context.Background())
	p.UpdateInput("x")
	if err := p.Execute(context.Background()); !errors.Is(err, ErrMissingHandler) {
		t.Fatalf("err = %v, want ErrMissingHandler", err)
	}
}

func TestPromptSeesCollectedValues(t *testing.T) {
	out := &recorder{}
	def := Definition{
		Name: "greet",
		Steps: []Step{
			Ask("name", "name?"),
			Check("name", nonEmpty("name", "")),
			AskFunc("confirm", func(_ context.Context, v Values) (Reply, error) {
				return Reply{Text: "hi " + v.String("name")}, nil
			}),
			Check("confirm", func(context.Context, string, Values) Result { return Accepted("", nil) }),
		},
	}
	p := NewProcess(def, out)
	_ = p.Start(context.Background())
	p.UpdateInput("Ann")
	_ = p.Execute(context.Background())
	if out.last() != "hi Ann" {
		t.Fatalf("last reply = %q", out.last())
	}
	p.UpdateInput("yes")
	_ = p.Execute(context.Background())
	if _, ok := p.Collected()[""]; ok {
		t.Fatal("empty key must not be stored")
	}
}

func TestFold(t *testing.T) {
	if got := Fold("  Ёлка ПРОФИЛЬ "); got != "елка профиль" {
		t.Fatalf("Fold = %q", got)
	}
}
