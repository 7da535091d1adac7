package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/m3rciful/tutorbot/core/telegram/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sample = `
entries:
  - keys: ["Алгебра"]
    text: "Выберите раздел"
    menu: [["уравнения", "неравенства"], ["главная"]]
  - keys: ["квадрат суммы", "Квадрат суммы (формула)"]
    text: "Квадрат суммы"
    documents: ["docs/square.pdf"]
  - keys: ["геометрия"]
    text: "пока недоступно"
`

func TestParseFoldsKeysAndResolvesDocuments(t *testing.T) {
	c, err := Parse([]byte(sample), "/srv/content")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("entries = %d, want 3", c.Len())
	}
	e, ok := c.Lookup(state.Fold("  АЛГЕБРА "))
	if !ok {
		t.Fatalf("algebra not found")
	}
	if diff := cmp.Diff([][]string{{"уравнения", "неравенства"}, {"главная"}}, e.Menu); diff != "" {
		t.Fatalf("menu mismatch (-want +got):\n%s", diff)
	}
	e, ok = c.Lookup("квадрат суммы (формула)")
	if !ok {
		t.Fatalf("alias not found")
	}
	if diff := cmp.Diff([]string{filepath.Join("/srv/content", "docs/square.pdf")}, e.Documents); diff != "" {
		t.Fatalf("documents mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Lookup("тригонометрия"); ok {
		t.Fatalf("unexpected match")
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"duplicate": "entries:\n  - keys: [a]\n    text: x\n  - keys: [A]\n    text: y\n",
		"no keys":   "entries:\n  - text: x\n",
		"empty":     "entries:\n  - keys: [a]\n",
		"yaml":      "entries: [",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in), ""); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEntryReplies(t *testing.T) {
	e := Entry{Text: "t", Menu: [][]string{{"m"}}, Documents: []string{"a.pdf"}}
	want := []state.Reply{{Text: "t", Menu: [][]string{{"m"}}}, {Document: "a.pdf"}}
	if diff := cmp.Diff(want, e.Replies()); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}
	docOnly := Entry{Menu: [][]string{{"m"}}, Documents: []string{"a.pdf"}}
	want = []state.Reply{{Document: "a.pdf", Menu: [][]string{{"m"}}}}
	if diff := cmp.Diff(want, docOnly.Replies()); diff != "" {
		t.Fatalf("document replies mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theory.yaml")
	writeFile(t, path, sample)
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	writeFile(t, path, "entries: [")
	if err := s.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if _, ok := s.Lookup("алгебра"); !ok {
		t.Fatalf("previous catalog lost")
	}
	writeFile(t, path, "entries:\n  - keys: [тригонометрия]\n    text: скоро\n")
	if err := s.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := s.Lookup("алгебра"); ok {
		t.Fatalf("stale entry survived reload")
	}
	if s.Reloads() != 1 {
		t.Fatalf("reloads = %d, want 1", s.Reloads())
	}
}

func TestStoreWithoutPathIsEmpty(t *testing.T) {
	s, err := NewStore("")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := s.Lookup("алгебра"); ok {
		t.Fatalf("empty store matched")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theory.yaml")
	writeFile(t, path, sample)
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("watch: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		writeFile(t, path, strings.Replace(sample, "пока недоступно", "скоро", 1))
		time.Sleep(300 * time.Millisecond)
		if e, ok := s.Lookup("геометрия"); ok && e.Text == "скоро" {
			return
		}
	}
	t.Fatalf("catalog was not reloaded")
}

func TestMissingDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "docs", "square.pdf"), "%PDF")
	c, err := Parse([]byte(sample+"  - keys: [x]\n    documents: [docs/none.pdf]\n"), dir)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(dir, "docs/none.pdf")}, c.MissingDocuments()); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
