package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootListsSubcommands(t *testing.T) {
	out, err := execArgs(t, "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"run", "migrate", "content", "version"} {
		if !strings.Contains(out, name) {
			t.Fatalf("help does not list %q:\n%s", name, out)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execArgs(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "tutorbot ") || !strings.Contains(out, "(commit: ") {
		t.Fatalf("version output = %q", out)
	}
}

func TestContentCheck(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "square.pdf"), []byte("%PDF"), 0o600); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	good := filepath.Join(dir, "good.yaml")
	body := "entries:\n  - keys: [квадрат суммы]\n    documents: [square.pdf]\n"
	if err := os.WriteFile(good, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	out, err := execArgs(t, "content", "check", good)
	if err != nil {
		t.Fatalf("check good catalog: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 topics ok") {
		t.Fatalf("output = %q", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	body = "entries:\n  - keys: [куб суммы]\n    documents: [cube.pdf]\n"
	if err := os.WriteFile(bad, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	out, err = execArgs(t, "content", "check", bad)
	if err == nil {
		t.Fatal("expected error for missing document")
	}
	if !strings.Contains(out, "cube.pdf") {
		t.Fatalf("missing document not reported: %q", out)
	}
}

func TestMigrateMemoryDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, err := execArgs(t, "migrate", "--config", path)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "nothing to migrate") {
		t.Fatalf("output = %q", out)
	}
}
