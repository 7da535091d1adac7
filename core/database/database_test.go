package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{Host: "db", Name: "tutor"}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Driver != DriverPostgres || cfg.Port != "5432" || cfg.SSLMode != "disable" || cfg.MaxConnections != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	lite := Config{Driver: "SQLite", Path: "bot.db", MaxConnections: 8}
	if err := lite.Normalize(); err != nil {
		t.Fatalf("normalize sqlite: %v", err)
	}
	if lite.MaxConnections != 1 {
		t.Fatalf("sqlite pool = %d, want 1", lite.MaxConnections)
	}

	if err := (&Config{Driver: "mongo"}).Normalize(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if err := (&Config{Driver: DriverSQLite}).Normalize(); err == nil {
		t.Fatal("expected error for sqlite without path")
	}
}

func TestMigrationsDirResolution(t *testing.T) {
	cfg := Config{Driver: DriverSQLite}
	if got, want := cfg.Migrations("/srv/bot"), filepath.Join("/srv/bot", "migrations", "sqlite"); got != want {
		t.Fatalf("migrations = %s, want %s", got, want)
	}
	cfg.MigrationsDir = "db/sql"
	if got, want := cfg.Migrations("/srv/bot"), filepath.Join("/srv/bot", "db/sql"); got != want {
		t.Fatalf("migrations = %s, want %s", got, want)
	}
}

func TestBetween(t *testing.T) {
	files := []string{"0001_init.up.sql", "0002_assignments.up.sql", "0003_more.up.sql", "notes.up.sql"}
	if got := between(files, 1, 3); len(got) != 2 || got[0] != "0002_assignments.up.sql" {
		t.Fatalf("between(1, 3) = %v", got)
	}
	if got := between(files, 3, 3); len(got) != 0 {
		t.Fatalf("between(3, 3) = %v", got)
	}
}

func TestUpFilesSkipsDownAndDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.up.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got := upFiles(dir)
	if len(got) != 2 || got[0] != "0001_a.up.sql" || got[1] != "0002_b.up.sql" {
		t.Fatalf("upFiles = %v", got)
	}
}

func TestSQLiteConnectAndMigrate(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "bot.db")}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	dir, err := filepath.Abs(filepath.Join("..", "..", "migrations", "sqlite"))
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	if err := RunMigrationsFrom(cfg, dir); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// second run is a no-op
	if err := RunMigrationsFrom(cfg, dir); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	var tables int
	if err := db.Get(&tables, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'applications', 'teacher_students', 'assignments')`); err != nil {
		t.Fatalf("query: %v", err)
	}
	if tables != 4 {
		t.Fatalf("tables = %d, want 4", tables)
	}
}
