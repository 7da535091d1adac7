package bootstrap

import (
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/tutorbot/core/config"
	coredatabase "github.com/m3rciful/tutorbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemoryDriverSkipsDatabase(t *testing.T) {
	res, err := Run(Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverMemory},
		LoggerInit: noLogger,
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			t.Fatal("connect must not be called for memory driver")
			return nil, nil
		},
		Migrate: func(coredatabase.Config) error {
			t.Fatal("migrate must not be called for memory driver")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.DB != nil || res.Driver != coredatabase.DriverMemory {
		t.Fatalf("unexpected result: %+v", res)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRunStopsOnMigrationError(t *testing.T) {
	boom := errors.New("boom")
	connected := false
	_, err := Run(Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: "x.db"},
		LoggerInit: noLogger,
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			connected = true
			return nil, nil
		},
		Migrate: func(coredatabase.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if connected {
		t.Fatal("connect should not run after a failed migration")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if _, err := Run(Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
