package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/tutorbot/core/logger"
)

// RunMigrations applies the up migrations of cfg's driver, resolving the
// directory against the working directory.
func RunMigrations(cfg Config) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("migrate: working directory: %w", err)
	}
	return RunMigrationsFrom(cfg, cfg.Migrations(cwd))
}

// RunMigrationsFrom applies every up migration found in dir.
func RunMigrationsFrom(cfg Config, dir string) error {
	ctx := logger.Background()
	switch cfg.driverName() {
	case DriverMemory:
		logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "migrate.summary",
			slog.String("status", "skip"),
			slog.String("driver", cfg.Driver),
		)
		return nil
	case DriverPostgres:
		if err := waitReady(ctx, cfg, readyTimeout); err != nil {
			logger.LogEvent(ctx, logger.MIG, slog.LevelError, "migrate.wait",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("migrate: %w", err)
		}
	}

	files := upFiles(dir)
	if preview, truncated := logger.SummarizeStrings(files, 6); preview != "" {
		logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "migrate.resolve",
			slog.String("path", dir),
			slog.Int("count", len(files)),
			slog.String("files", preview),
			slog.Bool("truncated", truncated),
		)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.MigrateURL())
	if err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "migrate.init",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrate: init: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.LogEvent(ctx, logger.MIG, slog.LevelWarn, "migrate.close",
				slog.String("err", errors.Join(srcErr, dbErr).Error()),
			)
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.RoundMS(time.Since(start))
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "migrate.apply",
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migrate: apply: %w", upErr)
	}

	to, _, _ := m.Version()
	applied := between(files, uint64(from), uint64(to))
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("count", len(applied)),
		slog.Duration("duration", took),
	}
	if preview, _ := logger.SummarizeStrings(applied, 6); preview != "" {
		attrs = append(attrs, slog.String("files", preview))
	}
	logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "migrate.summary", attrs...)
	return nil
}

// upFiles lists the *.up.sql files in dir sorted by name.
func upFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// between returns the files whose version is in (from, to].
func between(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
