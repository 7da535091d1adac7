package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/tutorbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	readyTimeout   = 30 * time.Second
	readyInterval  = 2 * time.Second
)

// Connect opens and pings the database and sizes the pool from cfg.
func Connect(cfg Config) (*sqlx.DB, error) {
	if cfg.Driver == DriverMemory {
		return nil, fmt.Errorf("db connect: driver %q has no connection", cfg.Driver)
	}
	ctx, cancel := context.WithTimeout(logger.Background(), connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, cfg.driverName(), cfg.DSN())
	attrs := append(cfg.logAttrs(), slog.Duration("duration", logger.RoundMS(time.Since(start))))
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := max(cfg.MaxConnections, 1)
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		append(attrs, slog.String("status", "ok"), slog.Int("pool_open", pool))...)
	return db, nil
}

// waitReady pings the server until it answers or timeout passes. Postgres in
// a fresh container accepts connections a few seconds after it starts.
func waitReady(ctx context.Context, cfg Config, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for attempt := 1; ; attempt++ {
		db, err := sqlx.Open(cfg.driverName(), cfg.DSN())
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
		}
		if err == nil {
			return nil
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait",
			append(cfg.logAttrs(), slog.Int("attempts", attempt), slog.String("err", err.Error()))...)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %s: %w", timeout, err)
		case <-time.After(readyInterval):
		}
	}
}

func (c Config) driverName() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

func (c Config) logAttrs() []slog.Attr {
	if c.Driver == DriverSQLite {
		return []slog.Attr{slog.String("driver", c.Driver), slog.String("db", c.Path)}
	}
	return []slog.Attr{
		slog.String("driver", c.driverName()),
		slog.String("host", c.Host),
		slog.String("port", c.Port),
		slog.String("db", c.Name),
	}
}
