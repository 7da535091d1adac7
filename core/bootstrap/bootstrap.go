package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/tutorbot/core/config"
	coredatabase "github.com/m3rciful/tutorbot/core/database"
	"github.com/m3rciful/tutorbot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
	// SkipMigrations leaves the schema untouched (e.g. when migrations run as a separate step).
	SkipMigrations bool
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the memory driver is selected.
type Result struct {
	DB     *sqlx.DB
	Driver string
}

// Close releases the database handle if one was opened.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes logging, then migrates and connects the database. The
// memory driver stops after logging.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	initLogger := opts.LoggerInit
	if initLogger == nil {
		initLogger = logger.InitLogger
	}
	if err := initLogger(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	driver := opts.Database.Driver
	if driver == "" {
		driver = coredatabase.DriverPostgres
	}
	if driver == coredatabase.DriverMemory {
		logger.LogEvent(logger.Background(), logger.DB, slog.LevelWarn, "db.connect",
			slog.String("driver", driver),
			slog.String("status", "skip"),
			slog.String("cause", "profiles are lost on restart"),
		)
		return &Result{Driver: driver}, nil
	}

	migrate, connect := opts.Migrate, opts.Connect
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if connect == nil {
		connect = coredatabase.Connect
	}
	if !opts.SkipMigrations {
		if err := migrate(opts.Database); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	return &Result{DB: db, Driver: driver}, nil
}
