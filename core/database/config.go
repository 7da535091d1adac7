package database

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DriverPostgres stores data in PostgreSQL through lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite stores data in a local SQLite file through modernc.org/sqlite.
	DriverSQLite = "sqlite"
	// DriverMemory keeps data in process memory; nothing is connected or migrated.
	DriverMemory = "memory"
)

// Config holds database connection settings shared across bots.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// Path is the SQLite database file.
	Path string `yaml:"path" envconfig:"DB_PATH"`
	// MigrationsDir overrides the default migrations/<driver> directory.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Normalize fills defaults and validates driver specific settings.
func (c *Config) Normalize() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	switch c.Driver {
	case DriverPostgres:
		if c.Host == "" || c.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres")
		}
		if c.Port == "" {
			c.Port = "5432"
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
		// SQLite allows a single writer.
		c.MaxConnections = 1
	case DriverMemory:
		return nil
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, sqlite, memory", c.Driver)
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
	}
	return nil
}

// DSN returns the connection string understood by the sql driver.
func (c Config) DSN() string {
	switch c.Driver {
	case DriverSQLite:
		return c.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	default:
		return fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
		)
	}
}

// MigrateURL returns the golang-migrate database URL.
func (c Config) MigrateURL() string {
	switch c.Driver {
	case DriverSQLite:
		return "sqlite://" + c.Path
	default:
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
		)
	}
}

// Migrations resolves the migrations directory relative to base.
func (c Config) Migrations(base string) string {
	if dir := strings.TrimSpace(c.MigrationsDir); dir != "" {
		if filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(base, dir)
	}
	return filepath.Join(base, "migrations", c.Driver)
}
