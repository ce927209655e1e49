package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// Config represents database configuration.
type Config struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// Store wraps the database connection and owns the engine's tables.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
	driver string
}

// New opens a database connection and initializes the schema.
func New(logger *zap.Logger, config Config) (*Store, error) {
	driver := config.Driver
	switch driver {
	case "sqlite":
		driver = "sqlite3"
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{logger: logger, db: db, driver: driver}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", driver))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Execute runs a statement without returning rows. Placeholders use "?"
// and are rebound for the active driver.
func (s *Store) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	s.warnSlow(query, start)
	return result, err
}

// Query runs a query and returns rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	s.warnSlow(query, start)
	return rows, err
}

// QueryRow runs a query expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *Store) warnSlow(query string, start time.Time) {
	if d := time.Since(start); d > 100*time.Millisecond {
		s.logger.Warn("Slow query",
			zap.String("query", query),
			zap.Duration("duration", d),
		)
	}
}

// rebind converts "?" placeholders to "$n" for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) initializeSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			severity    TEXT NOT NULL,
			actor_id    TEXT,
			source_ip   TEXT,
			user_agent  TEXT,
			details     TEXT,
			actions     TEXT,
			resolved    BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_by TEXT,
			resolved_at TIMESTAMP,
			created_at  TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_created ON security_events (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events (type)`,
		`CREATE TABLE IF NOT EXISTS compliance_violations (
			id          TEXT PRIMARY KEY,
			rule_id     TEXT NOT NULL,
			rule_name   TEXT NOT NULL,
			category    TEXT NOT NULL,
			severity    TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			data        TEXT,
			status      TEXT NOT NULL,
			assigned_to TEXT,
			resolution  TEXT,
			resolved_at TIMESTAMP,
			created_at  TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_status ON compliance_violations (status)`,
		`CREATE TABLE IF NOT EXISTS audit_trail (
			id          TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id   TEXT,
			action      TEXT NOT NULL,
			actor_id    TEXT,
			source_ip   TEXT,
			user_agent  TEXT,
			details     TEXT,
			old_data    TEXT,
			new_data    TEXT,
			created_at  TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_trail_created ON audit_trail (created_at)`,
		`CREATE TABLE IF NOT EXISTS incidents (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT,
			severity    TEXT NOT NULL,
			status      TEXT NOT NULL,
			assigned_to TEXT,
			event_ids   TEXT,
			resolution  TEXT,
			resolved_at TIMESTAMP,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
