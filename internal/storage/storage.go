package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/internal/logging"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// Store persists crawl results, domain liveness and (optionally) job progress in a SQL database.
type Store struct {
	db          *sqlx.DB
	autoMigrate bool
	logger      *zap.Logger
	now         func() time.Time
}

// Open connects using cfg, creating the postgres database when it is missing and allowed, and
// applies the schema when auto-migrate is on.
func Open(ctx context.Context, cfg config.SQLConfig, logger *zap.Logger) (*Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("sql config missing driver or dsn")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if !cfg.CreateIfMissing || !shouldAttemptCreateDatabase(cfg.Driver, err) {
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
		if err := createDatabase(ctx, cfg); err != nil {
			return nil, err
		}
		db, err = sqlx.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	if cfg.Driver == driverSQLite {
		// sqlite serialises writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}

	s := New(db, cfg.AutoMigrate, logger)
	if cfg.AutoMigrate {
		if err := s.ensureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an open connection.
func New(db *sqlx.DB, autoMigrate bool, logger *zap.Logger) *Store {
	return &Store{
		db:          db,
		autoMigrate: autoMigrate,
		logger:      logging.OrNop(logger).With(zap.String("component", "storage")),
		now:         time.Now,
	}
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withSchemaRetry runs fn and, when the table is missing and auto-migrate is on, applies the
// schema and runs it once more.
func (s *Store) withSchemaRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !s.autoMigrate || !isUndefinedTableErr(err) {
		return err
	}
	if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
		return fmt.Errorf("ensure schema: %w", schemaErr)
	}
	return fn()
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if !strings.EqualFold(driver, driverPostgres) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.SQLConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, stmt := range schemaFor(s.db.DriverName()) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	s.logger.Debug("schema applied", zap.String("driver", s.db.DriverName()))
	return nil
}

func schemaFor(driver string) []string {
	idType, timeType := "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	if driver == driverSQLite {
		idType, timeType = "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS crawl_results (
		    id ` + idType + `,
		    url TEXT NOT NULL,
		    llms_txt TEXT NOT NULL,
		    llms_full_txt TEXT NOT NULL,
		    ip_address TEXT,
		    created_at ` + timeType + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_results_created_at ON crawl_results (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS domain_status (
		    id ` + idType + `,
		    domain TEXT NOT NULL UNIQUE,
		    has_llms_txt BOOLEAN NOT NULL DEFAULT FALSE,
		    last_checked ` + timeType + `,
		    created_at ` + timeType + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_progress (
		    job_id TEXT PRIMARY KEY,
		    status TEXT NOT NULL,
		    total_pages INTEGER NOT NULL DEFAULT 0,
		    processed_pages INTEGER NOT NULL DEFAULT 0,
		    current_page TEXT NOT NULL DEFAULT '',
		    errors TEXT,
		    estimated_time_remaining INTEGER NOT NULL DEFAULT 0,
		    generated_content TEXT,
		    timestamp BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_progress_timestamp ON crawl_progress (timestamp)`,
	}
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "no such table") {
		return true
	}
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
