package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Config describes the SQLite file and its connection pool. Zero pool
// values keep the database/sql defaults; a zero BusyTimeout means 5s.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

const defaultBusyTimeout = 5 * time.Second

// DB is the shared SQLite handle. Transactions are started by the
// persistence layer, which carries them on the context.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// New opens the SQLite file at cfg.Path, creating its directory if needed,
// and verifies the connection.
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	sqlDB, err := sql.Open("sqlite3", dsn(cfg.Path, busy))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(sqlDB, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), busy)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Path, err)
	}

	logger.Info("Database opened", zap.String("path", cfg.Path), zap.Duration("busy_timeout", busy))
	return &DB{DB: sqlDB, logger: logger}, nil
}

func configurePool(db *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
}

// dsn enables WAL so readers are not blocked by an import or sync
func dsn(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		path, busy.Milliseconds())
}

// Close releases the pool
func (db *DB) Close() error {
	db.logger.Debug("Database closed")
	return db.DB.Close()
}

// IsUniqueViolation reports whether err comes from a UNIQUE or PRIMARY
// KEY constraint.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	switch {
	case err == nil:
		return false
	case errors.As(err, &se):
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	default:
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
}
