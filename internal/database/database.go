// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/errs"
	_ "modernc.org/sqlite"

	"github.com/mleclerc/courbe/internal/config"
)

var (
	// Error is the database error class. Everything except ErrNotFound
	// comes wrapped in it.
	Error = errs.Class("database")

	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("record not found")
)

// DB wraps the SQLite connection and provides row access methods.
type DB struct {
	conn *sql.DB
	path string
}

// New opens (creating if necessary) the database at cfg.Path and runs
// all pending migrations.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	// Ensure the parent directory exists for the database file.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, Error.Wrap(fmt.Errorf("create database directory %s: %w", dbDir, err))
		}
	}

	busyMillis := cfg.BusyTimeout.Milliseconds()
	if busyMillis <= 0 {
		busyMillis = 5000
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		cfg.Path, busyMillis)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("open sqlite: %w", err))
	}

	// SQLite serializes writers; a single pooled connection avoids
	// SQLITE_BUSY contention between handles.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		closeQuietly(conn)
		return nil, Error.Wrap(fmt.Errorf("ping sqlite: %w", err))
	}

	db := &DB{conn: conn, path: cfg.Path}
	if err := db.migrate(); err != nil {
		closeQuietly(conn)
		return nil, Error.Wrap(fmt.Errorf("migrate: %w", err))
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path for backup operations.
func (db *DB) Path() string {
	return db.path
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// closeQuietly closes a resource and explicitly ignores any error.
// Use this for cleanup in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// timeLayout keeps stored timestamps fixed-width: always UTC, always
// second precision, so string comparison in SQL agrees with time order.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
