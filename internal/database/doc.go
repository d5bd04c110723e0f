// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package database provides the SQLite persistence layer for Courbe.
//
// # Overview
//
// One database file carries four tables: users, sessions, stored_files
// and user_quotas. Accounts own their sessions and files through ON
// DELETE CASCADE foreign keys, which is why the tables share a file
// rather than splitting across auth and storage databases.
//
// The package is organized by table:
//   - database.go: connection lifecycle (open, ping, close)
//   - migrations.go: embedded goose migrations
//   - users.go: account rows
//   - sessions.go: bearer-token session rows
//   - files.go: file-store metadata and per-user quota overrides
//
// # Database Technology
//
// The driver is modernc.org/sqlite, a pure-Go translation of SQLite.
// No CGO is required, so the binary cross-compiles cleanly. The
// connection opens with WAL journaling, a busy timeout, and foreign
// keys enforced; the pool is pinned to a single connection because
// SQLite serializes writers anyway and a single connection avoids
// SQLITE_BUSY churn between pooled handles.
//
// Schema changes ship as embedded goose migrations (migrations/*.sql)
// applied automatically by Open. Each migration runs in its own
// transaction; a failed migration leaves the recorded version
// untouched.
//
// # Conventions
//
// Timestamps are stored as RFC 3339 UTC strings. The format is
// fixed-width at second precision, so stored values compare correctly
// both lexicographically in SQL and after parsing.
//
// Lookups that match no row return ErrNotFound. Every other failure is
// wrapped in the package error class and should be treated as an
// internal fault by callers.
//
// This package is deliberately mechanical: it moves rows, it does not
// decide anything. Password verification, quota arithmetic, session
// expiry policy and ownership checks all live with their owning
// packages (internal/auth, internal/storage).
package database
