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
	"time"

	"github.com/mleclerc/courbe/internal/models"
)

const sessionColumns = `token, user_id, created_at, expires_at, ip_address, user_agent`

func scanSession(scanner interface{ Scan(...any) error }) (*models.Session, error) {
	var (
		s         models.Session
		createdAt string
		expiresAt string
	)
	err := scanner.Scan(&s.Token, &s.UserID, &createdAt, &expiresAt, &s.IPAddress, &s.UserAgent)
	if err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &s, nil
}

// CreateSession inserts a session row.
func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.Token, s.UserID, formatTime(s.CreatedAt), formatTime(s.ExpiresAt),
		s.IPAddress, s.UserAgent,
	)
	if err != nil {
		return Error.Wrap(fmt.Errorf("insert session: %w", err))
	}
	return nil
}

// GetSession retrieves a session by its exact token.
func (db *DB) GetSession(ctx context.Context, token string) (*models.Session, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("get session: %w", err))
	}
	return s, nil
}

// ListUserSessions returns all sessions for an account, newest first.
func (db *DB) ListUserSessions(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? ORDER BY created_at DESC, token ASC`, userID)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("list sessions: %w", err))
	}
	defer closeQuietly(rows)

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, Error.Wrap(fmt.Errorf("scan session: %w", err))
		}
		sessions = append(sessions, *s)
	}
	return sessions, Error.Wrap(rows.Err())
}

// DeleteSession removes one session by token. Deleting a token that no
// longer exists is not an error; logout is idempotent.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return Error.Wrap(fmt.Errorf("delete session: %w", err))
	}
	return nil
}

// DeleteUserSessions removes every session for an account and returns
// the number removed.
func (db *DB) DeleteUserSessions(ctx context.Context, userID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("delete user sessions: %w", err))
	}
	n, err := res.RowsAffected()
	return n, Error.Wrap(err)
}

// DeleteUserSessionsExcept removes every session for an account except
// the given token. Password changes use this to keep only the caller's
// fresh session alive.
func (db *DB) DeleteUserSessionsExcept(ctx context.Context, userID, token string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND token != ?`, userID, token)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("delete other sessions: %w", err))
	}
	n, err := res.RowsAffected()
	return n, Error.Wrap(err)
}

// DeleteExpiredSessions removes every session whose expiry is at or
// before now, and returns the number removed. The background sweep and
// the lazy delete on lookup both funnel through here.
func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("delete expired sessions: %w", err))
	}
	n, err := res.RowsAffected()
	return n, Error.Wrap(err)
}

// CountSessions returns the number of live session rows.
func (db *DB) CountSessions(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("count sessions: %w", err))
	}
	return count, nil
}

// CountUserSessions returns the number of session rows for one account.
func (db *DB) CountUserSessions(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("count user sessions: %w", err))
	}
	return count, nil
}
