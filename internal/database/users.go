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

	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/models"
)

const userColumns = `id, email, password_hash, name, role, created_at, last_login, is_active, settings`

func scanUser(scanner interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u         models.User
		createdAt string
		lastLogin sql.NullString
		isActive  int
		settings  string
	)
	err := scanner.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&createdAt, &lastLogin, &isActive, &settings)
	if err != nil {
		return nil, err
	}

	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if lastLogin.Valid {
		t, err := parseTime(lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_login: %w", err)
		}
		u.LastLogin = &t
	}
	u.IsActive = isActive == 1

	if settings != "" && settings != "{}" {
		if err := json.Unmarshal([]byte(settings), &u.Settings); err != nil {
			return nil, fmt.Errorf("parse settings: %w", err)
		}
	}
	return &u, nil
}

func marshalSettings(settings map[string]string) (string, error) {
	if len(settings) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return string(raw), nil
}

// CreateUser inserts a new account row. The email UNIQUE constraint is
// case-insensitive; a duplicate surfaces as a wrapped constraint error.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	settings, err := marshalSettings(u.Settings)
	if err != nil {
		return Error.Wrap(err)
	}

	var lastLogin any
	if u.LastLogin != nil {
		lastLogin = formatTime(*u.LastLogin)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role,
		formatTime(u.CreatedAt), lastLogin, boolToInt(u.IsActive), settings,
	)
	if err != nil {
		return Error.Wrap(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

// GetUserByID retrieves an account by ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("get user %s: %w", id, err))
	}
	return u, nil
}

// GetUserByEmail retrieves an account by email. The lookup is
// case-insensitive through the COLLATE NOCASE column.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("get user by email: %w", err))
	}
	return u, nil
}

// ListUsers returns all accounts ordered by creation time.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("list users: %w", err))
	}
	defer closeQuietly(rows)

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, Error.Wrap(fmt.Errorf("scan user: %w", err))
		}
		users = append(users, *u)
	}
	return users, Error.Wrap(rows.Err())
}

// CountUsers returns the total number of accounts, active or not.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("count users: %w", err))
	}
	return count, nil
}

// CountActiveAdmins returns the number of active admin accounts. The
// last-admin guard in internal/auth depends on this count.
func (db *DB) CountActiveAdmins(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND is_active = 1`,
		models.RoleAdmin).Scan(&count)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("count active admins: %w", err))
	}
	return count, nil
}

// UpdateUserLastLogin stamps the account's last successful login.
func (db *DB) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`,
		formatTime(at), id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update last_login %s: %w", id, err))
	}
	return rowUpdated(res)
}

// UpdateUserPassword replaces the stored password hash.
func (db *DB) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update password %s: %w", id, err))
	}
	return rowUpdated(res)
}

// UpdateUserProfile replaces the display name and settings blob.
func (db *DB) UpdateUserProfile(ctx context.Context, id, name string, settings map[string]string) error {
	raw, err := marshalSettings(settings)
	if err != nil {
		return Error.Wrap(err)
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, settings = ? WHERE id = ?`, name, raw, id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update profile %s: %w", id, err))
	}
	return rowUpdated(res)
}

// UpdateUserRole changes the account role.
func (db *DB) UpdateUserRole(ctx context.Context, id, role string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update role %s: %w", id, err))
	}
	return rowUpdated(res)
}

// UpdateUserActive enables or disables the account.
func (db *DB) UpdateUserActive(ctx context.Context, id string, active bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update active %s: %w", id, err))
	}
	return rowUpdated(res)
}

// DeleteUser removes the account. Sessions, stored file rows and quota
// overrides cascade.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("delete user %s: %w", id, err))
	}
	return rowUpdated(res)
}

// rowUpdated translates a zero-row update into ErrNotFound.
func rowUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
