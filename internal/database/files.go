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
	"strings"

	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/models"
)

const fileColumns = `id, user_id, category, filename, original_name, size_bytes, uploaded_at, description, metadata`

func scanFile(scanner interface{ Scan(...any) error }) (*models.StoredFile, error) {
	var (
		f          models.StoredFile
		userID     sql.NullString
		uploadedAt string
		metadata   string
	)
	err := scanner.Scan(&f.ID, &userID, &f.Category, &f.Filename, &f.OriginalName,
		&f.SizeBytes, &uploadedAt, &f.Description, &metadata)
	if err != nil {
		return nil, err
	}
	f.UserID = userID.String
	if f.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return nil, fmt.Errorf("parse uploaded_at: %w", err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &f.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &f, nil
}

// InsertFile inserts a file-store row. An empty UserID stores NULL,
// marking the file as a process-global default asset.
func (db *DB) InsertFile(ctx context.Context, f *models.StoredFile) error {
	metadata, err := marshalSettings(f.Metadata)
	if err != nil {
		return Error.Wrap(err)
	}

	var userID any
	if f.UserID != "" {
		userID = f.UserID
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO stored_files (`+fileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, userID, f.Category, f.Filename, f.OriginalName,
		f.SizeBytes, formatTime(f.UploadedAt), f.Description, metadata,
	)
	if err != nil {
		return Error.Wrap(fmt.Errorf("insert file: %w", err))
	}
	return nil
}

// GetFile retrieves a file row by ID.
func (db *DB) GetFile(ctx context.Context, id string) (*models.StoredFile, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM stored_files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("get file %s: %w", id, err))
	}
	return f, nil
}

// ListUserFiles returns a user's own files, optionally restricted to
// one category. Pass category "" for all categories.
func (db *DB) ListUserFiles(ctx context.Context, userID, category string) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE user_id = ?`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, uploaded_at DESC, id ASC`
	return db.listFiles(ctx, query, args...)
}

// ListAccessibleFiles returns the files a user may read: their own plus
// the ownerless defaults. Within a category the user's files sort
// before the defaults, newest first.
func (db *DB) ListAccessibleFiles(ctx context.Context, userID, category string) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE (user_id = ? OR user_id IS NULL)`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, user_id IS NULL ASC, uploaded_at DESC, id ASC`
	return db.listFiles(ctx, query, args...)
}

// ListDefaultFiles returns the default (ownerless) files, optionally
// restricted to one category.
func (db *DB) ListDefaultFiles(ctx context.Context, category string) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE user_id IS NULL`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, original_name ASC`
	return db.listFiles(ctx, query, args...)
}

// ListAllFiles returns every file row. Orphan reconciliation and the
// admin storage summary walk the full table.
func (db *DB) ListAllFiles(ctx context.Context) ([]models.StoredFile, error) {
	return db.listFiles(ctx, `SELECT `+fileColumns+` FROM stored_files ORDER BY uploaded_at DESC, id ASC`)
}

func (db *DB) listFiles(ctx context.Context, query string, args ...any) ([]models.StoredFile, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("list files: %w", err))
	}
	defer closeQuietly(rows)

	var files []models.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, Error.Wrap(fmt.Errorf("scan file: %w", err))
		}
		files = append(files, *f)
	}
	return files, Error.Wrap(rows.Err())
}

// DeleteFile removes a file row by ID.
func (db *DB) DeleteFile(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM stored_files WHERE id = ?`, id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("delete file %s: %w", id, err))
	}
	return rowUpdated(res)
}

// UpdateFileMeta rewrites a file's description and/or metadata. Nil
// fields are left untouched; calling with nothing to change is a no-op.
func (db *DB) UpdateFileMeta(ctx context.Context, id string, description *string, metadata map[string]string) error {
	var (
		sets []string
		args []any
	)
	if description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *description)
	}
	if metadata != nil {
		encoded, err := marshalSettings(metadata)
		if err != nil {
			return Error.Wrap(err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, encoded)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE stored_files SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update file meta %s: %w", id, err))
	}
	return rowUpdated(res)
}

// UpdateFileSize refreshes size_bytes after a content rewrite.
func (db *DB) UpdateFileSize(ctx context.Context, id string, size int64) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE stored_files SET size_bytes = ? WHERE id = ?`, size, id)
	if err != nil {
		return Error.Wrap(fmt.Errorf("update file size %s: %w", id, err))
	}
	return rowUpdated(res)
}

// DefaultFileExists reports whether a default row already covers the
// given on-disk filename within a category. Startup registration uses
// it to stay idempotent.
func (db *DB) DefaultFileExists(ctx context.Context, category, filename string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM stored_files WHERE user_id IS NULL AND category = ? AND filename = ?`,
		category, filename).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, Error.Wrap(fmt.Errorf("check default file: %w", err))
	}
	return true, nil
}

// FileStoreStats aggregates user file consumption for the admin
// summary. Default files are excluded. TotalSizeHuman is left for the
// caller to format.
func (db *DB) FileStoreStats(ctx context.Context) (*models.StorageStats, error) {
	stats := &models.StorageStats{ByCategory: make(map[string]models.CategoryStats)}

	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id), COUNT(*), COALESCE(SUM(size_bytes), 0)
		 FROM stored_files WHERE user_id IS NOT NULL`).
		Scan(&stats.UsersWithFiles, &stats.TotalFiles, &stats.TotalSizeBytes)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("storage stats: %w", err))
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT category, COUNT(*), COALESCE(SUM(size_bytes), 0)
		 FROM stored_files WHERE user_id IS NOT NULL GROUP BY category`)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("storage stats by category: %w", err))
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			category string
			cs       models.CategoryStats
		)
		if err := rows.Scan(&category, &cs.Count, &cs.SizeBytes); err != nil {
			return nil, Error.Wrap(fmt.Errorf("scan storage stats: %w", err))
		}
		stats.ByCategory[category] = cs
	}
	return stats, Error.Wrap(rows.Err())
}

// UserUsageBytes sums the stored sizes for one account.
func (db *DB) UserUsageBytes(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM stored_files WHERE user_id = ?`,
		userID).Scan(&total)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("sum usage: %w", err))
	}
	return total, nil
}

// UserUsageByCategory returns per-category file counts and byte sums
// for one account. Categories with no files are absent from the map.
func (db *DB) UserUsageByCategory(ctx context.Context, userID string) (map[string]models.CategoryStats, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT category, COUNT(*), COALESCE(SUM(size_bytes), 0)
		 FROM stored_files WHERE user_id = ? GROUP BY category`, userID)
	if err != nil {
		return nil, Error.Wrap(fmt.Errorf("usage by category: %w", err))
	}
	defer closeQuietly(rows)

	usage := make(map[string]models.CategoryStats)
	for rows.Next() {
		var (
			category string
			cs       models.CategoryStats
		)
		if err := rows.Scan(&category, &cs.Count, &cs.SizeBytes); err != nil {
			return nil, Error.Wrap(fmt.Errorf("scan usage: %w", err))
		}
		usage[category] = cs
	}
	return usage, Error.Wrap(rows.Err())
}

// CountUserFiles returns the number of files an account owns.
func (db *DB) CountUserFiles(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stored_files WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("count files: %w", err))
	}
	return count, nil
}

// CountUserCategoryFiles returns the number of files an account owns in
// one category.
func (db *DB) CountUserCategoryFiles(ctx context.Context, userID, category string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stored_files WHERE user_id = ? AND category = ?`,
		userID, category).Scan(&count)
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("count category files: %w", err))
	}
	return count, nil
}

// GetQuotaBytes returns the account's quota override, or (0, false) if
// the account uses the configured default.
func (db *DB) GetQuotaBytes(ctx context.Context, userID string) (int64, bool, error) {
	var quota int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT quota_bytes FROM user_quotas WHERE user_id = ?`, userID).Scan(&quota)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, Error.Wrap(fmt.Errorf("get quota: %w", err))
	}
	return quota, true, nil
}

// SetQuotaBytes upserts the account's quota override.
func (db *DB) SetQuotaBytes(ctx context.Context, userID string, quota int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_quotas (user_id, quota_bytes) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET quota_bytes = excluded.quota_bytes`,
		userID, quota)
	if err != nil {
		return Error.Wrap(fmt.Errorf("set quota: %w", err))
	}
	return nil
}

// DeleteQuotaBytes drops the account's quota override, reverting it to
// the configured default.
func (db *DB) DeleteQuotaBytes(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_quotas WHERE user_id = ?`, userID)
	if err != nil {
		return Error.Wrap(fmt.Errorf("delete quota: %w", err))
	}
	return nil
}
