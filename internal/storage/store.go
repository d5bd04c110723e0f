// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/database"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/models"
)

// DefaultQuotaBytes is the per-user byte budget when no override is set.
const DefaultQuotaBytes = 5 * 1024 * 1024 * 1024

// DefaultFileDescription marks rows created by default registration.
const DefaultFileDescription = "Fichier de démonstration"

// jsonCategories are the categories SaveJSON accepts.
var jsonCategories = map[string]bool{
	models.CategoryLayouts:  true,
	models.CategoryMappings: true,
	models.CategoryAnalyses: true,
}

// Store is the category-partitioned file store. All methods are safe
// for concurrent use.
type Store struct {
	db  *database.DB
	log zerolog.Logger

	root           string
	defaultQuota   int64
	maxFiles       int
	maxPerCategory int

	// owners serializes check-quota-then-write per account. Entries
	// live for the process lifetime.
	mu     sync.Mutex
	owners map[string]*sync.Mutex

	now func() time.Time
}

// New creates the store and its on-disk tree.
func New(db *database.DB, cfg *config.StorageConfig) (*Store, error) {
	s := &Store{
		db:             db,
		log:            logging.WithComponent("storage"),
		root:           cfg.Root,
		defaultQuota:   cfg.DefaultQuotaBytes,
		maxFiles:       cfg.MaxFiles,
		maxPerCategory: cfg.MaxPerCategory,
		owners:         make(map[string]*sync.Mutex),
		now:            time.Now,
	}
	if s.defaultQuota <= 0 {
		s.defaultQuota = DefaultQuotaBytes
	}
	if s.maxFiles <= 0 {
		s.maxFiles = 1000
	}
	if s.maxPerCategory <= 0 {
		s.maxPerCategory = 200
	}

	for _, category := range models.Categories() {
		if err := os.MkdirAll(filepath.Join(s.root, "default", category), 0o750); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(s.root, "users"), 0o750); err != nil {
		return nil, Error.Wrap(err)
	}
	return s, nil
}

func (s *Store) ownerLock(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.owners[owner]
	if !ok {
		lock = &sync.Mutex{}
		s.owners[owner] = lock
	}
	return lock
}

// ---------------------------------------------------------------------------
// Path handling
// ---------------------------------------------------------------------------

func (s *Store) categoryRoot(owner, category string) string {
	if owner == "" {
		return filepath.Join(s.root, "default", category)
	}
	return filepath.Join(s.root, "users", owner, category)
}

// resolvePath joins a stored filename onto its category root and
// refuses any result that does not sit directly under that root.
func (s *Store) resolvePath(owner, category, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", ErrInvalidPath
	}
	root := s.categoryRoot(owner, category)
	path := filepath.Join(root, filename)
	if filepath.Dir(path) != filepath.Clean(root) {
		return "", ErrInvalidPath
	}
	return path, nil
}

// sanitizeFilename strips directory components and reduces the name to
// ASCII letters, digits, dot, dash and underscore. Anything else
// becomes an underscore; leading and trailing dots are dropped.
func sanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// ---------------------------------------------------------------------------
// Quota
// ---------------------------------------------------------------------------

// Quota returns the account's effective byte budget.
func (s *Store) Quota(ctx context.Context, userID string) (int64, error) {
	quota, ok, err := s.db.GetQuotaBytes(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return s.defaultQuota, nil
	}
	return quota, nil
}

// SetQuota sets an account's quota override.
func (s *Store) SetQuota(ctx context.Context, userID string, quotaBytes int64) error {
	if quotaBytes < 0 {
		return &UploadError{Reason: "Quota invalide"}
	}
	return s.db.SetQuotaBytes(ctx, userID, quotaBytes)
}

// checkBudget enforces the admission rules in their fixed order:
// per-file ceiling, quota, total count, category count. The extension
// was already validated by the caller. Runs under the owner lock.
func (s *Store) checkBudget(ctx context.Context, owner, category string, size int64, spec models.CategorySpec) error {
	if size > spec.MaxFileBytes {
		return &UploadError{Reason: fmt.Sprintf("Fichier trop volumineux. Max: %d MB", spec.MaxFileBytes/(1024*1024))}
	}

	quota, err := s.Quota(ctx, owner)
	if err != nil {
		return err
	}
	used, err := s.db.UserUsageBytes(ctx, owner)
	if err != nil {
		return err
	}
	if used+size > quota {
		return &QuotaError{AvailableBytes: quota - used}
	}

	total, err := s.db.CountUserFiles(ctx, owner)
	if err != nil {
		return err
	}
	if total >= s.maxFiles {
		return &UploadError{Reason: fmt.Sprintf("Nombre maximal de fichiers atteint (%d)", s.maxFiles)}
	}

	inCategory, err := s.db.CountUserCategoryFiles(ctx, owner, category)
	if err != nil {
		return err
	}
	if inCategory >= s.maxPerCategory {
		return &UploadError{Reason: fmt.Sprintf("Nombre maximal de fichiers atteint pour la catégorie %s (%d)", category, s.maxPerCategory)}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// SaveFile admits an upload of a known size into a category. The
// declared size drives quota accounting and must match the bytes read.
func (s *Store) SaveFile(ctx context.Context, owner, category string, upload io.Reader, size int64, originalName, description string, metadata map[string]string) (*models.StoredFile, error) {
	if owner == "" {
		return nil, Error.New("uploads require an owner")
	}
	spec, ok := models.CategorySpecs[category]
	if !ok {
		return nil, ErrInvalidCategory
	}
	if size < 0 {
		return nil, Error.New("negative upload size %d", size)
	}

	name := sanitizeFilename(originalName)
	if name == "" {
		return nil, &UploadError{Reason: "Nom de fichier vide"}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !spec.AllowsExtension(ext) {
		return nil, &UploadError{Reason: extensionMessage(spec)}
	}

	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	if err := s.checkBudget(ctx, owner, category, size, spec); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	stored := id + ext
	if err := os.MkdirAll(s.categoryRoot(owner, category), 0o750); err != nil {
		return nil, Error.Wrap(err)
	}
	path, err := s.resolvePath(owner, category, stored)
	if err != nil {
		return nil, err
	}
	if err := writeStream(path, upload, size); err != nil {
		return nil, err
	}

	row := &models.StoredFile{
		ID:           id,
		UserID:       owner,
		Category:     category,
		Filename:     stored,
		OriginalName: name,
		SizeBytes:    size,
		UploadedAt:   s.now().UTC().Truncate(time.Second),
		Description:  description,
		Metadata:     metadata,
	}
	if err := s.db.InsertFile(ctx, row); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	s.log.Info().
		Str("file_id", id).
		Str("category", category).
		Int64("size_bytes", size).
		Msg("file stored")
	return row, nil
}

// SaveJSON stores a document as a pretty-printed .json file. Only the
// artifact categories accept it.
func (s *Store) SaveJSON(ctx context.Context, owner, category, name string, content any, description string) (*models.StoredFile, error) {
	if owner == "" {
		return nil, Error.New("uploads require an owner")
	}
	if !jsonCategories[category] {
		return nil, &UploadError{Reason: fmt.Sprintf("Catégorie %s non supportée pour JSON direct", category)}
	}

	encoded, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	size := int64(len(encoded))

	original := sanitizeFilename(name)
	if original == "" {
		original = "untitled"
	}
	if !strings.HasSuffix(strings.ToLower(original), ".json") {
		original += ".json"
	}

	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	if err := s.checkBudget(ctx, owner, category, size, models.CategorySpecs[category]); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	stored := id + ".json"
	if err := os.MkdirAll(s.categoryRoot(owner, category), 0o750); err != nil {
		return nil, Error.Wrap(err)
	}
	path, err := s.resolvePath(owner, category, stored)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, encoded, 0o640); err != nil {
		return nil, Error.Wrap(err)
	}

	row := &models.StoredFile{
		ID:           id,
		UserID:       owner,
		Category:     category,
		Filename:     stored,
		OriginalName: original,
		SizeBytes:    size,
		UploadedAt:   s.now().UTC().Truncate(time.Second),
		Description:  description,
	}
	if err := s.db.InsertFile(ctx, row); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return row, nil
}

// ReplaceJSON rewrites a stored JSON document in place, keeping its id.
// Only the owner may replace; default files are immutable here.
func (s *Store) ReplaceJSON(ctx context.Context, id, owner string, content any) (*models.StoredFile, error) {
	if owner == "" {
		return nil, Error.New("replace requires an owner")
	}

	encoded, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	size := int64(len(encoded))

	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	f, err := s.GetFile(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if f.IsDefault() {
		return nil, ErrDefaultImmutable
	}

	spec := models.CategorySpecs[f.Category]
	if size > spec.MaxFileBytes {
		return nil, &UploadError{Reason: fmt.Sprintf("Fichier trop volumineux. Max: %d MB", spec.MaxFileBytes/(1024*1024))}
	}
	quota, err := s.Quota(ctx, owner)
	if err != nil {
		return nil, err
	}
	used, err := s.db.UserUsageBytes(ctx, owner)
	if err != nil {
		return nil, err
	}
	if used-f.SizeBytes+size > quota {
		return nil, &QuotaError{AvailableBytes: quota - used + f.SizeBytes}
	}

	path, err := s.resolvePath(f.UserID, f.Category, f.Filename)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, encoded, 0o640); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := s.db.UpdateFileSize(ctx, id, size); err != nil {
		return nil, err
	}
	f.SizeBytes = size
	return f, nil
}

func writeStream(path string, r io.Reader, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return Error.Wrap(err)
	}
	n, copyErr := io.Copy(f, r)
	if err := f.Close(); copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return Error.Wrap(copyErr)
	}
	if n != size {
		_ = os.Remove(path)
		return Error.New("upload size mismatch: declared %d, received %d", size, n)
	}
	return nil
}

func extensionMessage(spec models.CategorySpec) string {
	names := make([]string, 0, len(spec.Extensions))
	for _, ext := range spec.Extensions {
		names = append(names, strings.TrimPrefix(ext, "."))
	}
	return "Extension non autorisée. Extensions valides: " + strings.Join(names, ", ")
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetFile fetches a row the owner may see: their own file or a default.
// An empty owner skips the scope check (admin and public-default paths).
// A row owned by someone else reports ErrFileNotFound, not a denial.
func (s *Store) GetFile(ctx context.Context, id, owner string) (*models.StoredFile, error) {
	f, err := s.db.GetFile(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if owner != "" && !f.IsDefault() && f.UserID != owner {
		return nil, ErrFileNotFound
	}
	return f, nil
}

// GetPath resolves a file's on-disk location, verifying both the scope
// and that the backing file still exists.
func (s *Store) GetPath(ctx context.Context, id, owner string) (string, *models.StoredFile, error) {
	f, err := s.GetFile(ctx, id, owner)
	if err != nil {
		return "", nil, err
	}
	path, err := s.resolvePath(f.UserID, f.Category, f.Filename)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil, ErrFileMissing
	}
	return path, f, nil
}

// ReadJSON loads a stored JSON document into out.
func (s *Store) ReadJSON(ctx context.Context, id, owner string, out any) (*models.StoredFile, error) {
	path, f, err := s.GetPath(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, Error.Wrap(fmt.Errorf("parse %s: %w", f.OriginalName, err))
	}
	return f, nil
}

// List returns the files an owner may read, optionally scoped to one
// category, with or without the default set.
func (s *Store) List(ctx context.Context, owner, category string, includeDefault bool) ([]models.StoredFile, error) {
	if category != "" && !models.ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	if includeDefault {
		return s.db.ListAccessibleFiles(ctx, owner, category)
	}
	return s.db.ListUserFiles(ctx, owner, category)
}

// ListDefaults returns the default (demo) files. No authentication is
// required to see these.
func (s *Store) ListDefaults(ctx context.Context, category string) ([]models.StoredFile, error) {
	if category != "" && !models.ValidCategory(category) {
		return nil, ErrInvalidCategory
	}
	return s.db.ListDefaultFiles(ctx, category)
}

// ---------------------------------------------------------------------------
// Mutation
// ---------------------------------------------------------------------------

// Delete removes an owned file, disk first, then the row. Defaults are
// refused.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	f, err := s.GetFile(ctx, id, owner)
	if err != nil {
		return err
	}
	if f.IsDefault() {
		return ErrDefaultReadOnly
	}
	if f.UserID != owner {
		return ErrNotOwner
	}

	path, err := s.resolvePath(f.UserID, f.Category, f.Filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Error.Wrap(err)
	}

	if err := s.db.DeleteFile(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	s.log.Info().Str("file_id", id).Str("category", f.Category).Msg("file deleted")
	return nil
}

// UpdateMeta rewrites an owned file's description and/or metadata and
// returns the fresh row. Defaults and foreign files report
// ErrFileNotFound.
func (s *Store) UpdateMeta(ctx context.Context, id, owner string, description *string, metadata map[string]string) (*models.StoredFile, error) {
	f, err := s.GetFile(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if f.IsDefault() || f.UserID != owner {
		return nil, ErrFileNotFound
	}
	if err := s.db.UpdateFileMeta(ctx, id, description, metadata); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return s.GetFile(ctx, id, owner)
}

// ---------------------------------------------------------------------------
// Accounting
// ---------------------------------------------------------------------------

// CategoryUsage is one category's slice of an account's consumption.
type CategoryUsage struct {
	UsedBytes int64  `json:"used_bytes"`
	UsedHuman string `json:"used_human"`
	Count     int    `json:"count"`
}

// Info is the storage summary shown to an account.
type Info struct {
	QuotaBytes     int64                    `json:"quota_bytes"`
	QuotaHuman     string                   `json:"quota_human"`
	UsedBytes      int64                    `json:"used_bytes"`
	UsedHuman      string                   `json:"used_human"`
	AvailableBytes int64                    `json:"available_bytes"`
	AvailableHuman string                   `json:"available_human"`
	UsagePercent   float64                  `json:"usage_percent"`
	ByCategory     map[string]CategoryUsage `json:"by_category"`
}

// Info summarizes an account's quota and per-category consumption.
// Every known category appears in the map, zeroed when unused.
func (s *Store) Info(ctx context.Context, owner string) (*Info, error) {
	quota, err := s.Quota(ctx, owner)
	if err != nil {
		return nil, err
	}
	used, err := s.db.UserUsageBytes(ctx, owner)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.db.UserUsageByCategory(ctx, owner)
	if err != nil {
		return nil, err
	}

	available := quota - used
	if available < 0 {
		available = 0
	}
	var percent float64
	if quota > 0 {
		percent = math.Round(float64(used)/float64(quota)*1000) / 10
	}

	info := &Info{
		QuotaBytes:     quota,
		QuotaHuman:     FormatSize(quota),
		UsedBytes:      used,
		UsedHuman:      FormatSize(used),
		AvailableBytes: available,
		AvailableHuman: FormatSize(available),
		UsagePercent:   percent,
		ByCategory:     make(map[string]CategoryUsage, len(models.CategorySpecs)),
	}
	for _, category := range models.Categories() {
		cs := byCategory[category]
		info.ByCategory[category] = CategoryUsage{
			UsedBytes: cs.SizeBytes,
			UsedHuman: FormatSize(cs.SizeBytes),
			Count:     cs.Count,
		}
	}
	return info, nil
}

// Stats returns the admin-facing global summary of user consumption.
func (s *Store) Stats(ctx context.Context) (*models.StorageStats, error) {
	stats, err := s.db.FileStoreStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalSizeHuman = FormatSize(stats.TotalSizeBytes)
	return stats, nil
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

// WriteDefault places content into the default tree unless a file of
// that name already exists, and reports whether it wrote. Callers
// follow up with RegisterDefaults to create the row.
func (s *Store) WriteDefault(category, filename string, content []byte) (bool, error) {
	if !models.ValidCategory(category) {
		return false, ErrInvalidCategory
	}
	path, err := s.resolvePath("", category, filename)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return false, Error.Wrap(err)
	}
	s.log.Info().Str("category", category).Str("filename", filename).Msg("default file written")
	return true, nil
}

// RegisterDefaults scans the default tree and inserts a row for every
// file that does not have one yet. Idempotent; returns how many rows
// were created.
func (s *Store) RegisterDefaults(ctx context.Context) (int, error) {
	registered := 0
	for _, category := range models.Categories() {
		dir := filepath.Join(s.root, "default", category)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return registered, Error.Wrap(err)
		}

		spec := models.CategorySpecs[category]
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			name := entry.Name()
			if !spec.AllowsExtension(strings.ToLower(filepath.Ext(name))) {
				continue
			}
			exists, err := s.db.DefaultFileExists(ctx, category, name)
			if err != nil {
				return registered, err
			}
			if exists {
				continue
			}
			fi, err := entry.Info()
			if err != nil {
				return registered, Error.Wrap(err)
			}

			row := &models.StoredFile{
				ID:           uuid.NewString(),
				Category:     category,
				Filename:     name,
				OriginalName: name,
				SizeBytes:    fi.Size(),
				UploadedAt:   s.now().UTC().Truncate(time.Second),
				Description:  DefaultFileDescription,
			}
			if err := s.db.InsertFile(ctx, row); err != nil {
				return registered, err
			}
			s.log.Info().Str("category", category).Str("filename", name).Msg("registered default file")
			registered++
		}
	}
	return registered, nil
}

// CleanupOrphans deletes rows whose backing file no longer exists, or
// whose stored filename no longer resolves to a legal path. Pass owner
// "" to sweep every row including the default set.
func (s *Store) CleanupOrphans(ctx context.Context, owner string) (int, error) {
	var (
		files []models.StoredFile
		err   error
	)
	if owner == "" {
		files, err = s.db.ListAllFiles(ctx)
	} else {
		files, err = s.db.ListUserFiles(ctx, owner, "")
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		path, perr := s.resolvePath(f.UserID, f.Category, f.Filename)
		if perr == nil {
			if _, serr := os.Stat(path); serr == nil {
				continue
			}
		}
		if derr := s.db.DeleteFile(ctx, f.ID); derr != nil {
			// Raced another sweep; the row is gone either way.
			if errors.Is(derr, database.ErrNotFound) {
				continue
			}
			return removed, derr
		}
		s.log.Info().Str("file_id", f.ID).Str("category", f.Category).Msg("removed orphaned file row")
		removed++
	}
	return removed, nil
}
