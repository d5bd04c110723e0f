// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package models

import (
	"sort"
	"time"
)

// File-store categories. Each category fixes its allowed extensions and
// per-file size ceiling.
const (
	CategoryMF4      = "mf4"
	CategoryDBC      = "dbc"
	CategoryLayouts  = "layouts"
	CategoryMappings = "mappings"
	CategoryAnalyses = "analyses"
)

// CategorySpec describes one storage category.
type CategorySpec struct {
	// Extensions allowed for uploads, lowercase, with leading dot.
	Extensions []string
	// MaxFileBytes is the per-file size ceiling.
	MaxFileBytes int64
}

// CategorySpecs maps category name to its rules.
var CategorySpecs = map[string]CategorySpec{
	CategoryMF4:      {Extensions: []string{".mf4", ".mdf", ".dat"}, MaxFileBytes: 2000 * 1024 * 1024},
	CategoryDBC:      {Extensions: []string{".dbc"}, MaxFileBytes: 50 * 1024 * 1024},
	CategoryLayouts:  {Extensions: []string{".json"}, MaxFileBytes: 5 * 1024 * 1024},
	CategoryMappings: {Extensions: []string{".json"}, MaxFileBytes: 5 * 1024 * 1024},
	CategoryAnalyses: {Extensions: []string{".json", ".py", ".html"}, MaxFileBytes: 10 * 1024 * 1024},
}

// ValidCategory reports whether name is a known storage category.
func ValidCategory(name string) bool {
	_, ok := CategorySpecs[name]
	return ok
}

// Categories returns the known category names in sorted order.
func Categories() []string {
	names := make([]string, 0, len(CategorySpecs))
	for name := range CategorySpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllowsExtension reports whether the category accepts ext (lowercase,
// with leading dot).
func (s CategorySpec) AllowsExtension(ext string) bool {
	for _, e := range s.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// StoredFile is one file-store row. UserID empty means a default
// (read-only, process-global) asset.
type StoredFile struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id,omitempty"`
	Category     string            `json:"category"`
	Filename     string            `json:"filename"`
	OriginalName string            `json:"original_name"`
	SizeBytes    int64             `json:"size_bytes"`
	UploadedAt   time.Time         `json:"uploaded_at"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// IsDefault reports whether the file belongs to the read-only default set.
func (f *StoredFile) IsDefault() bool {
	return f.UserID == ""
}

// QuotaInfo summarizes a user's storage consumption.
type QuotaInfo struct {
	QuotaBytes     int64 `json:"quota_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
	RemainingBytes int64 `json:"remaining_bytes"`
	FileCount      int   `json:"file_count"`
}

// CategoryStats aggregates one category for the admin summary.
type CategoryStats struct {
	Count     int   `json:"count"`
	SizeBytes int64 `json:"size"`
}

// StorageStats is the admin-facing global storage summary. Default
// (ownerless) files are excluded; it measures user consumption.
type StorageStats struct {
	UsersWithFiles int                      `json:"users_with_files"`
	TotalFiles     int                      `json:"total_files"`
	TotalSizeBytes int64                    `json:"total_size_bytes"`
	TotalSizeHuman string                   `json:"total_size_human"`
	ByCategory     map[string]CategoryStats `json:"by_category"`
}

// MaxDescriptionLen bounds file and artifact descriptions.
const MaxDescriptionLen = 500
