// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package artifact persists per-user view layouts and block scripts,
// plus the HTML reports script runs produce, over the category file
// store. Bodies are schema-validated before any write. Store rows
// stay authoritative for ids, ownership and the demo flag; the body
// copies of those fields are normalized on every read.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
)

// Service implements layout, script and report persistence.
type Service struct {
	store   *storage.Store
	sandbox sandbox.Config
	log     zerolog.Logger

	now func() time.Time
}

// NewService wires the artifact service. The sandbox config drives the
// static checks applied to custom code blocks at save time.
func NewService(store *storage.Store, sandboxCfg sandbox.Config) *Service {
	return &Service{
		store:   store,
		sandbox: sandboxCfg,
		log:     logging.WithComponent("artifact"),
		now:     time.Now,
	}
}

// notFoundAs folds the store's missing-file errors into the artifact
// sentinel; everything else passes through unchanged.
func notFoundAs(err, sentinel error) error {
	if errors.Is(err, storage.ErrFileNotFound) || errors.Is(err, storage.ErrFileMissing) {
		return sentinel
	}
	return err
}

// ---------------------------------------------------------------------------
// Layouts
// ---------------------------------------------------------------------------

// LayoutSummary is one row of the layout catalog.
type LayoutSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDemo      bool      `json:"is_demo"`
	TabsCount   int       `json:"tabs_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveLayout validates and stores a new layout for owner, returning it
// with the assigned id.
func (s *Service) SaveLayout(ctx context.Context, owner string, l *models.Layout) (*models.Layout, error) {
	if err := ValidateLayout(l); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	l.ID = ""
	l.Name = strings.TrimSpace(l.Name)
	l.Description = strings.TrimSpace(l.Description)
	l.Version = models.ArtifactVersion
	l.IsDemo = false
	l.CreatedAt, l.UpdatedAt = now, now

	f, err := s.store.SaveJSON(ctx, owner, models.CategoryLayouts, l.Name, l, l.Description)
	if err != nil {
		return nil, err
	}
	l.ID = f.ID
	s.log.Info().Str("layout_id", l.ID).Str("name", l.Name).Msg("layout saved")
	return l, nil
}

// GetLayout loads a layout the owner may read. Defaults are open to
// everyone, including anonymous callers.
func (s *Service) GetLayout(ctx context.Context, id, owner string) (*models.Layout, error) {
	f, err := s.store.GetFile(ctx, id, owner)
	if err != nil {
		return nil, notFoundAs(err, ErrLayoutNotFound)
	}
	if f.Category != models.CategoryLayouts {
		return nil, ErrLayoutNotFound
	}

	var l models.Layout
	if _, err := s.store.ReadJSON(ctx, id, owner, &l); err != nil {
		return nil, notFoundAs(err, ErrLayoutNotFound)
	}
	normalizeLayout(&l, f)
	return &l, nil
}

// ListLayouts returns the catalog the owner may see: their layouts
// first (creation order), then the demo set. Unreadable files are
// skipped.
func (s *Service) ListLayouts(ctx context.Context, owner string) ([]LayoutSummary, error) {
	files, err := s.store.List(ctx, owner, models.CategoryLayouts, true)
	if err != nil {
		return nil, err
	}

	out := make([]LayoutSummary, 0, len(files))
	for i := range files {
		f := &files[i]
		var l models.Layout
		if _, err := s.store.ReadJSON(ctx, f.ID, owner, &l); err != nil {
			s.log.Warn().Err(err).Str("file_id", f.ID).Msg("unreadable layout skipped")
			continue
		}
		normalizeLayout(&l, f)
		out = append(out, LayoutSummary{
			ID:          l.ID,
			Name:        l.Name,
			Description: l.Description,
			IsDemo:      l.IsDemo,
			TabsCount:   len(l.Tabs),
			CreatedAt:   l.CreatedAt,
			UpdatedAt:   l.UpdatedAt,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].IsDemo != out[b].IsDemo {
			return !out[a].IsDemo
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

// UpdateLayout validates and rewrites an owned layout in place,
// preserving its creation metadata. Demo layouts are immutable.
func (s *Service) UpdateLayout(ctx context.Context, id, owner string, l *models.Layout) (*models.Layout, error) {
	if err := ValidateLayout(l); err != nil {
		return nil, err
	}

	existing, err := s.GetLayout(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	l.ID = id
	l.Name = strings.TrimSpace(l.Name)
	l.Description = strings.TrimSpace(l.Description)
	l.Version = existing.Version
	l.IsDemo = false
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if _, err := s.store.ReplaceJSON(ctx, id, owner, l); err != nil {
		return nil, notFoundAs(err, ErrLayoutNotFound)
	}
	s.log.Info().Str("layout_id", id).Msg("layout updated")
	return l, nil
}

// DeleteLayout removes an owned layout. The demo set is read-only.
func (s *Service) DeleteLayout(ctx context.Context, id, owner string) error {
	f, err := s.store.GetFile(ctx, id, owner)
	if err != nil {
		return notFoundAs(err, ErrLayoutNotFound)
	}
	if f.Category != models.CategoryLayouts {
		return ErrLayoutNotFound
	}
	return s.store.Delete(ctx, id, owner)
}

// normalizeLayout overrides the body fields the store row owns.
func normalizeLayout(l *models.Layout, f *models.StoredFile) {
	l.ID = f.ID
	l.IsDemo = f.IsDefault()
	if l.Name == "" {
		l.Name = strings.TrimSuffix(f.OriginalName, filepath.Ext(f.OriginalName))
	}
	if l.Version == 0 {
		l.Version = models.ArtifactVersion
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = f.UploadedAt
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
}

// ---------------------------------------------------------------------------
// Scripts
// ---------------------------------------------------------------------------

// ScriptSummary is one row of the script catalog.
type ScriptSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	IsDemo        bool       `json:"is_demo"`
	BlockCount    int        `json:"block_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// DefaultScriptName fills in for scripts created without one.
const DefaultScriptName = "Nouveau Script"

// SaveScript validates and stores a new block script for owner. An
// empty name defaults rather than failing, matching the editor's
// create-then-rename flow.
func (s *Service) SaveScript(ctx context.Context, owner string, sc *models.Script) (*models.Script, error) {
	if sc == nil {
		return nil, schemaErrorf("Le script doit être un objet JSON")
	}
	sc.Name = strings.TrimSpace(sc.Name)
	if sc.Name == "" {
		sc.Name = DefaultScriptName
	}
	if sc.Blocks == nil {
		sc.Blocks = []models.ScriptBlock{}
	}
	if err := ValidateScript(sc, s.sandbox); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	sc.ID = ""
	sc.Description = strings.TrimSpace(sc.Description)
	sc.Version = models.ArtifactVersion
	sc.IsDemo = false
	sc.CreatedAt, sc.UpdatedAt = now, now
	sc.LastRun, sc.LastRunStatus, sc.LastRunDuration = nil, "", 0

	f, err := s.store.SaveJSON(ctx, owner, models.CategoryAnalyses, sc.Name, sc, sc.Description)
	if err != nil {
		return nil, err
	}
	sc.ID = f.ID
	s.log.Info().Str("script_id", sc.ID).Str("name", sc.Name).Msg("script saved")
	return sc, nil
}

// GetScript loads a block script the owner may read.
func (s *Service) GetScript(ctx context.Context, id, owner string) (*models.Script, error) {
	f, err := s.store.GetFile(ctx, id, owner)
	if err != nil {
		return nil, notFoundAs(err, ErrScriptNotFound)
	}
	if !isScriptFile(f) {
		return nil, ErrScriptNotFound
	}

	var sc models.Script
	if _, err := s.store.ReadJSON(ctx, id, owner, &sc); err != nil {
		return nil, notFoundAs(err, ErrScriptNotFound)
	}
	normalizeScript(&sc, f)
	return &sc, nil
}

// ListScripts returns the script catalog, most recently modified
// first. Reports sharing the analyses category are filtered out.
func (s *Service) ListScripts(ctx context.Context, owner string) ([]ScriptSummary, error) {
	files, err := s.store.List(ctx, owner, models.CategoryAnalyses, true)
	if err != nil {
		return nil, err
	}

	out := make([]ScriptSummary, 0, len(files))
	for i := range files {
		f := &files[i]
		if !isScriptFile(f) {
			continue
		}
		var sc models.Script
		if _, err := s.store.ReadJSON(ctx, f.ID, owner, &sc); err != nil {
			s.log.Warn().Err(err).Str("file_id", f.ID).Msg("unreadable script skipped")
			continue
		}
		normalizeScript(&sc, f)
		out = append(out, ScriptSummary{
			ID:            sc.ID,
			Name:          sc.Name,
			Description:   sc.Description,
			IsDemo:        sc.IsDemo,
			BlockCount:    len(sc.Blocks),
			CreatedAt:     sc.CreatedAt,
			UpdatedAt:     sc.UpdatedAt,
			LastRun:       sc.LastRun,
			LastRunStatus: sc.LastRunStatus,
		})
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].UpdatedAt.After(out[b].UpdatedAt)
	})
	return out, nil
}

// UpdateScript validates and rewrites an owned script in place. The
// creation metadata and run history survive the edit.
func (s *Service) UpdateScript(ctx context.Context, id, owner string, sc *models.Script) (*models.Script, error) {
	if sc == nil {
		return nil, schemaErrorf("Le script doit être un objet JSON")
	}
	sc.Name = strings.TrimSpace(sc.Name)
	if sc.Name == "" {
		sc.Name = DefaultScriptName
	}
	if sc.Blocks == nil {
		sc.Blocks = []models.ScriptBlock{}
	}
	if err := ValidateScript(sc, s.sandbox); err != nil {
		return nil, err
	}

	existing, err := s.GetScript(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	sc.ID = id
	sc.Description = strings.TrimSpace(sc.Description)
	sc.Version = existing.Version
	sc.IsDemo = false
	sc.CreatedAt = existing.CreatedAt
	sc.UpdatedAt = s.now().UTC().Truncate(time.Second)
	sc.LastRun = existing.LastRun
	sc.LastRunStatus = existing.LastRunStatus
	sc.LastRunDuration = existing.LastRunDuration

	if _, err := s.store.ReplaceJSON(ctx, id, owner, sc); err != nil {
		return nil, notFoundAs(err, ErrScriptNotFound)
	}
	s.log.Info().Str("script_id", id).Msg("script updated")
	return sc, nil
}

// DeleteScript removes an owned script.
func (s *Service) DeleteScript(ctx context.Context, id, owner string) error {
	f, err := s.store.GetFile(ctx, id, owner)
	if err != nil {
		return notFoundAs(err, ErrScriptNotFound)
	}
	if !isScriptFile(f) {
		return ErrScriptNotFound
	}
	return s.store.Delete(ctx, id, owner)
}

// RecordRun stamps run metadata onto a saved script. Demo scripts keep
// no history; recording on one is a no-op.
func (s *Service) RecordRun(ctx context.Context, id, owner, status string, duration time.Duration) error {
	sc, err := s.GetScript(ctx, id, owner)
	if err != nil {
		return err
	}
	if sc.IsDemo {
		return nil
	}

	now := s.now().UTC().Truncate(time.Second)
	sc.LastRun = &now
	sc.LastRunStatus = status
	sc.LastRunDuration = math.Round(duration.Seconds()*100) / 100
	sc.UpdatedAt = now

	_, err = s.store.ReplaceJSON(ctx, id, owner, sc)
	return notFoundAs(err, ErrScriptNotFound)
}

func isScriptFile(f *models.StoredFile) bool {
	return f.Category == models.CategoryAnalyses &&
		strings.EqualFold(filepath.Ext(f.Filename), ".json")
}

// normalizeScript overrides the body fields the store row owns.
func normalizeScript(sc *models.Script, f *models.StoredFile) {
	sc.ID = f.ID
	sc.IsDemo = f.IsDefault()
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(f.OriginalName, filepath.Ext(f.OriginalName))
	}
	if sc.Blocks == nil {
		sc.Blocks = []models.ScriptBlock{}
	}
	if sc.Version == 0 {
		sc.Version = models.ArtifactVersion
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = f.UploadedAt
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = sc.CreatedAt
	}
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// Report is one saved HTML analysis report.
type Report struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	SizeKB    float64   `json:"size_kb"`
	IsDemo    bool      `json:"is_demo"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveReport persists a rendered HTML document under the owner's
// analyses budget and returns its catalog entry.
func (s *Service) SaveReport(ctx context.Context, owner, name string, html []byte) (*Report, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "rapport"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".html") {
		name += ".html"
	}

	f, err := s.store.SaveFile(ctx, owner, models.CategoryAnalyses,
		bytes.NewReader(html), int64(len(html)), name, "Rapport d'analyse", nil)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("report_id", f.ID).Int64("size_bytes", f.SizeBytes).Msg("report saved")
	return reportOf(f), nil
}

// ListReports returns the report catalog, newest first.
func (s *Service) ListReports(ctx context.Context, owner string) ([]Report, error) {
	files, err := s.store.List(ctx, owner, models.CategoryAnalyses, true)
	if err != nil {
		return nil, err
	}

	out := make([]Report, 0, len(files))
	for i := range files {
		f := &files[i]
		if !isReportFile(f) {
			continue
		}
		out = append(out, *reportOf(f))
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

// ReportPath resolves a report's on-disk location for serving or
// download.
func (s *Service) ReportPath(ctx context.Context, id, owner string) (string, *Report, error) {
	path, f, err := s.store.GetPath(ctx, id, owner)
	if err != nil {
		return "", nil, notFoundAs(err, ErrReportNotFound)
	}
	if !isReportFile(f) {
		return "", nil, ErrReportNotFound
	}
	return path, reportOf(f), nil
}

// DeleteReport removes a report. Owner is the acting scope: a user's
// own id, or empty for an administrator deleting any report.
func (s *Service) DeleteReport(ctx context.Context, id, owner string) error {
	f, err := s.store.GetFile(ctx, id, owner)
	if err != nil {
		return notFoundAs(err, ErrReportNotFound)
	}
	if !isReportFile(f) {
		return ErrReportNotFound
	}
	if f.IsDefault() {
		return storage.ErrDefaultReadOnly
	}
	return s.store.Delete(ctx, id, f.UserID)
}

func isReportFile(f *models.StoredFile) bool {
	return f.Category == models.CategoryAnalyses &&
		strings.EqualFold(filepath.Ext(f.Filename), ".html")
}

func reportOf(f *models.StoredFile) *Report {
	return &Report{
		ID:        f.ID,
		Name:      reportDisplayName(f.OriginalName),
		Filename:  f.OriginalName,
		SizeKB:    math.Round(float64(f.SizeBytes)/1024*10) / 10,
		IsDemo:    f.IsDefault(),
		CreatedAt: f.UploadedAt,
	}
}

// reportDisplayName turns "essai_freinage-2.html" into
// "Essai Freinage 2".
func reportDisplayName(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	words := strings.Fields(stem)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
