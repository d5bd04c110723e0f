// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/database"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store, *database.DB) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.New(&config.DatabaseConfig{
		Path:        filepath.Join(dir, "test.db"),
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.New(db, &config.StorageConfig{Root: filepath.Join(dir, "files")})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return NewService(store, sandbox.DefaultConfig()), store, db
}

func seedOwner(t *testing.T, db *database.DB, email string) string {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "x",
		Role:         models.RoleUser,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

// stepClock makes every call to now() advance by a minute, so list
// ordering is deterministic.
func stepClock(svc *Service) {
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}
}

func validLayout(name string) *models.Layout {
	return &models.Layout{
		Name:        name,
		Description: "Essai sur banc",
		Tabs: []models.LayoutTab{{
			Name: "Moteur",
			Plots: []models.LayoutPlot{{
				Flex: 1.5,
				Signals: []models.PlotSignal{
					{Name: "VehicleSpeed", Style: models.SignalStyle{Color: "#fab387", Width: 2}},
					{Name: "EngineRPM", Style: models.SignalStyle{Color: "#89b4fa", Width: 1.5, Dash: "dash"}},
				},
			}},
		}},
		ComputedVariables: []models.LayoutVariable{
			{Name: "speed_ms", Formula: "A / 3.6", Mapping: map[string]string{"A": "VehicleSpeed"}},
		},
	}
}

func validScript(name string) *models.Script {
	return &models.Script{
		Name: name,
		Blocks: []models.ScriptBlock{
			{ID: "b1", Type: models.BlockSection, Config: map[string]interface{}{"title": "Résultats", "level": "H2"}},
			{ID: "b2", Type: models.BlockLinePlot, Config: map[string]interface{}{"signal": "VehicleSpeed", "color": "#fab387"}},
			{ID: "b3", Type: models.BlockCode, Config: map[string]interface{}{"code": "v = df[\"VehicleSpeed\"].mean()\n"}},
		},
		Settings: &models.ScriptSettings{Title: "Rapport d'essai", Author: "banc"},
	}
}

func wantSchema(t *testing.T, err error, contains string) {
	t.Helper()
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SchemaError", err)
	}
	if !strings.Contains(se.Msg, contains) {
		t.Errorf("message = %q, want substring %q", se.Msg, contains)
	}
}

// ===================================================================================================
// Validation
// ===================================================================================================

func TestValidateLayoutRejections(t *testing.T) {
	wide := validLayout("ok")
	for i := 0; i < models.MaxLayoutTabs+1; i++ {
		wide.Tabs = append(wide.Tabs, models.LayoutTab{Name: "t"})
	}

	noName := validLayout("ok")
	noName.Tabs[0].Name = "  "

	crowded := validLayout("ok")
	for i := 0; i < models.MaxPlotsPerTab+1; i++ {
		crowded.Tabs[0].Plots = append(crowded.Tabs[0].Plots, models.LayoutPlot{})
	}

	noisy := validLayout("ok")
	for i := 0; i < models.MaxSignalsPerPlot+1; i++ {
		noisy.Tabs[0].Plots[0].Signals = append(noisy.Tabs[0].Plots[0].Signals,
			models.PlotSignal{Name: "s"})
	}

	badColor := validLayout("ok")
	badColor.Tabs[0].Plots[0].Signals[0].Style.Color = "rouge"

	badDash := validLayout("ok")
	badDash.Tabs[0].Plots[0].Signals[0].Style.Dash = "wavy"

	halfVar := validLayout("ok")
	halfVar.ComputedVariables = []models.LayoutVariable{{Name: "x"}}

	cases := []struct {
		name   string
		layout *models.Layout
		msg    string
	}{
		{"nil", nil, "objet JSON"},
		{"no name", &models.Layout{Tabs: validLayout("x").Tabs}, "Le nom du layout est requis"},
		{"long name", validLayout(strings.Repeat("n", 101)), "max 100"},
		{"long description", func() *models.Layout {
			l := validLayout("ok")
			l.Description = strings.Repeat("d", 501)
			return l
		}(), "max 500"},
		{"no tabs", &models.Layout{Name: "x"}, "au moins un onglet"},
		{"too many tabs", wide, "Trop d'onglets"},
		{"unnamed tab", noName, "L'onglet 1 doit avoir un nom"},
		{"too many plots", crowded, "Trop de plots"},
		{"too many signals", noisy, "Trop de signaux dans le plot 1"},
		{"bad color", badColor, "Couleur invalide: 'rouge'"},
		{"bad dash", badDash, "Style de trait invalide: 'wavy'"},
		{"half computed variable", halfVar, "'name' et 'formula'"},
	}
	for _, tc := range cases {
		wantSchema(t, ValidateLayout(tc.layout), tc.msg)
	}

	if err := ValidateLayout(validLayout("Vue moteur")); err != nil {
		t.Fatalf("valid layout rejected: %v", err)
	}
}

func TestValidateScriptRejections(t *testing.T) {
	cfg := sandbox.DefaultConfig()

	block := func(typ string, config map[string]interface{}) *models.Script {
		return &models.Script{Name: "s", Blocks: []models.ScriptBlock{{ID: "b", Type: typ, Config: config}}}
	}

	overfull := &models.Script{Name: "s"}
	for i := 0; i < models.MaxScriptBlocks+1; i++ {
		overfull.Blocks = append(overfull.Blocks, models.ScriptBlock{Type: models.BlockText})
	}

	cases := []struct {
		name   string
		script *models.Script
		msg    string
	}{
		{"too many blocks", overfull, "Trop de blocs"},
		{"unknown type", block("gauge", nil), "type de bloc inconnu: 'gauge'"},
		{"bad level", block(models.BlockSection, map[string]interface{}{"level": "H9"}), "niveau de section invalide: 'H9'"},
		{"bad callout", block(models.BlockCallout, map[string]interface{}{"type": "fancy"}), "type d'encadré invalide: 'fancy'"},
		{"bad color", block(models.BlockScatter, map[string]interface{}{"color": "#12345"}), "couleur invalide"},
		{"columns out of range", block(models.BlockMetrics, map[string]interface{}{"columns": float64(11)}), "colonnes hors limites"},
		{"bins out of range", block(models.BlockHistogram, map[string]interface{}{"bins": float64(0)}), "bins hors limites"},
		{"unsafe code", block(models.BlockCode, map[string]interface{}{"code": "import os\n"}), "code non autorisé"},
	}
	for _, tc := range cases {
		wantSchema(t, ValidateScript(tc.script, cfg), tc.msg)
	}

	if err := ValidateScript(validScript("Analyse"), cfg); err != nil {
		t.Fatalf("valid script rejected: %v", err)
	}
}

func TestValidateScriptConfigDepth(t *testing.T) {
	deep := map[string]interface{}{"v": 1}
	for i := 0; i < models.MaxArtifactDepth+2; i++ {
		deep = map[string]interface{}{"child": deep}
	}
	sc := &models.Script{Name: "s", Blocks: []models.ScriptBlock{
		{ID: "b", Type: models.BlockText, Config: deep},
	}}
	wantSchema(t, ValidateScript(sc, sandbox.DefaultConfig()), "trop profonde")

	shallow := &models.Script{Name: "s", Blocks: []models.ScriptBlock{
		{ID: "b", Type: models.BlockText, Config: map[string]interface{}{
			"content": "ok",
			"style":   map[string]interface{}{"align": "left"},
		}},
	}}
	if err := ValidateScript(shallow, sandbox.DefaultConfig()); err != nil {
		t.Fatalf("shallow config rejected: %v", err)
	}
}

// ===================================================================================================
// Layout CRUD
// ===================================================================================================

func TestLayoutRoundTrip(t *testing.T) {
	svc, _, db := newTestService(t)
	stepClock(svc)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	saved, err := svc.SaveLayout(ctx, owner, validLayout("Vue moteur"))
	if err != nil {
		t.Fatalf("SaveLayout: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("SaveLayout returned empty id")
	}
	if saved.IsDemo || saved.Version != models.ArtifactVersion {
		t.Errorf("saved = demo %v version %d", saved.IsDemo, saved.Version)
	}

	got, err := svc.GetLayout(ctx, saved.ID, owner)
	if err != nil {
		t.Fatalf("GetLayout: %v", err)
	}
	if got.ID != saved.ID || got.Name != "Vue moteur" || len(got.Tabs) != 1 {
		t.Errorf("got = %+v", got)
	}
	if len(got.ComputedVariables) != 1 || got.ComputedVariables[0].Formula != "A / 3.6" {
		t.Errorf("computed variables = %+v", got.ComputedVariables)
	}
	if got.Tabs[0].Plots[0].Flex != 1.5 {
		t.Errorf("Flex = %v, want 1.5", got.Tabs[0].Plots[0].Flex)
	}

	update := validLayout("Vue moteur v2")
	update.Tabs = append(update.Tabs, models.LayoutTab{Name: "Freins", Plots: []models.LayoutPlot{}})
	updated, err := svc.UpdateLayout(ctx, saved.ID, owner, update)
	if err != nil {
		t.Fatalf("UpdateLayout: %v", err)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", saved.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(saved.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v -> %v", saved.UpdatedAt, updated.UpdatedAt)
	}

	got, err = svc.GetLayout(ctx, saved.ID, owner)
	if err != nil {
		t.Fatalf("GetLayout after update: %v", err)
	}
	if got.Name != "Vue moteur v2" || len(got.Tabs) != 2 {
		t.Errorf("after update: name %q, %d tabs", got.Name, len(got.Tabs))
	}

	if err := svc.DeleteLayout(ctx, saved.ID, owner); err != nil {
		t.Fatalf("DeleteLayout: %v", err)
	}
	if _, err := svc.GetLayout(ctx, saved.ID, owner); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("GetLayout after delete = %v, want ErrLayoutNotFound", err)
	}
}

func TestLayoutOwnership(t *testing.T) {
	svc, _, db := newTestService(t)
	alice := seedOwner(t, db, "alice@example.com")
	bruno := seedOwner(t, db, "bruno@example.com")
	ctx := context.Background()

	saved, err := svc.SaveLayout(ctx, alice, validLayout("Privé"))
	if err != nil {
		t.Fatalf("SaveLayout: %v", err)
	}

	if _, err := svc.GetLayout(ctx, saved.ID, bruno); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("foreign GetLayout = %v, want ErrLayoutNotFound", err)
	}
	if _, err := svc.UpdateLayout(ctx, saved.ID, bruno, validLayout("Volé")); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("foreign UpdateLayout = %v, want ErrLayoutNotFound", err)
	}
	if err := svc.DeleteLayout(ctx, saved.ID, bruno); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("foreign DeleteLayout = %v, want ErrLayoutNotFound", err)
	}

	theirs, err := svc.ListLayouts(ctx, bruno)
	if err != nil {
		t.Fatalf("ListLayouts: %v", err)
	}
	for _, l := range theirs {
		if l.ID == saved.ID {
			t.Error("foreign layout visible in listing")
		}
	}
}

func TestLayoutWrongCategory(t *testing.T) {
	svc, store, db := newTestService(t)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	f, err := store.SaveJSON(ctx, owner, models.CategoryMappings, "mapping_can", map[string]string{"0x100": "VehicleSpeed"}, "")
	if err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	if _, err := svc.GetLayout(ctx, f.ID, owner); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("GetLayout on mapping = %v, want ErrLayoutNotFound", err)
	}
	if err := svc.DeleteLayout(ctx, f.ID, owner); !errors.Is(err, ErrLayoutNotFound) {
		t.Errorf("DeleteLayout on mapping = %v, want ErrLayoutNotFound", err)
	}
}

func TestDemoLayoutLifecycle(t *testing.T) {
	svc, store, db := newTestService(t)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	wrote, err := svc.RegisterDemoLayout()
	if err != nil {
		t.Fatalf("RegisterDemoLayout: %v", err)
	}
	if !wrote {
		t.Fatal("expected first registration to write")
	}
	if wrote, err = svc.RegisterDemoLayout(); err != nil || wrote {
		t.Fatalf("second registration = (%v, %v), want (false, nil)", wrote, err)
	}
	if _, err := store.RegisterDefaults(ctx); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}

	// Anonymous callers see the demo set.
	listed, err := svc.ListLayouts(ctx, "")
	if err != nil {
		t.Fatalf("ListLayouts anonymous: %v", err)
	}
	if len(listed) != 1 || !listed[0].IsDemo || listed[0].Name != "OBD2 Overview" {
		t.Fatalf("anonymous listing = %+v", listed)
	}
	demoID := listed[0].ID
	if listed[0].TabsCount != 3 {
		t.Errorf("TabsCount = %d, want 3", listed[0].TabsCount)
	}

	demo, err := svc.GetLayout(ctx, demoID, owner)
	if err != nil {
		t.Fatalf("GetLayout demo: %v", err)
	}
	if !demo.IsDemo || demo.Tabs[0].Name != "Moteur" {
		t.Errorf("demo = %+v", demo)
	}

	if _, err := svc.UpdateLayout(ctx, demoID, owner, validLayout("Remplacé")); !errors.Is(err, storage.ErrDefaultImmutable) {
		t.Errorf("demo update = %v, want ErrDefaultImmutable", err)
	}
	if err := svc.DeleteLayout(ctx, demoID, owner); !errors.Is(err, storage.ErrDefaultReadOnly) {
		t.Errorf("demo delete = %v, want ErrDefaultReadOnly", err)
	}

	// User layouts list before the demo set.
	if _, err := svc.SaveLayout(ctx, owner, validLayout("À moi")); err != nil {
		t.Fatalf("SaveLayout: %v", err)
	}
	listed, err = svc.ListLayouts(ctx, owner)
	if err != nil {
		t.Fatalf("ListLayouts: %v", err)
	}
	if len(listed) != 2 || listed[0].IsDemo || !listed[1].IsDemo {
		t.Errorf("listing order = %+v", listed)
	}
}

// ===================================================================================================
// Script CRUD
// ===================================================================================================

func TestScriptRoundTrip(t *testing.T) {
	svc, _, db := newTestService(t)
	stepClock(svc)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	saved, err := svc.SaveScript(ctx, owner, validScript("Analyse freinage"))
	if err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if saved.ID == "" || saved.LastRun != nil {
		t.Fatalf("saved = %+v", saved)
	}

	got, err := svc.GetScript(ctx, saved.ID, owner)
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if got.Name != "Analyse freinage" || len(got.Blocks) != 3 {
		t.Errorf("got = %+v", got)
	}
	if got.Settings == nil || got.Settings.Title != "Rapport d'essai" {
		t.Errorf("settings = %+v", got.Settings)
	}

	if err := svc.RecordRun(ctx, saved.ID, owner, "success", 1234*time.Millisecond); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, err = svc.GetScript(ctx, saved.ID, owner)
	if err != nil {
		t.Fatalf("GetScript after run: %v", err)
	}
	if got.LastRun == nil || got.LastRunStatus != "success" {
		t.Fatalf("run metadata missing: %+v", got)
	}
	if got.LastRunDuration != 1.23 {
		t.Errorf("LastRunDuration = %v, want 1.23", got.LastRunDuration)
	}

	// Edits keep the run history.
	update := validScript("Analyse freinage v2")
	updated, err := svc.UpdateScript(ctx, saved.ID, owner, update)
	if err != nil {
		t.Fatalf("UpdateScript: %v", err)
	}
	if updated.LastRun == nil || updated.LastRunStatus != "success" {
		t.Errorf("run history lost on update: %+v", updated)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt changed on update")
	}

	if err := svc.DeleteScript(ctx, saved.ID, owner); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	if _, err := svc.GetScript(ctx, saved.ID, owner); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("GetScript after delete = %v, want ErrScriptNotFound", err)
	}
}

func TestScriptDefaultsNameAndBlocks(t *testing.T) {
	svc, _, db := newTestService(t)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	saved, err := svc.SaveScript(ctx, owner, &models.Script{Name: "  "})
	if err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if saved.Name != DefaultScriptName {
		t.Errorf("Name = %q, want %q", saved.Name, DefaultScriptName)
	}
	if saved.Blocks == nil || len(saved.Blocks) != 0 {
		t.Errorf("Blocks = %#v, want empty slice", saved.Blocks)
	}
}

func TestScriptSaveRejectsUnsafeCode(t *testing.T) {
	svc, _, db := newTestService(t)
	owner := seedOwner(t, db, "marie@example.com")

	sc := validScript("Sournois")
	sc.Blocks = append(sc.Blocks, models.ScriptBlock{
		ID:     "evil",
		Type:   models.BlockCode,
		Config: map[string]interface{}{"code": "import subprocess\n"},
	})
	_, err := svc.SaveScript(context.Background(), owner, sc)
	wantSchema(t, err, "code non autorisé")

	// Nothing was persisted.
	listed, lerr := svc.ListScripts(context.Background(), owner)
	if lerr != nil {
		t.Fatalf("ListScripts: %v", lerr)
	}
	if len(listed) != 0 {
		t.Errorf("rejected script persisted: %+v", listed)
	}
}

func TestScriptListingOrderAndFiltering(t *testing.T) {
	svc, _, db := newTestService(t)
	stepClock(svc)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	first, err := svc.SaveScript(ctx, owner, validScript("Premier"))
	if err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	second, err := svc.SaveScript(ctx, owner, validScript("Deuxième"))
	if err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if _, err := svc.SaveReport(ctx, owner, "rapport_freinage", []byte("<!DOCTYPE html><html></html>")); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	listed, err := svc.ListScripts(ctx, owner)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listing = %+v, want 2 scripts", listed)
	}
	// Most recently modified first.
	if listed[0].ID != second.ID || listed[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", listed[0].ID, listed[1].ID, second.ID, first.ID)
	}

	// Touching the first script moves it to the top.
	if _, err := svc.UpdateScript(ctx, first.ID, owner, validScript("Premier bis")); err != nil {
		t.Fatalf("UpdateScript: %v", err)
	}
	listed, err = svc.ListScripts(ctx, owner)
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if listed[0].ID != first.ID {
		t.Errorf("updated script not first: %+v", listed)
	}
}

// ===================================================================================================
// Reports
// ===================================================================================================

func TestReportLifecycle(t *testing.T) {
	svc, _, db := newTestService(t)
	owner := seedOwner(t, db, "marie@example.com")
	ctx := context.Background()

	html := []byte("<!DOCTYPE html><html><body><h1>Rapport d'essai</h1></body></html>")
	saved, err := svc.SaveReport(ctx, owner, "essai_freinage-2", html)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if saved.Name != "Essai Freinage 2" {
		t.Errorf("Name = %q, want %q", saved.Name, "Essai Freinage 2")
	}
	if saved.Filename != "essai_freinage-2.html" {
		t.Errorf("Filename = %q", saved.Filename)
	}

	path, got, err := svc.ReportPath(ctx, saved.ID, owner)
	if err != nil {
		t.Fatalf("ReportPath: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("ReportPath row = %+v", got)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(onDisk) != string(html) {
		t.Error("stored report differs from input")
	}

	listed, err := svc.ListReports(ctx, owner)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != saved.ID {
		t.Fatalf("listing = %+v", listed)
	}

	// Scripts never show up as reports.
	if _, err := svc.SaveScript(ctx, owner, validScript("Analyse")); err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	listed, err = svc.ListReports(ctx, owner)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("script leaked into report listing: %+v", listed)
	}

	if err := svc.DeleteReport(ctx, saved.ID, owner); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if _, _, err := svc.ReportPath(ctx, saved.ID, owner); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("ReportPath after delete = %v, want ErrReportNotFound", err)
	}
}

func TestReportAdminDelete(t *testing.T) {
	svc, _, db := newTestService(t)
	alice := seedOwner(t, db, "alice@example.com")
	bruno := seedOwner(t, db, "bruno@example.com")
	ctx := context.Background()

	saved, err := svc.SaveReport(ctx, alice, "perso", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	// Another user cannot delete it.
	if err := svc.DeleteReport(ctx, saved.ID, bruno); !errors.Is(err, ErrReportNotFound) {
		t.Errorf("foreign delete = %v, want ErrReportNotFound", err)
	}
	// The admin scope (empty owner) can.
	if err := svc.DeleteReport(ctx, saved.ID, ""); err != nil {
		t.Fatalf("admin DeleteReport: %v", err)
	}
	if _, err := svc.ListReports(ctx, alice); err != nil {
		t.Fatalf("ListReports: %v", err)
	}
}
