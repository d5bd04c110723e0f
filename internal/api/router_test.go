// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/artifact"
	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/database"
	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/ratelimit"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
	"github.com/mleclerc/courbe/internal/tasks"
	"github.com/mleclerc/courbe/internal/usage"
	"github.com/mleclerc/courbe/internal/view"
)

const testPassword = "Abcdefg1"

// testServer wires the full stack over temp directories, the way the
// entrypoint does, and serves it through the real router so middleware
// ordering and gates are part of what gets exercised.
type testServer struct {
	handler http.Handler
	srv     *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Environment:  "development",
			CORSOrigins:  []string{"http://localhost:3000"},
			MaxBodyBytes: 32 * 1024 * 1024,
		},
		Database: config.DatabaseConfig{
			Path:        filepath.Join(dir, "test.db"),
			BusyTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			TokenExpiryHours: 1,
			// Cheap argon2 keeps the suite fast.
			Argon2Memory:  8 * 1024,
			Argon2Time:    1,
			Argon2Threads: 1,
		},
		Storage: config.StorageConfig{Root: filepath.Join(dir, "files")},
		EDA: config.EDAConfig{
			SessionTTL:     time.Hour,
			MaxSessions:    10,
			MaxViewSignals: 50,
		},
		Tasks: config.TasksConfig{
			Dir:           filepath.Join(dir, "tasks"),
			Parallelism:   1,
			ConvertMaxAge: time.Hour,
			ConcatMaxAge:  time.Hour,
			DefaultRaster: 0.01,
			CSVChunkRows:  1000,
		},
		Sandbox: config.SandboxConfig{
			PythonPath:     "python3",
			WallTimeout:    5 * time.Second,
			MaxCodeLength:  10_000,
			MaxNodes:       1000,
			MaxStringChars: 1000,
		},
		Usage: config.UsageConfig{
			DataDir:       filepath.Join(dir, "metrics"),
			RetentionDays: 30,
		},
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	features, err := auth.NewFeatures()
	if err != nil {
		t.Fatalf("auth.NewFeatures: %v", err)
	}
	am, err := auth.NewManager(db, ratelimit.New(ratelimit.DefaultConfig()), features, &cfg.Auth)
	if err != nil {
		t.Fatalf("auth.NewManager: %v", err)
	}

	store, err := storage.New(db, &cfg.Storage)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	backend := decode.NewSynthetic()
	sessions := eda.NewManager(backend, eda.Config{
		SessionTTL:     cfg.EDA.SessionTTL,
		MaxSessions:    cfg.EDA.MaxSessions,
		MaxViewSignals: cfg.EDA.MaxViewSignals,
	})
	tm, err := tasks.NewManager(backend, tasks.Config{
		Dir:           cfg.Tasks.Dir,
		Parallelism:   cfg.Tasks.Parallelism,
		ConvertMaxAge: cfg.Tasks.ConvertMaxAge,
		ConcatMaxAge:  cfg.Tasks.ConcatMaxAge,
		DefaultRaster: cfg.Tasks.DefaultRaster,
		CSVChunkRows:  cfg.Tasks.CSVChunkRows,
	})
	if err != nil {
		t.Fatalf("tasks.NewManager: %v", err)
	}

	sandboxCfg := sandbox.Config{
		PythonPath:     cfg.Sandbox.PythonPath,
		WallTimeout:    cfg.Sandbox.WallTimeout,
		MaxCodeLength:  cfg.Sandbox.MaxCodeLength,
		MaxNodes:       cfg.Sandbox.MaxNodes,
		MaxStringChars: cfg.Sandbox.MaxStringChars,
	}
	runner := sandbox.NewRunner(sandboxCfg)
	artifacts := artifact.NewService(store, sandboxCfg)

	collector, err := usage.New(cfg.Usage)
	if err != nil {
		t.Fatalf("usage.New: %v", err)
	}

	views := view.NewRegistry(cfg.EDA.MaxViewSignals)
	demo, err := view.NewSource("demo_obd2", "Démo OBD2", "Trajet urbain simulé", decode.NewDemo(), nil)
	if err != nil {
		t.Fatalf("view.NewSource: %v", err)
	}
	views.Register(demo)

	srv := New(cfg, am, store, sessions, tm, views, runner, sandboxCfg, artifacts, collector)
	return &testServer{handler: srv.Routes(), srv: srv}
}

// do issues one request through the full middleware stack. A non-nil
// body is marshaled as JSON.
func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

// register creates an account and returns its session token. The first
// account in an empty database is the administrator.
func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": testPassword,
		"name":     "Test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("register returned no token")
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Loaded bool   `json:"loaded"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	// The first registered source is the default, so the summary is
	// populated even without an explicit activation.
	if !resp.Loaded {
		t.Error("loaded = false with a registered demo source")
	}
}

func TestRegisterFirstAccountIsAdmin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "first@example.com", "password": testPassword, "name": "First",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register: status %d, body %s", rec.Code, rec.Body.String())
	}
	var first struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	decodeBody(t, rec, &first)
	if first.User.Role != "admin" {
		t.Errorf("first account role = %q, want admin", first.User.Role)
	}

	rec = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "second@example.com", "password": testPassword, "name": "Second",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("second register: status %d", rec.Code)
	}
	var second struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	decodeBody(t, rec, &second)
	if second.User.Role != "user" {
		t.Errorf("second account role = %q, want user", second.User.Role)
	}

	// Same email again is a conflict with an opaque error body.
	rec = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "second@example.com", "password": testPassword, "name": "Again",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["error"] == "" || body["error"] == nil {
		t.Errorf("conflict body = %v, want error field", body)
	}
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "marie@example.com")

	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "marie@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &login)

	rec = ts.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	var me struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeBody(t, rec, &me)
	if me.User.Email != "marie@example.com" {
		t.Errorf("me email = %q", me.User.Email)
	}

	// A stale token is rejected outright, not degraded to anonymous.
	bad := "0000000000000000000000000000000000000000000000000000000000000000"
	rec = ts.do(t, http.MethodGet, "/api/sources", bad, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("stale token on public route: status %d, want 401", rec.Code)
	}

	// A token that is not even token-shaped fails the same way.
	rec = ts.do(t, http.MethodGet, "/api/sources", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("malformed token: status %d, want 401", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "marie@example.com", "password": "WrongPass1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password login: status %d, want 401", rec.Code)
	}
}

func TestLoginSweepsOrphanedFiles(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "marie@example.com", "password": testPassword, "name": "Marie",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d, body %s", rec.Code, rec.Body.String())
	}
	var reg struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, rec, &reg)

	// Orphan a row: upload, then yank the backing file from under it.
	content := "BO_ 100 Engine: 8 ECU"
	f, err := ts.srv.store.SaveFile(ctx, reg.User.ID, models.CategoryDBC,
		strings.NewReader(content), int64(len(content)), "moteur.dbc", "", nil)
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	path, _, err := ts.srv.store.GetPath(ctx, f.ID, reg.User.ID)
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "marie@example.com", "password": testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}

	// The sweep runs off the request goroutine; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := ts.srv.store.GetFile(ctx, f.ID, reg.User.ID); errors.Is(err, storage.ErrFileNotFound) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("orphaned row still listed after login")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAnonymousGates(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/auth/me", http.StatusUnauthorized},
		{http.MethodPost, "/api/eda/upload", http.StatusUnauthorized},
		{http.MethodGet, "/api/storage/files", http.StatusUnauthorized},
		{http.MethodPost, "/api/layouts/", http.StatusUnauthorized},
		{http.MethodPost, "/api/scripts/run", http.StatusUnauthorized},
		{http.MethodGet, "/api/admin/users", http.StatusUnauthorized},
		{http.MethodGet, "/api/metrics/current", http.StatusUnauthorized},
		{http.MethodPost, "/api/metrics/cleanup", http.StatusUnauthorized},
		// Public surfaces stay open.
		{http.MethodGet, "/api/sources", http.StatusOK},
		{http.MethodGet, "/api/layouts/", http.StatusOK},
		{http.MethodGet, "/api/reports/", http.StatusOK},
		{http.MethodGet, "/api/convert/formats", http.StatusOK},
		{http.MethodGet, "/api/storage/default", http.StatusOK},
		{http.MethodGet, "/api/metrics/health", http.StatusOK},
		{http.MethodGet, "/api/auth/features", http.StatusOK},
	}
	for _, tc := range cases {
		rec := ts.do(t, tc.method, tc.path, "", nil)
		if rec.Code != tc.want {
			t.Errorf("%s %s: status %d, want %d (body %s)",
				tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestNonAdminForbidden(t *testing.T) {
	ts := newTestServer(t)
	adminToken := ts.register(t, "admin@example.com")
	userToken := ts.register(t, "user@example.com")

	for _, path := range []string{"/api/admin/users", "/api/metrics/current"} {
		rec := ts.do(t, http.MethodGet, path, userToken, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("user GET %s: status %d, want 403", path, rec.Code)
		}
		rec = ts.do(t, http.MethodGet, path, adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("admin GET %s: status %d, want 200 (body %s)", path, rec.Code, rec.Body.String())
		}
	}
}

func TestFeaturesEndpointByRole(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/auth/features", "", nil)
	var anon struct {
		Role          string   `json:"role"`
		Features      []string `json:"features"`
		Authenticated bool     `json:"authenticated"`
	}
	decodeBody(t, rec, &anon)
	if anon.Role != "anonymous" || anon.Authenticated {
		t.Errorf("anonymous features: %+v", anon)
	}
	for _, f := range anon.Features {
		if f == auth.FeatureUploadFiles {
			t.Error("anonymous role granted upload_files")
		}
	}

	token := ts.register(t, "someone@example.com")
	rec = ts.do(t, http.MethodGet, "/api/auth/features", token, nil)
	var admin struct {
		Features []string `json:"features"`
	}
	decodeBody(t, rec, &admin)
	found := false
	for _, f := range admin.Features {
		if f == auth.FeatureManageUsers {
			found = true
		}
	}
	if !found {
		t.Errorf("admin features missing manage_users: %v", admin.Features)
	}
}

func TestSourceActivationAndView(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/sources", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sources: status %d", rec.Code)
	}
	var list struct {
		Sources []struct {
			ID          string `json:"id"`
			SignalCount int    `json:"signal_count"`
		} `json:"sources"`
	}
	decodeBody(t, rec, &list)
	if len(list.Sources) != 1 || list.Sources[0].ID != "demo_obd2" {
		t.Fatalf("sources = %+v", list.Sources)
	}
	if list.Sources[0].SignalCount == 0 {
		t.Error("demo source has no signals")
	}

	rec = ts.do(t, http.MethodPost, "/api/source/demo_obd2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d, body %s", rec.Code, rec.Body.String())
	}
	var info struct {
		Source   string `json:"source"`
		NSignals int    `json:"n_signals"`
	}
	decodeBody(t, rec, &info)
	if info.Source != "demo_obd2" || info.NSignals == 0 {
		t.Errorf("activate info = %+v", info)
	}

	rec = ts.do(t, http.MethodGet, "/api/view?signals=0,1&max_points=100", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view: status %d, body %s", rec.Code, rec.Body.String())
	}
	var vr struct {
		Signals []struct {
			Timestamps     []float64 `json:"timestamps"`
			ReturnedPoints int       `json:"returned_points"`
		} `json:"signals"`
		MaxPoints int `json:"max_points"`
	}
	decodeBody(t, rec, &vr)
	if len(vr.Signals) != 2 {
		t.Fatalf("view returned %d signals, want 2", len(vr.Signals))
	}
	for i, sig := range vr.Signals {
		if sig.ReturnedPoints == 0 || sig.ReturnedPoints > vr.MaxPoints {
			t.Errorf("signal %d returned_points = %d (max %d)", i, sig.ReturnedPoints, vr.MaxPoints)
		}
		if len(sig.Timestamps) != sig.ReturnedPoints {
			t.Errorf("signal %d: %d timestamps, returned_points %d", i, len(sig.Timestamps), sig.ReturnedPoints)
		}
	}

	rec = ts.do(t, http.MethodGet, "/api/view?signals=zero", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad signals param: status %d, want 400", rec.Code)
	}
}

func TestSourceIDValidation(t *testing.T) {
	ts := newTestServer(t)

	// A traversal-shaped id dies at the boundary, before any lookup.
	rec := ts.do(t, http.MethodPost, "/api/source/..", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("traversal id: status %d, want 400", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "invalid id" {
		t.Errorf("error = %q, want %q", body.Error, "invalid id")
	}

	// A well-shaped but unknown id is a plain 404.
	rec = ts.do(t, http.MethodPost, "/api/source/nonexistent", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d, want 404", rec.Code)
	}
}

func TestBadJSONBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "Corps JSON invalide" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestSecurityHeadersOnAPIResponses(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/sources", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}
