// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
	"github.com/mleclerc/courbe/internal/tasks"
	"github.com/mleclerc/courbe/internal/validation"
	"github.com/mleclerc/courbe/internal/view"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"auth required", auth.ErrAuthRequired, http.StatusUnauthorized},
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"feature denied", auth.ErrFeatureDenied, http.StatusForbidden},
		{"default read-only", storage.ErrDefaultReadOnly, http.StatusForbidden},
		{"file not found", storage.ErrFileNotFound, http.StatusNotFound},
		{"session not found", eda.ErrSessionNotFound, http.StatusNotFound},
		{"unknown source", view.ErrUnknownSource, http.StatusNotFound},
		{"task not found", tasks.ErrTaskNotFound, http.StatusNotFound},
		{"email taken", auth.ErrEmailTaken, http.StatusConflict},
		{"open failed", eda.ErrOpenFailed, http.StatusUnprocessableEntity},
		{"task rate limited", tasks.ErrRateLimited, http.StatusTooManyRequests},
		{"runner unavailable", sandbox.ErrRunnerUnavailable, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusRequestTimeout},
		{"invalid id", errInvalidID, http.StatusBadRequest},
		{"bad json", errBadJSON, http.StatusBadRequest},
		{"invalid category", storage.ErrInvalidCategory, http.StatusBadRequest},
		{"unsafe code", sandbox.ErrUnsafeCode, http.StatusBadRequest},
		{"policy error", &auth.PolicyError{Reason: "trop court"}, http.StatusBadRequest},
		{"request validation", &validation.RequestValidationError{}, http.StatusBadRequest},
		{"quota error", &storage.QuotaError{}, http.StatusBadRequest},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"wrapped sentinel", fmt.Errorf("lookup: %w", storage.ErrFileNotFound), http.StatusNotFound},
		{"unmapped", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("%s: statusFor = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestRespondErrorInternalIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	respondError(rec, req, fmt.Errorf("secret connection string dsn://user:pass"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "dsn://") {
		t.Error("internal error detail leaked to the client")
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Erreur interne du serveur" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestRespondErrorRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	respondError(rec, req, &auth.RateLimitedError{RetryAfter: 42})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q", got)
	}
	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RetryAfter != 42 || !strings.Contains(body.Error, "42") {
		t.Errorf("body = %+v", body)
	}
}

func TestDecodeJSONKeeps413Identity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a": "0123456789"}`))
	req.Body = http.MaxBytesReader(nil, req.Body, 5)

	var v map[string]string
	err := decodeJSON(req, &v)
	if statusFor(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("clipped body mapped to %d, want 413", statusFor(err))
	}

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{broken"))
	if err := decodeJSON(req, &v); err != errBadJSON {
		t.Errorf("broken body err = %v, want errBadJSON", err)
	}
}

func TestParseIndices(t *testing.T) {
	cases := []struct {
		raw  string
		want []int
		ok   bool
	}{
		{"0", []int{0}, true},
		{"0,1,2", []int{0, 1, 2}, true},
		{" 3 , 4 ", []int{3, 4}, true},
		{"", nil, false},
		{"a", nil, false},
		{"1,,2", nil, false},
		{"-1", nil, false},
	}
	for _, tc := range cases {
		got, ok := parseIndices(tc.raw)
		if ok != tc.ok {
			t.Errorf("parseIndices(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
			continue
		}
		if ok && !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseIndices(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := bearerToken(req); got != "" {
		t.Errorf("no header: %q", got)
	}
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Errorf("bearer: %q", got)
	}
	req.Header.Set("Authorization", "bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Errorf("case-insensitive scheme: %q", got)
	}
	req.Header.Set("Authorization", "Basic abc123")
	if got := bearerToken(req); got != "" {
		t.Errorf("wrong scheme: %q", got)
	}
}

func TestServeAttachmentSanitizesFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	serveAttachment(rec, req, path, "evil\"name\r\n.bin")

	cd := rec.Header().Get("Content-Disposition")
	if strings.ContainsAny(cd, "\r\n") || strings.Contains(cd, `evil"`) {
		t.Errorf("Content-Disposition not sanitized: %q", cd)
	}
}

func TestClipString(t *testing.T) {
	if got := clipString("abcdef", 4); got != "abcd" {
		t.Errorf("ascii clip = %q", got)
	}
	if got := clipString("abc", 10); got != "abc" {
		t.Errorf("short string = %q", got)
	}
	// Multibyte runes are never split.
	got := clipString("ééé", 3)
	if got != "é" {
		t.Errorf("rune clip = %q", got)
	}
}
