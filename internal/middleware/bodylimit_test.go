// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimit_UnderCapPassesThrough(t *testing.T) {
	var got []byte
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		got, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Read under the cap failed: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	body := strings.Repeat("x", 100)
	req := httptest.NewRequest(http.MethodPost, "/api/eda/upload", strings.NewReader(body))
	rec := httptest.NewRecorder()

	BodyLimit(1024)(handler).ServeHTTP(rec, req)

	if string(got) != body {
		t.Errorf("Handler read %d bytes, want %d", len(got), len(body))
	}
}

func TestBodyLimit_OverCapFailsRead(t *testing.T) {
	var readErr error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/eda/upload", strings.NewReader(strings.Repeat("x", 2048)))
	rec := httptest.NewRecorder()

	BodyLimit(1024)(handler).ServeHTTP(rec, req)

	if readErr == nil {
		t.Fatal("Expected read past the cap to fail")
	}
	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Errorf("Expected *http.MaxBytesError, got %T: %v", readErr, readErr)
	}
}

func TestBodyLimit_NilBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rec := httptest.NewRecorder()

	BodyLimit(1024)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET without body returned %d, want 200", rec.Code)
	}
}
