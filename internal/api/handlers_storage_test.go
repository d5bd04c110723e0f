// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

// doMultipart posts one file (plus optional extra form fields) through
// the full stack.
func (ts *testServer) doMultipart(t *testing.T, path, token, field, filename string, content []byte, extra map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for k, v := range extra {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s): %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestStorageJSONLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	rec := ts.do(t, http.MethodPost, "/api/storage/json/layouts", token, map[string]interface{}{
		"name":        "vue-moteur",
		"content":     map[string]interface{}{"panels": []string{"rpm", "speed"}},
		"description": "Tableau moteur",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save json: status %d, body %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		File struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
			Category string `json:"category"`
		} `json:"file"`
	}
	decodeBody(t, rec, &saved)
	if saved.File.ID == "" || saved.File.Category != "layouts" {
		t.Fatalf("saved file = %+v", saved.File)
	}
	if !strings.HasSuffix(saved.File.Filename, ".json") {
		t.Errorf("filename %q missing .json suffix", saved.File.Filename)
	}

	rec = ts.do(t, http.MethodGet, "/api/storage/files?category=layouts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	rec = ts.do(t, http.MethodGet, "/api/storage/files/"+saved.File.ID+"/content", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("content: status %d, body %s", rec.Code, rec.Body.String())
	}
	var content struct {
		Content struct {
			Panels []string `json:"panels"`
		} `json:"content"`
	}
	decodeBody(t, rec, &content)
	if len(content.Content.Panels) != 2 {
		t.Errorf("content panels = %v", content.Content.Panels)
	}

	newDesc := "Tableau moteur v2"
	rec = ts.do(t, http.MethodPut, "/api/storage/files/"+saved.File.ID, token, map[string]interface{}{
		"description": newDesc,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		File struct {
			Description string `json:"description"`
		} `json:"file"`
	}
	decodeBody(t, rec, &updated)
	if updated.File.Description != newDesc {
		t.Errorf("description = %q", updated.File.Description)
	}

	rec = ts.do(t, http.MethodDelete, "/api/storage/files/"+saved.File.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/storage/files/"+saved.File.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestStorageUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	payload := []byte("VERSION \"1.0\"\nBO_ 256 Engine: 8 ECU\n")
	rec := ts.doMultipart(t, "/api/storage/files/dbc", token, "file", "vehicle.dbc", payload,
		map[string]string{"description": "Base CAN"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: status %d, body %s", rec.Code, rec.Body.String())
	}
	var up struct {
		File struct {
			ID           string `json:"id"`
			OriginalName string `json:"original_name"`
			SizeBytes    int64  `json:"size_bytes"`
		} `json:"file"`
	}
	decodeBody(t, rec, &up)
	if up.File.OriginalName != "vehicle.dbc" || up.File.SizeBytes != int64(len(payload)) {
		t.Fatalf("uploaded file = %+v", up.File)
	}

	rec = ts.do(t, http.MethodGet, "/api/storage/files/"+up.File.ID+"/download", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: status %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Error("downloaded bytes differ from upload")
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="vehicle.dbc"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	// Binary categories have no parsed-content view.
	rec = ts.do(t, http.MethodGet, "/api/storage/files/"+up.File.ID+"/content", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("content on .dbc: status %d, want 400", rec.Code)
	}

	// Quota accounting reflects the upload.
	rec = ts.do(t, http.MethodGet, "/api/storage/info", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info: status %d", rec.Code)
	}
}

func TestStorageRejectsUnknownCategory(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	rec := ts.do(t, http.MethodPost, "/api/storage/json/movies", token, map[string]interface{}{
		"name": "x", "content": map[string]string{"a": "b"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error != "Catégorie invalide" {
		t.Errorf("error = %q", body.Error)
	}

	rec = ts.do(t, http.MethodGet, "/api/storage/files?category=movies", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("list with bad category: status %d, want 400", rec.Code)
	}
}

func TestStorageRejectsWrongExtension(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	rec := ts.doMultipart(t, "/api/storage/files/dbc", token, "file", "notes.txt",
		[]byte("plain text"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("wrong extension: status %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestStorageOwnersAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	marie := ts.register(t, "marie@example.com")
	paul := ts.register(t, "paul@example.com")

	rec := ts.do(t, http.MethodPost, "/api/storage/json/layouts", marie, map[string]interface{}{
		"name": "privee", "content": map[string]string{"k": "v"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save: status %d", rec.Code)
	}
	var saved struct {
		File struct {
			ID string `json:"id"`
		} `json:"file"`
	}
	decodeBody(t, rec, &saved)

	// Another owner resolves the same id to nothing; existence is not
	// leaked as a 403.
	rec = ts.do(t, http.MethodGet, "/api/storage/files/"+saved.File.ID, paul, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-owner get: status %d, want 404", rec.Code)
	}
	rec = ts.do(t, http.MethodDelete, "/api/storage/files/"+saved.File.ID, paul, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-owner delete: status %d, want 404", rec.Code)
	}
}

func TestStorageSaveJSONValidation(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"content": map[string]string{"a": "b"}}},
		{"blank name", map[string]interface{}{"name": "   ", "content": map[string]string{"a": "b"}}},
		{"missing content", map[string]interface{}{"name": "x"}},
	}
	for _, tc := range cases {
		rec := ts.do(t, http.MethodPost, "/api/storage/json/layouts", token, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestStorageErrorBodyShape(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	rec := ts.do(t, http.MethodGet, "/api/storage/files/aaaaaaaa-0000-0000-0000-000000000000", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]json.RawMessage
	decodeBody(t, rec, &body)
	if _, ok := body["error"]; !ok || len(body) != 1 {
		t.Errorf("error body keys = %v, want exactly {error}", body)
	}
}
