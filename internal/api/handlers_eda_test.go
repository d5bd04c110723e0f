// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"fmt"
	"net/http"
	"testing"
)

// uploadSession stages a recording through the upload route and returns
// the opened session id.
func (ts *testServer) uploadSession(t *testing.T, token string) string {
	t.Helper()
	rec := ts.doMultipart(t, "/api/eda/upload", token, "file", "trip.mf4", recordingBytes(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status %d, body %s", rec.Code, rec.Body.String())
	}
	var up struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, rec, &up)
	if up.SessionID == "" {
		t.Fatal("upload returned no session_id")
	}
	return up.SessionID
}

func TestEDAUploadAndExplore(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")
	session := ts.uploadSession(t, token)

	rec := ts.do(t, http.MethodGet, "/api/eda/list-signals/"+session, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list-signals: status %d, body %s", rec.Code, rec.Body.String())
	}
	var info struct {
		NSignals int `json:"n_signals"`
		Signals  []struct {
			Name   string `json:"name"`
			Loaded bool   `json:"loaded"`
		} `json:"signals"`
	}
	decodeBody(t, rec, &info)
	if info.NSignals == 0 || len(info.Signals) != info.NSignals {
		t.Fatalf("signal catalog: %+v", info)
	}

	rec = ts.do(t, http.MethodGet, "/api/eda/view/"+session+"?signals=1&max_points=100", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view: status %d, body %s", rec.Code, rec.Body.String())
	}
	var vr struct {
		Signals []struct {
			ReturnedPoints int `json:"returned_points"`
		} `json:"signals"`
	}
	decodeBody(t, rec, &vr)
	if len(vr.Signals) != 1 || vr.Signals[0].ReturnedPoints == 0 {
		t.Errorf("view signals = %+v", vr.Signals)
	}

	rec = ts.do(t, http.MethodGet, "/api/eda/session/"+session, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, "/api/eda/session/"+session, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/eda/session/"+session, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after close: %d, want 404", rec.Code)
	}
}

func TestEDAComputedVariables(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")
	session := ts.uploadSession(t, token)

	rec := ts.do(t, http.MethodPost, "/api/eda/computed/"+session+"/", token, map[string]interface{}{
		"name":    "RPM_milliers",
		"unit":    "krpm",
		"formula": "A / 1000",
		"mapping": map[string]string{"A": "EngineRPM"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Signal struct {
			Index    int  `json:"index"`
			Computed bool `json:"computed"`
		} `json:"signal"`
	}
	decodeBody(t, rec, &created)
	if !created.Signal.Computed {
		t.Error("created signal not flagged computed")
	}

	rec = ts.do(t, http.MethodGet, "/api/eda/computed/"+session+"/", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("computed count = %d, want 1", list.Count)
	}

	// The derived signal is viewable like any decoded one.
	rec = ts.do(t, http.MethodGet,
		fmt.Sprintf("/api/eda/view/%s?signals=%d", session, created.Signal.Index), token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("view computed: status %d, body %s", rec.Code, rec.Body.String())
	}

	// A name colliding with an existing signal is rejected.
	rec = ts.do(t, http.MethodPost, "/api/eda/computed/"+session+"/", token, map[string]interface{}{
		"name":    "EngineRPM",
		"formula": "A * 2",
		"mapping": map[string]string{"A": "VehicleSpeed"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("name collision: status %d, want 400", rec.Code)
	}

	// Unknown source signal.
	rec = ts.do(t, http.MethodPost, "/api/eda/computed/"+session+"/", token, map[string]interface{}{
		"name":    "Fantome",
		"formula": "A",
		"mapping": map[string]string{"A": "NoSuchSignal"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown source: status %d, want 400", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete,
		fmt.Sprintf("/api/eda/computed/%s/%d", session, created.Signal.Index), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d, body %s", rec.Code, rec.Body.String())
	}

	// Decoded signals cannot be deleted through the computed routes.
	rec = ts.do(t, http.MethodDelete, "/api/eda/computed/"+session+"/0", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete decoded signal: status %d, want 400", rec.Code)
	}
}

func TestEDAUploadRejectsWrongExtension(t *testing.T) {
	ts := newTestServer(t)
	token := ts.register(t, "marie@example.com")

	rec := ts.doMultipart(t, "/api/eda/upload", token, "file", "notes.txt", []byte("x"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEDASessionsAreOwnerScoped(t *testing.T) {
	ts := newTestServer(t)
	marie := ts.register(t, "marie@example.com")
	paul := ts.register(t, "paul@example.com")
	session := ts.uploadSession(t, marie)

	rec := ts.do(t, http.MethodGet, "/api/eda/list-signals/"+session, paul, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-owner list-signals: status %d, want 403", rec.Code)
	}
	rec = ts.do(t, http.MethodDelete, "/api/eda/session/"+session, paul, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-owner close: status %d, want 403", rec.Code)
	}
}
