// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/validation"
)

// EDAUpload receives a recording (multipart field "file", optional
// "dbc") into the task directory and opens a lazy session over it.
// Nothing is decoded until the first listing.
func (s *Server) EDAUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		respondMultipartError(w, r, err)
		return
	}
	defer file.Close()

	if !validation.SafeFilename(header.Filename) {
		badRequest(w, r, "Nom de fichier invalide")
		return
	}
	if !allowedExt(header.Filename, models.CategorySpecs[models.CategoryMF4].Extensions) {
		badRequest(w, r, extensionError(models.CategorySpecs[models.CategoryMF4].Extensions))
		return
	}

	path, _, err := s.tasks.SaveInput(uniqueName(header.Filename), file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	dbcPath := ""
	if dbc, dbcHeader, dbcErr := r.FormFile("dbc"); dbcErr == nil {
		defer dbc.Close()
		if !allowedExt(dbcHeader.Filename, []string{".dbc"}) {
			badRequest(w, r, "Le fichier DBC doit avoir l'extension .dbc")
			return
		}
		if dbcPath, _, err = s.tasks.SaveInput(uniqueName(dbcHeader.Filename), dbc); err != nil {
			respondError(w, r, err)
			return
		}
	}

	sessionID := uuid.New().String()
	s.eda.Create(sessionID, ownerID(r), path, dbcPath, header.Filename)

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": sessionID,
		"filename":   header.Filename,
		"message":    "Fichier uploadé. Utilisez /api/eda/list-signals pour lister les signaux.",
	})
}

// EDAListSignals decodes the catalog (names, units, sample counts)
// without loading any sample data.
func (s *Server) EDAListSignals(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	info, err := s.eda.ListSignals(session, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, info)
}

// EDAPreloadSignal loads one signal's samples into the session.
func (s *Server) EDAPreloadSignal(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	index, err := pathIndex(r, "index")
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := s.eda.Preload(session, ownerID(r), index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, res)
}

// EDAView serves a windowed, downsampled slice of session signals,
// preloading any that are still cold.
func (s *Server) EDAView(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	indices, start, end, maxPoints, ok := parseViewQuery(w, r)
	if !ok {
		return
	}
	resp, err := s.eda.View(session, ownerID(r), indices, start, end, maxPoints)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// EDAStatus summarizes a session: listing state and per-signal load
// counts.
func (s *Server) EDAStatus(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	status, err := s.eda.Status(session, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, status)
}

// EDAClose releases a session and its loaded samples.
func (s *Server) EDAClose(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.eda.Close(session, ownerID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session fermée",
	})
}

// EDACreateComputed registers a formula-derived virtual signal on the
// session.
func (s *Server) EDACreateComputed(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req eda.ComputedRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	meta, err := s.eda.CreateComputed(session, ownerID(r), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"signal":  meta,
	})
}

// EDAListComputed lists the session's computed variables.
func (s *Server) EDAListComputed(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	vars, err := s.eda.ListComputed(session, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"variables": vars,
		"count":     len(vars),
	})
}

// EDAUpdateComputed replaces a computed variable's formula or mapping.
func (s *Server) EDAUpdateComputed(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	index, err := pathIndex(r, "index")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req eda.ComputedRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	meta, err := s.eda.UpdateComputed(session, ownerID(r), index, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"signal":  meta,
	})
}

// EDADeleteComputed removes a computed variable. Decoded signals are
// not deletable.
func (s *Server) EDADeleteComputed(w http.ResponseWriter, r *http.Request) {
	session, err := pathID(r, "session")
	if err != nil {
		respondError(w, r, err)
		return
	}
	index, err := pathIndex(r, "index")
	if err != nil {
		respondError(w, r, err)
		return
	}
	name, err := s.eda.DeleteComputed(session, ownerID(r), index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": name,
	})
}

// respondMultipartError distinguishes a missing part from a body that
// blew the size cap.
func respondMultipartError(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := errAsMaxBytes(err); ok {
		respondError(w, r, err)
		return
	}
	badRequest(w, r, "Aucun fichier fourni")
}

func errAsMaxBytes(err error) (*http.MaxBytesError, bool) {
	var tooBig *http.MaxBytesError
	ok := errors.As(err, &tooBig)
	return tooBig, ok
}

// allowedExt reports whether name carries one of the lowercase dotted
// extensions.
func allowedExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func extensionError(exts []string) string {
	return fmt.Sprintf("Extension non supportée. Extensions acceptées: %s", strings.Join(exts, ", "))
}

// uniqueName prefixes a sanitized client filename so concurrent
// uploads of the same recording never collide in the task directory.
func uniqueName(original string) string {
	base := filepath.Base(original)
	var b strings.Builder
	b.Grow(len(base))
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || name == "." || name == ".." {
		name = "upload"
	}
	return uuid.New().String() + "_" + name
}
