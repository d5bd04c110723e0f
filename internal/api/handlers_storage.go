// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/storage"
	"github.com/mleclerc/courbe/internal/validation"
)

// StorageInfo reports the caller's quota consumption and per-category
// usage.
func (s *Server) StorageInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(r.Context(), ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, info)
}

// StorageListFiles lists the caller's files. Query: category (optional
// filter), include_default=true to merge the read-only default set.
func (s *Server) StorageListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	if category != "" && !models.ValidCategory(category) {
		respondError(w, r, storage.ErrInvalidCategory)
		return
	}
	includeDefault := q.Get("include_default") == "true"

	files, err := s.store.List(r.Context(), ownerID(r), category, includeDefault)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// StorageUpload receives one multipart file into the caller's category
// budget. Form fields: file (required), description (optional).
func (s *Server) StorageUpload(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !models.ValidCategory(category) {
		respondError(w, r, storage.ErrInvalidCategory)
		return
	}

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

	description := clipString(r.FormValue("description"), models.MaxDescriptionLen)

	stored, err := s.store.SaveFile(r.Context(), ownerID(r), category,
		file, header.Size, header.Filename, description, nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"file":    stored,
	})
}

type saveJSONRequest struct {
	Name        string          `json:"name" validate:"required,notblank,max=100"`
	Content     json.RawMessage `json:"content" validate:"required,min=1"`
	Description string          `json:"description"`
}

// StorageSaveJSON stores a JSON document as a file in the category.
func (s *Server) StorageSaveJSON(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !models.ValidCategory(category) {
		respondError(w, r, storage.ErrInvalidCategory)
		return
	}

	var req saveJSONRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	stored, err := s.store.SaveJSON(r.Context(), ownerID(r), category,
		req.Name, req.Content, clipString(req.Description, models.MaxDescriptionLen))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"file":    stored,
	})
}

// StorageGetFile returns one file's catalog row.
func (s *Server) StorageGetFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	f, err := s.store.GetFile(r.Context(), id, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, f)
}

type updateFileRequest struct {
	Description *string           `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// StorageUpdateFile updates a file's description or metadata. Default
// files are immutable.
func (s *Server) StorageUpdateFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req updateFileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Description != nil {
		clipped := clipString(*req.Description, models.MaxDescriptionLen)
		req.Description = &clipped
	}
	f, err := s.store.UpdateMeta(r.Context(), id, ownerID(r), req.Description, req.Metadata)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"file":    f,
	})
}

// StorageDeleteFile removes a file and reclaims its quota. Default
// files cannot be deleted.
func (s *Server) StorageDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), id, ownerID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Fichier supprimé",
	})
}

// StorageDownloadFile streams a file back with its original name.
func (s *Server) StorageDownloadFile(w http.ResponseWriter, r *http.Request) {
	s.serveStoredFile(w, r, ownerID(r))
}

// StorageFileContent returns a JSON file's parsed content. Binary
// categories have no content view; clients download those.
func (s *Server) StorageFileContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	f, err := s.store.GetFile(r.Context(), id, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !strings.EqualFold(filepath.Ext(f.Filename), ".json") {
		badRequest(w, r, "Contenu non disponible pour ce type de fichier")
		return
	}

	var content interface{}
	if _, err := s.store.ReadJSON(r.Context(), id, ownerID(r), &content); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"file":    f,
		"content": content,
	})
}

// StorageListDefaults lists the read-only default assets, optionally
// filtered by category.
func (s *Server) StorageListDefaults(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category != "" && !models.ValidCategory(category) {
		respondError(w, r, storage.ErrInvalidCategory)
		return
	}
	files, err := s.store.ListDefaults(r.Context(), category)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// StorageDownloadDefault streams a default asset; no ownership needed.
func (s *Server) StorageDownloadDefault(w http.ResponseWriter, r *http.Request) {
	s.serveStoredFile(w, r, "")
}

// serveStoredFile resolves the id within the given owner scope and
// streams the backing file as an attachment.
func (s *Server) serveStoredFile(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	path, f, err := s.store.GetPath(r.Context(), id, owner)
	if err != nil {
		respondError(w, r, err)
		return
	}
	serveAttachment(w, r, path, f.OriginalName)
}

// serveAttachment streams path with a sanitized download filename.
func serveAttachment(w http.ResponseWriter, r *http.Request, path, name string) {
	name = strings.Map(func(c rune) rune {
		switch c {
		case '"', '\\', '\r', '\n':
			return '_'
		}
		return c
	}, filepath.Base(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// clipString truncates s to max bytes on a rune boundary.
func clipString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	out := make([]rune, 0, max)
	size := 0
	for _, c := range s {
		size += len(string(c))
		if size > max {
			break
		}
		out = append(out, c)
	}
	return string(out)
}
