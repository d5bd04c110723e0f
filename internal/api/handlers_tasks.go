// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"

	"github.com/mleclerc/courbe/internal/middleware"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/tasks"
	"github.com/mleclerc/courbe/internal/validation"
)

// taskNotFoundOr hides kind mismatches behind the same absence a wrong
// id gets.
func taskNotFoundOr(err error) error {
	if err != nil {
		return err
	}
	return tasks.ErrTaskNotFound
}

// ConvertFormats describes the supported conversions and the default
// resample raster.
func (s *Server) ConvertFormats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"input_formats":  models.CategorySpecs[models.CategoryMF4].Extensions,
		"output_formats": []string{"csv"},
		"default_raster": s.cfg.Tasks.DefaultRaster,
	})
}

// ConvertUpload receives a recording (multipart "file", optional "dbc")
// into the task directory. The returned paths feed /api/convert/start.
func (s *Server) ConvertUpload(w http.ResponseWriter, r *http.Request) {
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

	path, size, err := s.tasks.SaveInput(uniqueName(header.Filename), file)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"success":    true,
		"file_path":  path,
		"filename":   header.Filename,
		"size_bytes": size,
	}

	if dbc, dbcHeader, dbcErr := r.FormFile("dbc"); dbcErr == nil {
		defer dbc.Close()
		if !allowedExt(dbcHeader.Filename, []string{".dbc"}) {
			badRequest(w, r, "Le fichier DBC doit avoir l'extension .dbc")
			return
		}
		dbcPath, _, err := s.tasks.SaveInput(uniqueName(dbcHeader.Filename), dbc)
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp["dbc_path"] = dbcPath
	}

	respondJSON(w, r, http.StatusOK, resp)
}

type convertStartRequest struct {
	FilePath       string  `json:"file_path"`
	DBCPath        string  `json:"dbc_path"`
	OutputFormat   string  `json:"output_format"`
	ResampleRaster float64 `json:"resample_raster"`
}

// ConvertStart enqueues a conversion and returns its task id
// immediately; the work runs on a background worker.
func (s *Server) ConvertStart(w http.ResponseWriter, r *http.Request) {
	var req convertStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.FilePath == "" {
		badRequest(w, r, "Chemin de fichier requis")
		return
	}
	if req.OutputFormat == "" {
		req.OutputFormat = "csv"
	}

	task, err := s.tasks.CreateConvert(ownerID(r), req.FilePath, req.OutputFormat, req.DBCPath, req.ResampleRaster)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.usage.RecordAction(middleware.ClientIP(r), "convert_start")
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"task_id": task.ID,
		"status":  task.Status,
	})
}

// ConvertStatus polls a conversion task.
func (s *Server) ConvertStatus(w http.ResponseWriter, r *http.Request) {
	s.taskStatus(w, r, models.TaskConvert)
}

// ConvertDownload streams a completed conversion's output.
func (s *Server) ConvertDownload(w http.ResponseWriter, r *http.Request) {
	s.taskDownload(w, r, models.TaskConvert)
}

// ConvertCleanup forces a janitor pass over finished tasks (admin).
func (s *Server) ConvertCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.tasks.Cleanup()
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"removed": removed,
	})
}

// ConcatUploadSingle receives one recording of a concatenation batch.
// Clients call it once per input, then start with the returned paths.
func (s *Server) ConcatUploadSingle(w http.ResponseWriter, r *http.Request) {
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

	path, size, err := s.tasks.SaveInput(uniqueName(header.Filename), file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":    true,
		"file_path":  path,
		"filename":   header.Filename,
		"size_bytes": size,
	})
}

type concatStartRequest struct {
	FilePaths []string `json:"file_paths"`
}

// ConcatStart enqueues a concatenation of previously uploaded inputs.
func (s *Server) ConcatStart(w http.ResponseWriter, r *http.Request) {
	var req concatStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	task, err := s.tasks.CreateConcat(ownerID(r), req.FilePaths)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.usage.RecordAction(middleware.ClientIP(r), "concat_start")
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"task_id": task.ID,
		"status":  task.Status,
	})
}

// ConcatStatus polls a concatenation task.
func (s *Server) ConcatStatus(w http.ResponseWriter, r *http.Request) {
	s.taskStatus(w, r, models.TaskConcat)
}

// ConcatDownload streams a completed concatenation's merged recording.
func (s *Server) ConcatDownload(w http.ResponseWriter, r *http.Request) {
	s.taskDownload(w, r, models.TaskConcat)
}

// taskStatus returns the task snapshot when its kind matches the route
// family; convert ids are invisible to the concat routes and vice
// versa.
func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request, kind string) {
	id, err := pathID(r, "task")
	if err != nil {
		respondError(w, r, err)
		return
	}
	task, err := s.tasks.Get(id, ownerID(r))
	if err != nil || task.Kind != kind {
		respondError(w, r, taskNotFoundOr(err))
		return
	}
	respondJSON(w, r, http.StatusOK, task)
}

func (s *Server) taskDownload(w http.ResponseWriter, r *http.Request, kind string) {
	id, err := pathID(r, "task")
	if err != nil {
		respondError(w, r, err)
		return
	}
	task, err := s.tasks.Get(id, ownerID(r))
	if err != nil || task.Kind != kind {
		respondError(w, r, taskNotFoundOr(err))
		return
	}
	path, name, err := s.tasks.Download(id, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	serveAttachment(w, r, path, name)
}
