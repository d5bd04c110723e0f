// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/mleclerc/courbe/internal/middleware"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/validation"
)

// ListLayouts returns the caller's layouts plus the demo set.
func (s *Server) ListLayouts(w http.ResponseWriter, r *http.Request) {
	layouts, err := s.artifacts.ListLayouts(r.Context(), ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"layouts": layouts,
		"count":   len(layouts),
	})
}

// GetLayout returns one layout body.
func (s *Server) GetLayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	layout, err := s.artifacts.GetLayout(r.Context(), id, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, layout)
}

// CreateLayout validates and persists a new layout.
func (s *Server) CreateLayout(w http.ResponseWriter, r *http.Request) {
	var layout models.Layout
	if err := decodeJSON(r, &layout); err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := s.artifacts.SaveLayout(r.Context(), ownerID(r), &layout)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"layout":  saved,
	})
}

// UpdateLayout replaces an owned layout's body.
func (s *Server) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var layout models.Layout
	if err := decodeJSON(r, &layout); err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := s.artifacts.UpdateLayout(r.Context(), id, ownerID(r), &layout)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"layout":  saved,
	})
}

// DeleteLayout removes an owned layout. Demo layouts are read-only.
func (s *Server) DeleteLayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.artifacts.DeleteLayout(r.Context(), id, ownerID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Layout supprimé",
	})
}

// ListScripts returns the caller's analysis scripts plus the demo set.
func (s *Server) ListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.artifacts.ListScripts(r.Context(), ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"scripts": scripts,
		"count":   len(scripts),
	})
}

// ScriptAllowedModules publishes the sandbox import allow-list so the
// frontend editor can lint before submitting.
func (s *Server) ScriptAllowedModules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"modules":  sandbox.AllowedModules(),
		"builtins": sandbox.AllowedBuiltins(),
	})
}

// GetScript returns one script body.
func (s *Server) GetScript(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	script, err := s.artifacts.GetScript(r.Context(), id, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, script)
}

// CreateScript validates and persists a new block script. Code blocks
// pass the static sandbox check before anything is stored.
func (s *Server) CreateScript(w http.ResponseWriter, r *http.Request) {
	var script models.Script
	if err := decodeJSON(r, &script); err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := s.artifacts.SaveScript(r.Context(), ownerID(r), &script)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"script":  saved,
	})
}

// UpdateScript replaces an owned script's body.
func (s *Server) UpdateScript(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var script models.Script
	if err := decodeJSON(r, &script); err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := s.artifacts.UpdateScript(r.Context(), id, ownerID(r), &script)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"script":  saved,
	})
}

// DeleteScript removes an owned script. Demo scripts are read-only.
func (s *Server) DeleteScript(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.artifacts.DeleteScript(r.Context(), id, ownerID(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Script supprimé",
	})
}

type validateCodeRequest struct {
	Code string `json:"code"`
}

// ScriptValidate runs only the static stage over submitted code.
func (s *Server) ScriptValidate(w http.ResponseWriter, r *http.Request) {
	var req validateCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, s.runner.Validate(req.Code))
}

// ScriptPreview renders a block script to the source the sandbox would
// execute, without running it.
func (s *Server) ScriptPreview(w http.ResponseWriter, r *http.Request) {
	var script models.Script
	if err := decodeJSON(r, &script); err != nil {
		respondError(w, r, err)
		return
	}
	code, err := sandbox.GenerateCode(&script, s.sandboxCfg)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"code":    code,
	})
}

type scriptRunRequest struct {
	// ScriptID runs a saved script; Script runs an ad-hoc body. Exactly
	// one must be present.
	ScriptID string         `json:"script_id,omitempty"`
	Script   *models.Script `json:"script,omitempty"`
	// Data binds named sample arrays into the sandbox namespace.
	Data map[string][]float64 `json:"data,omitempty"`
	// TimeoutSeconds caps the run below the configured wall limit.
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	// SaveReport persists the produced HTML document under ReportName.
	SaveReport bool   `json:"save_report,omitempty"`
	ReportName string `json:"report_name,omitempty"`
}

// ScriptRun renders a block script and executes it in the sandbox.
// Saved scripts get their run history stamped; the produced report can
// be persisted in the same call.
func (s *Server) ScriptRun(w http.ResponseWriter, r *http.Request) {
	var req scriptRunRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	script := req.Script
	if req.ScriptID != "" {
		if !validation.ValidIdentifier(req.ScriptID) {
			respondError(w, r, errInvalidID)
			return
		}
		saved, err := s.artifacts.GetScript(r.Context(), req.ScriptID, ownerID(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		script = saved
	}
	if script == nil {
		badRequest(w, r, "Script requis")
		return
	}

	code, err := sandbox.GenerateCode(script, s.sandboxCfg)
	if err != nil {
		respondError(w, r, err)
		return
	}

	timeout := s.cfg.Sandbox.WallTimeout
	if req.TimeoutSeconds > 0 {
		requested := time.Duration(req.TimeoutSeconds * float64(time.Second))
		if requested < timeout {
			timeout = requested
		}
	}

	started := time.Now()
	result, err := s.runner.Run(r.Context(), code, req.Data, timeout)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.usage.RecordAction(middleware.ClientIP(r), "script_run")

	if req.ScriptID != "" {
		status := "success"
		if !result.Success {
			status = "error"
		}
		if err := s.artifacts.RecordRun(r.Context(), req.ScriptID, ownerID(r), status, time.Since(started)); err != nil {
			s.log.Warn().Err(err).Str("script_id", req.ScriptID).Msg("run history stamp failed")
		}
	}

	resp := map[string]interface{}{"result": result}
	if req.SaveReport && result.Success {
		if html, ok := result.Result.(string); ok && strings.TrimSpace(html) != "" {
			report, err := s.artifacts.SaveReport(r.Context(), ownerID(r), req.ReportName, []byte(html))
			if err != nil {
				respondError(w, r, err)
				return
			}
			resp["report"] = report
		}
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// ListReports returns the report catalog visible to the caller.
func (s *Server) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.artifacts.ListReports(r.Context(), ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

type saveReportRequest struct {
	Name string `json:"name"`
	HTML string `json:"html" validate:"required,notblank"`
}

// SaveReport persists a rendered HTML report document.
func (s *Server) SaveReport(w http.ResponseWriter, r *http.Request) {
	var req saveReportRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	report, err := s.artifacts.SaveReport(r.Context(), ownerID(r), req.Name, []byte(req.HTML))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success": true,
		"report":  report,
	})
}

// ReportDownload streams a report document.
func (s *Server) ReportDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	path, report, err := s.artifacts.ReportPath(r.Context(), id, ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	serveAttachment(w, r, path, report.Filename)
}

// DeleteReport removes a report. Admins act in the global scope and
// can delete any user's report.
func (s *Server) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	owner := ownerID(r)
	if u := CurrentUser(r.Context()); u != nil && u.IsAdmin() {
		owner = ""
	}
	if err := s.artifacts.DeleteReport(r.Context(), id, owner); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Rapport supprimé",
	})
}
