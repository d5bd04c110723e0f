// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/artifact"
	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/formula"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
	"github.com/mleclerc/courbe/internal/tasks"
	"github.com/mleclerc/courbe/internal/usage"
	"github.com/mleclerc/courbe/internal/validation"
	"github.com/mleclerc/courbe/internal/view"
)

// Validation failures raised at the HTTP boundary itself, before any
// component is consulted.
var (
	errBadJSON   = errors.New("Corps JSON invalide")
	errInvalidID = errors.New("invalid id")
)

// errorBody is the only error shape clients ever see.
type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// respondJSON writes v with the given status. Encoding failures are
// logged and abandoned; the status line is already on the wire.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("response encoding failed")
	}
}

// badRequest writes an ad-hoc 400 for boundary validation that has no
// domain sentinel behind it.
func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	respondJSON(w, r, http.StatusBadRequest, errorBody{Error: msg})
}

// respondError maps err to its HTTP status and opaque message. Rate
// limits carry retry_after both in the body and as a Retry-After
// header. Anything unmapped becomes a 500 with a generic body; the
// cause stays in the server log.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *auth.RateLimitedError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfter))
		respondJSON(w, r, http.StatusTooManyRequests, errorBody{
			Error:      limited.Error(),
			RetryAfter: limited.RetryAfter,
		})
		return
	}

	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusRequestEntityTooLarge:
		msg = "Fichier trop volumineux"
	case http.StatusRequestTimeout:
		msg = "Délai d'attente dépassé"
	case http.StatusInternalServerError:
		logging.Ctx(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "Erreur interne du serveur"
	}
	respondJSON(w, r, status, errorBody{Error: msg})
}

// statusFor resolves a domain error to its status code. The default is
// 500: a sentinel missing from this table is a bug, and hiding it
// behind a 4xx would mask that.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrAuthRequired),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrWrongPassword):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrAccountDisabled),
		errors.Is(err, auth.ErrAdminRequired),
		errors.Is(err, auth.ErrFeatureDenied),
		errors.Is(err, storage.ErrNotOwner),
		errors.Is(err, storage.ErrDefaultReadOnly),
		errors.Is(err, storage.ErrDefaultImmutable),
		errors.Is(err, eda.ErrNotOwner):
		return http.StatusForbidden

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, storage.ErrFileNotFound),
		errors.Is(err, storage.ErrFileMissing),
		errors.Is(err, eda.ErrSessionNotFound),
		errors.Is(err, eda.ErrNoDataInRange),
		errors.Is(err, view.ErrUnknownSource),
		errors.Is(err, view.ErrNoDataInRange),
		errors.Is(err, tasks.ErrTaskNotFound),
		errors.Is(err, tasks.ErrOutputMissing),
		errors.Is(err, tasks.ErrPathOutsideDir),
		errors.Is(err, artifact.ErrLayoutNotFound),
		errors.Is(err, artifact.ErrScriptNotFound),
		errors.Is(err, artifact.ErrReportNotFound):
		return http.StatusNotFound

	case errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, eda.ErrOpenFailed),
		errors.Is(err, eda.ErrNoSignals),
		errors.Is(err, eda.ErrSignalLoad):
		return http.StatusUnprocessableEntity

	case errors.Is(err, tasks.ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, sandbox.ErrRunnerUnavailable):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout

	case errors.Is(err, errBadJSON),
		errors.Is(err, errInvalidID),
		errors.Is(err, auth.ErrSelfDelete),
		errors.Is(err, auth.ErrLastAdmin),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, storage.ErrInvalidCategory),
		errors.Is(err, eda.ErrInvalidIndex),
		errors.Is(err, eda.ErrAllNonFinite),
		errors.Is(err, eda.ErrNameRequired),
		errors.Is(err, eda.ErrNameShape),
		errors.Is(err, eda.ErrNameTooLong),
		errors.Is(err, eda.ErrMappingRequired),
		errors.Is(err, eda.ErrNotComputed),
		errors.Is(err, view.ErrNoSource),
		errors.Is(err, tasks.ErrTooFewInputs),
		errors.Is(err, tasks.ErrTooManyInputs),
		errors.Is(err, tasks.ErrNoValidChannels),
		errors.Is(err, tasks.ErrNoValidSignals),
		errors.Is(err, tasks.ErrNoCommonSignals),
		errors.Is(err, sandbox.ErrUnsafeCode),
		errors.Is(err, sandbox.ErrEmptyCode),
		errors.Is(err, formula.ErrEmpty),
		errors.Is(err, formula.ErrTooLong),
		errors.Is(err, formula.ErrForbidden),
		errors.Is(err, formula.ErrUnbalanced),
		errors.Is(err, formula.ErrDivisionByZero),
		errors.Is(err, usage.ErrBadDate):
		return http.StatusBadRequest
	}

	var (
		invalid     *validation.RequestValidationError
		policy      *auth.PolicyError
		upload      *storage.UploadError
		quota       *storage.QuotaError
		nameTaken   *eda.NameTakenError
		badVariable *eda.BadVariableError
		sigUnknown  *eda.SignalUnknownError
		lengths     *eda.LengthMismatchError
		block       *sandbox.BlockError
		schema      *artifact.SchemaError
		unsupported *tasks.UnsupportedError
		timeRange   *tasks.TimeRangeError
		notFinished *tasks.NotFinishedError
	)
	switch {
	case errors.As(err, &invalid),
		errors.As(err, &policy),
		errors.As(err, &upload),
		errors.As(err, &quota),
		errors.As(err, &nameTaken),
		errors.As(err, &badVariable),
		errors.As(err, &sigUnknown),
		errors.As(err, &lengths),
		errors.As(err, &block),
		errors.As(err, &schema),
		errors.As(err, &unsupported),
		errors.As(err, &timeRange),
		errors.As(err, &notFinished):
		return http.StatusBadRequest
	}

	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusInternalServerError
}

// decodeJSON reads the request body into v. A body clipped by the
// size cap keeps its 413 identity; any other decode failure is a
// uniform validation error.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return errBadJSON
	}
	return nil
}

// decodeValid decodes the body into v and checks its `validate` tags.
func decodeValid(r *http.Request, v interface{}) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	return validation.ValidateStruct(v)
}
