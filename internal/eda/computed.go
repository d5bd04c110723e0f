// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package eda

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mleclerc/courbe/internal/formula"
	"github.com/mleclerc/courbe/internal/models"
)

// MaxComputedNameLen caps computed-variable names.
const MaxComputedNameLen = 100

var computedNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ComputedRequest is the payload for creating or updating a computed
// variable. Mapping binds single capital letters to signal names.
type ComputedRequest struct {
	Name        string            `json:"name"`
	Unit        string            `json:"unit"`
	Description string            `json:"description"`
	Formula     string            `json:"formula"`
	Mapping     map[string]string `json:"mapping"`
}

// ComputedVariable describes one computed signal of a session.
type ComputedVariable struct {
	Index         int      `json:"index"`
	Name          string   `json:"name"`
	Unit          string   `json:"unit"`
	Formula       string   `json:"formula"`
	Description   string   `json:"description"`
	SourceSignals []string `json:"source_signals"`
}

// CreateComputed evaluates a formula over mapped signals and appends
// the result to the session catalog as a loaded, computed signal. The
// result inherits the timestamps of the first bound signal (lowest
// mapped letter); every bound signal must share its sample count.
func (m *Manager) CreateComputed(id, owner string, req ComputedRequest) (*models.SignalMeta, error) {
	s, err := m.get(id, owner)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if !computedNameRe.MatchString(name) {
		return nil, ErrNameShape
	}
	if len(name) > MaxComputedNameLen {
		return nil, ErrNameTooLong
	}

	expr, err := formula.Parse(req.Formula)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	if err := s.ensureListed(m.backend, m.cfg.DenyList, m.log); err != nil {
		if Error.Has(err) {
			return nil, ErrOpenFailed
		}
		return nil, err
	}

	for _, sig := range s.signals {
		if sig.meta.Name == name {
			return nil, &NameTakenError{Name: name}
		}
	}

	refTS, bound, sources, err := s.bindMapping(req.Mapping)
	if err != nil {
		return nil, err
	}

	vals, err := expr.Evaluate(bound, len(refTS))
	if err != nil {
		return nil, err
	}

	idx := len(s.signals)
	sig := &signal{
		meta: models.SignalMeta{
			Index:    idx,
			Group:    -1,
			Channel:  -1,
			Name:     name,
			Unit:     strings.TrimSpace(req.Unit),
			Color:    signalColor(idx),
			Loaded:   true,
			Computed: true,
			Samples:  len(refTS),
		},
		ts:      refTS,
		vals:    vals,
		expr:    expr,
		sources: sources,
		desc:    strings.TrimSpace(req.Description),
	}
	s.signals = append(s.signals, sig)

	m.log.Debug().Str("session_id", id).Str("name", name).Str("formula", expr.Source()).Msg("computed variable created")
	meta := sig.meta
	return &meta, nil
}

// UpdateComputed re-evaluates an existing computed signal with a new
// formula and mapping. The name and color stay fixed.
func (m *Manager) UpdateComputed(id, owner string, index int, req ComputedRequest) (*models.SignalMeta, error) {
	s, err := m.get(id, owner)
	if err != nil {
		return nil, err
	}

	expr, err := formula.Parse(req.Formula)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	if index < 0 || index >= len(s.signals) {
		return nil, ErrInvalidIndex
	}
	sig := s.signals[index]
	if !sig.meta.Computed {
		return nil, ErrNotComputed
	}

	refTS, bound, sources, err := s.bindMapping(req.Mapping)
	if err != nil {
		return nil, err
	}
	vals, err := expr.Evaluate(bound, len(refTS))
	if err != nil {
		return nil, err
	}

	sig.ts = refTS
	sig.vals = vals
	sig.expr = expr
	sig.sources = sources
	sig.meta.Unit = strings.TrimSpace(req.Unit)
	sig.meta.Samples = len(refTS)
	sig.desc = strings.TrimSpace(req.Description)

	meta := sig.meta
	return &meta, nil
}

// ListComputed returns the session's computed signals.
func (m *Manager) ListComputed(id, owner string) ([]ComputedVariable, error) {
	s, err := m.get(id, owner)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}

	out := []ComputedVariable{}
	for i, sig := range s.signals {
		if !sig.meta.Computed {
			continue
		}
		out = append(out, ComputedVariable{
			Index:         i,
			Name:          sig.meta.Name,
			Unit:          sig.meta.Unit,
			Formula:       sig.expr.Source(),
			Description:   sig.desc,
			SourceSignals: append([]string(nil), sig.sources...),
		})
	}
	return out, nil
}

// DeleteComputed removes a computed signal and renumbers the catalog
// entries past it. File-backed signals cannot be removed.
func (m *Manager) DeleteComputed(id, owner string, index int) (string, error) {
	s, err := m.get(id, owner)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionNotFound
	}
	if index < 0 || index >= len(s.signals) {
		return "", ErrInvalidIndex
	}
	if !s.signals[index].meta.Computed {
		return "", ErrNotComputed
	}

	name := s.signals[index].meta.Name
	s.signals = append(s.signals[:index], s.signals[index+1:]...)
	for i := index; i < len(s.signals); i++ {
		s.signals[i].meta.Index = i
	}
	return name, nil
}

// bindMapping resolves mapping letters to loaded signals, preloading as
// needed, and returns the reference timestamps, the letter bindings and
// the bound signal names in letter order. Callers hold s.mu on a listed
// session.
func (s *Session) bindMapping(mapping map[string]string) ([]float64, map[string][]float64, []string, error) {
	if len(mapping) == 0 {
		return nil, nil, nil, ErrMappingRequired
	}

	letters := make([]string, 0, len(mapping))
	for letter := range mapping {
		letters = append(letters, letter)
	}
	sort.Strings(letters)

	var refTS []float64
	refLen := -1
	bound := make(map[string][]float64, len(letters))
	sources := make([]string, 0, len(letters))

	for _, letter := range letters {
		if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
			return nil, nil, nil, &BadVariableError{Letter: letter}
		}

		sigName := mapping[letter]
		idx := -1
		for i, sig := range s.signals {
			if sig.meta.Name == sigName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, nil, &SignalUnknownError{Name: sigName}
		}
		if _, err := s.preload(idx); err != nil {
			return nil, nil, nil, err
		}
		sig := s.signals[idx]

		if refLen < 0 {
			refLen = len(sig.vals)
			refTS = append([]float64(nil), sig.ts...)
		} else if len(sig.vals) != refLen {
			return nil, nil, nil, &LengthMismatchError{Name: sigName, Got: len(sig.vals), Want: refLen}
		}

		bound[letter] = sig.vals
		sources = append(sources, sigName)
	}

	return refTS, bound, sources, nil
}
