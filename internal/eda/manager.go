// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package eda implements lazy exploration sessions over uploaded
// recordings.
//
// A session registers a file without touching it. The first signal
// listing opens the recording, bus-decodes it when a DBC catalog is
// attached, and builds a metadata-only catalog; samples load per signal
// on demand. Sessions are owner-scoped, expire after an idle TTL and
// are capped process-wide with oldest-first eviction.
package eda

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/view"
)

// Config holds the session-manager policy.
type Config struct {
	// SessionTTL is the idle time after which a session is evicted.
	SessionTTL time.Duration

	// MaxSessions caps concurrently open sessions process-wide.
	MaxSessions int

	// DenyList filters auxiliary channels out of catalogs, matched
	// case-insensitively as substrings.
	DenyList []string

	// MaxViewSignals caps signals per view request; excess indices are
	// ignored.
	MaxViewSignals int
}

// DefaultConfig returns the production policy: 1 hour idle TTL, 50
// sessions, the decoder deny-list and 50 signals per view.
func DefaultConfig() Config {
	return Config{
		SessionTTL:     time.Hour,
		MaxSessions:    50,
		DenyList:       decode.DenyList,
		MaxViewSignals: 50,
	}
}

// Manager owns every exploration session. Safe for concurrent use: the
// manager mutex guards the session table, a per-session mutex serializes
// work inside one session, so distinct sessions list and load in
// parallel.
type Manager struct {
	cfg     Config
	backend decode.Backend
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	access   map[string]time.Time

	now func() time.Time
}

// NewManager builds a session manager over the given decode backend.
// Zero config fields fall back to DefaultConfig values.
func NewManager(backend decode.Backend, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if len(cfg.DenyList) == 0 {
		cfg.DenyList = def.DenyList
	}
	if cfg.MaxViewSignals <= 0 {
		cfg.MaxViewSignals = def.MaxViewSignals
	}
	return &Manager{
		cfg:      cfg,
		backend:  backend,
		log:      logging.WithComponent("eda"),
		sessions: make(map[string]*Session),
		access:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create registers a session for a recording on disk. No I/O happens
// until the first listing. An existing session under the same id is
// closed and replaced. Registration may evict idle or excess sessions.
func (m *Manager) Create(id, owner, path, dbcPath, filename string) {
	s := &Session{ID: id, Owner: owner, Path: path, DBCPath: dbcPath, Filename: filename}

	m.mu.Lock()
	victims := m.cleanupLocked(m.now())
	old := m.sessions[id]
	m.sessions[id] = s
	m.access[id] = m.now()
	n := len(m.sessions)
	m.mu.Unlock()

	if old != nil {
		victims = append(victims, old)
	}
	for _, v := range victims {
		v.mu.Lock()
		v.close()
		v.mu.Unlock()
	}

	m.log.Debug().Str("session_id", id).Str("file", filename).Int("open_sessions", n).Msg("session registered")
}

// get returns the owner's session and refreshes its idle clock.
func (m *Manager) get(id, owner string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		m.access[id] = m.now()
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Owner != owner {
		return nil, ErrNotOwner
	}
	return s, nil
}

// ListSignals returns the session catalog, opening the recording on
// first call.
func (m *Manager) ListSignals(id, owner string) (*Info, error) {
	s, err := m.get(id, owner)
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
			m.log.Warn().Str("session_id", id).Err(err).Msg("recording open failed")
			return nil, ErrOpenFailed
		}
		return nil, err
	}
	return s.info(), nil
}

// Preload loads one signal's samples into the session. Idempotent.
func (m *Manager) Preload(id, owner string, index int) (*PreloadResult, error) {
	s, err := m.get(id, owner)
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
	return s.preload(index)
}

// View returns a windowed, possibly downsampled slice of the requested
// signals. Unloaded signals are preloaded first; signals that fail to
// load or have no sample inside the window are skipped. NaN window
// edges default to the recording bounds. maxPoints is clamped to
// [100, 10000]. When every requested signal ends up empty the call
// fails with ErrNoDataInRange.
func (m *Manager) View(id, owner string, indices []int, start, end float64, maxPoints int) (*models.ViewResponse, error) {
	s, err := m.get(id, owner)
	if err != nil {
		return nil, err
	}
	if len(indices) > m.cfg.MaxViewSignals {
		indices = indices[:m.cfg.MaxViewSignals]
	}
	maxPoints = models.ClampViewPoints(maxPoints)

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

	start, end = s.resolveRange(start, end)
	resp := &models.ViewResponse{
		Signals:   []models.ViewSignal{},
		Start:     start,
		End:       end,
		MaxPoints: maxPoints,
	}

	for _, idx := range indices {
		if _, err := s.preload(idx); err != nil {
			continue
		}
		sig := s.signals[idx]

		outTS, outVals, st, ok := view.Series(sig.ts, sig.vals, start, end, maxPoints)
		if !ok {
			continue
		}
		resp.OriginalPoints += st.OriginalPoints
		resp.ReturnedPoints += st.ReturnedPoints

		resp.Signals = append(resp.Signals, models.ViewSignal{
			Name:           sig.meta.Name,
			Unit:           sig.meta.Unit,
			Color:          sig.meta.Color,
			Timestamps:     outTS,
			Values:         outVals,
			Min:            st.Min,
			Max:            st.Max,
			OriginalPoints: st.OriginalPoints,
			ReturnedPoints: st.ReturnedPoints,
			IsComplete:     st.IsComplete,
		})
	}

	if len(resp.Signals) == 0 {
		return nil, ErrNoDataInRange
	}
	resp.IsComplete = resp.ReturnedPoints == resp.OriginalPoints
	return resp, nil
}

// Status summarizes a session without forcing a listing.
func (m *Manager) Status(id, owner string) (*Status, error) {
	s, err := m.get(id, owner)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	return s.status(), nil
}

// Close ends a session and releases its recording handle.
func (m *Manager) Close(id, owner string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.Owner == owner {
		delete(m.sessions, id)
		delete(m.access, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	if s.Owner != owner {
		return ErrNotOwner
	}

	s.mu.Lock()
	s.close()
	s.mu.Unlock()
	m.log.Debug().Str("session_id", id).Msg("session closed")
	return nil
}

// Len reports the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup evicts sessions idle past the TTL, then the oldest sessions
// beyond the cap, and reports how many were closed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	victims := m.cleanupLocked(m.now())
	m.mu.Unlock()

	for _, s := range victims {
		s.mu.Lock()
		s.close()
		s.mu.Unlock()
	}
	if len(victims) > 0 {
		m.log.Info().Int("evicted", len(victims)).Msg("idle sessions evicted")
	}
	return len(victims)
}

// cleanupLocked removes TTL-expired sessions, then the oldest beyond
// MaxSessions. Callers hold m.mu and close the returned sessions after
// releasing it.
func (m *Manager) cleanupLocked(now time.Time) []*Session {
	var victims []*Session

	for id, at := range m.access {
		if now.Sub(at) > m.cfg.SessionTTL {
			victims = append(victims, m.sessions[id])
			delete(m.sessions, id)
			delete(m.access, id)
		}
	}

	for len(m.sessions) > m.cfg.MaxSessions {
		var oldestID string
		var oldestAt time.Time
		for id, at := range m.access {
			if oldestID == "" || at.Before(oldestAt) {
				oldestID, oldestAt = id, at
			}
		}
		if oldestID == "" {
			break
		}
		victims = append(victims, m.sessions[oldestID])
		delete(m.sessions, oldestID)
		delete(m.access, oldestID)
	}

	return victims
}
