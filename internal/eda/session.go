// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package eda

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/formula"
	"github.com/mleclerc/courbe/internal/models"
)

// signal is one entry of a session's catalog. File-backed signals carry
// samples only after a preload; computed signals are born loaded.
type signal struct {
	meta models.SignalMeta
	ts   []float64
	vals []float64

	// Computed-variable bookkeeping, nil/empty for file-backed entries.
	expr    *formula.Expr
	sources []string
	desc    string
}

// Session is one open exploration of a recording. The manager hands out
// pointers; all field access after construction happens under mu except
// Owner, ID, Path, DBCPath and Filename, which are immutable.
type Session struct {
	ID       string
	Owner    string
	Path     string
	DBCPath  string
	Filename string

	mu      sync.Mutex
	closed  bool
	listed  bool
	rec     decode.Recording
	signals []*signal
	tmin    float64
	tmax    float64
}

// TimeRange is the sampled bounds of a session's recording.
type TimeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Info is the signal-listing response for a session.
type Info struct {
	SessionID string              `json:"session_id"`
	Filename  string              `json:"filename"`
	NSignals  int                 `json:"n_signals"`
	TimeRange TimeRange           `json:"time_range"`
	Duration  float64             `json:"duration"`
	Signals   []models.SignalMeta `json:"signals"`
}

// Status summarizes a session without forcing a listing.
type Status struct {
	SessionID     string    `json:"session_id"`
	Filename      string    `json:"filename"`
	Listed        bool      `json:"listed"`
	NSignals      int       `json:"n_signals"`
	LoadedSignals int       `json:"loaded_signals"`
	TimeRange     TimeRange `json:"time_range"`
	Duration      float64   `json:"duration"`
}

// PreloadResult reports one signal load. Status is always "ready";
// failures surface as errors instead.
type PreloadResult struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Samples int    `json:"n_samples"`
}

// signalColor assigns the palette hue for catalog position i.
func signalColor(i int) string {
	return fmt.Sprintf("hsl(%d, 70%%, 55%%)", (i*37)%360)
}

// ensureListed opens the recording and builds the signal catalog on
// first use. Callers hold s.mu.
func (s *Session) ensureListed(backend decode.Backend, denyList []string, log zerolog.Logger) error {
	if s.listed {
		return nil
	}

	rec, err := backend.Open(s.Path)
	if err != nil {
		return Error.Wrap(fmt.Errorf("open %s: %w", s.Path, err))
	}

	if s.DBCPath != "" {
		if decoded, derr := rec.DecodeBus(s.DBCPath); derr == nil {
			rec.Close()
			rec = decoded
		} else {
			log.Warn().Err(derr).Str("session_id", s.ID).Msg("bus decode failed, keeping raw channels")
		}
	}

	var sigs []*signal
	for _, ch := range rec.Channels() {
		if ch.Name == "" || decode.Denied(ch.Name, denyList) {
			continue
		}
		idx := len(sigs)
		sigs = append(sigs, &signal{meta: models.SignalMeta{
			Index:   idx,
			Group:   ch.Group,
			Channel: ch.Index,
			Name:    ch.Name,
			Unit:    ch.Unit,
			Color:   signalColor(idx),
		}})
	}
	if len(sigs) == 0 {
		rec.Close()
		return ErrNoSignals
	}

	// One representative channel fixes the time range; channels that
	// fail to decode are tried past, never fatal.
	found := false
	for _, sig := range sigs {
		ts, _, serr := rec.Samples(sig.meta.Group, sig.meta.Channel)
		if serr != nil || len(ts) == 0 {
			continue
		}
		s.tmin, s.tmax = ts[0], ts[len(ts)-1]
		found = true
		break
	}
	if !found {
		rec.Close()
		return ErrNoSignals
	}

	s.rec = rec
	s.signals = sigs
	s.listed = true
	return nil
}

// preload loads one signal's samples, normalizing non-finite values by
// linear interpolation over finite neighbors. Idempotent. Callers hold
// s.mu and have ensured the session is listed.
func (s *Session) preload(index int) (*PreloadResult, error) {
	if index < 0 || index >= len(s.signals) {
		return nil, ErrInvalidIndex
	}
	sig := s.signals[index]
	if sig.meta.Loaded {
		return &PreloadResult{Index: index, Name: sig.meta.Name, Status: "ready", Samples: len(sig.ts)}, nil
	}

	ts, vals, err := s.rec.Samples(sig.meta.Group, sig.meta.Channel)
	if err != nil || len(ts) == 0 || len(ts) != len(vals) {
		return nil, ErrSignalLoad
	}
	if !decode.FillNonFinite(ts, vals) {
		return nil, ErrAllNonFinite
	}

	sig.ts = ts
	sig.vals = vals
	sig.meta.Loaded = true
	sig.meta.Samples = len(ts)
	return &PreloadResult{Index: index, Name: sig.meta.Name, Status: "ready", Samples: len(ts)}, nil
}

// info formats the listing response. Callers hold s.mu on a listed
// session.
func (s *Session) info() *Info {
	metas := make([]models.SignalMeta, len(s.signals))
	for i, sig := range s.signals {
		metas[i] = sig.meta
	}
	return &Info{
		SessionID: s.ID,
		Filename:  s.Filename,
		NSignals:  len(metas),
		TimeRange: TimeRange{Min: s.tmin, Max: s.tmax},
		Duration:  s.tmax - s.tmin,
		Signals:   metas,
	}
}

// status summarizes the session. Callers hold s.mu.
func (s *Session) status() *Status {
	loaded := 0
	for _, sig := range s.signals {
		if sig.meta.Loaded {
			loaded++
		}
	}
	duration := 0.0
	if s.listed {
		duration = s.tmax - s.tmin
	}
	return &Status{
		SessionID:     s.ID,
		Filename:      s.Filename,
		Listed:        s.listed,
		NSignals:      len(s.signals),
		LoadedSignals: loaded,
		TimeRange:     TimeRange{Min: s.tmin, Max: s.tmax},
		Duration:      duration,
	}
}

// close releases the recording handle. Callers hold s.mu. Idempotent.
func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.rec != nil {
		s.rec.Close()
		s.rec = nil
	}
	s.signals = nil
}

// resolveRange substitutes session bounds for unset (NaN) window edges.
func (s *Session) resolveRange(start, end float64) (float64, float64) {
	if math.IsNaN(start) {
		start = s.tmin
	}
	if math.IsNaN(end) {
		end = s.tmax
	}
	return start, end
}
