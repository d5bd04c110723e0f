// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package view

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/zeebo/errs"

	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/models"
)

// Error is the class for internal view failures.
var Error = errs.Class("view")

var (
	// ErrUnknownSource rejects activation of an unregistered source id.
	ErrUnknownSource = errors.New("Source inconnue")

	// ErrNoSource means the registry holds no source at all.
	ErrNoSource = errors.New("Aucune source de données chargée")

	// ErrNoDataInRange means no requested signal has a sample inside
	// the view window.
	ErrNoDataInRange = errors.New("No data in range")
)

// sourceSignal is one eagerly loaded channel of a demo source.
type sourceSignal struct {
	meta models.SignalMeta
	ts   []float64
	vals []float64
}

// Source is one registered demo dataset, fully loaded and immutable
// after construction.
type Source struct {
	id          string
	name        string
	description string
	signals     []sourceSignal
	tmin, tmax  float64
}

// NewSource eagerly loads every channel of rec into a demo source.
// Deny-listed and undecodable channels are skipped; non-finite samples
// are interpolated away. The recording is closed before returning.
func NewSource(id, name, description string, rec decode.Recording, denyList []string) (*Source, error) {
	defer rec.Close()

	src := &Source{id: id, name: name, description: description}
	for _, ch := range rec.Channels() {
		if ch.Name == "" || decode.Denied(ch.Name, denyList) {
			continue
		}
		ts, vals, err := rec.Samples(ch.Group, ch.Index)
		if err != nil || len(ts) == 0 || len(ts) != len(vals) {
			continue
		}
		if !decode.FillNonFinite(ts, vals) {
			continue
		}
		idx := len(src.signals)
		src.signals = append(src.signals, sourceSignal{
			meta: models.SignalMeta{
				Index:   idx,
				Group:   ch.Group,
				Channel: ch.Index,
				Name:    ch.Name,
				Unit:    ch.Unit,
				Color:   fmt.Sprintf("hsl(%d, 70%%, 55%%)", (idx*37)%360),
				Loaded:  true,
				Samples: len(ts),
			},
			ts:   ts,
			vals: vals,
		})
		if len(src.signals) == 1 {
			src.tmin, src.tmax = ts[0], ts[len(ts)-1]
		}
	}
	if len(src.signals) == 0 {
		return nil, Error.New("source %s has no usable channel", id)
	}
	return src, nil
}

// InfoResponse describes the caller's active source.
type InfoResponse struct {
	Source    string              `json:"source"`
	NSignals  int                 `json:"n_signals"`
	Duration  float64             `json:"duration"`
	TimeRange TimeRange           `json:"time_range"`
	Signals   []models.SignalMeta `json:"signals"`
}

// TimeRange is the sampled bounds of a source.
type TimeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Registry holds the demo sources and each caller's active choice. The
// first registered source is the default. Sources are shared read-only
// across callers; only the active-choice map mutates, under the mutex.
type Registry struct {
	maxViewSignals int

	mu      sync.RWMutex
	order   []string
	sources map[string]*Source
	active  map[string]string
}

// NewRegistry builds an empty registry. maxViewSignals caps signals per
// view request; zero means 50.
func NewRegistry(maxViewSignals int) *Registry {
	if maxViewSignals <= 0 {
		maxViewSignals = 50
	}
	return &Registry{
		maxViewSignals: maxViewSignals,
		sources:        make(map[string]*Source),
		active:         make(map[string]string),
	}
}

// Register adds a source. Re-registering an id replaces the source.
func (r *Registry) Register(src *Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[src.id]; !ok {
		r.order = append(r.order, src.id)
	}
	r.sources[src.id] = src
}

// List returns the registered sources in registration order plus the
// caller's current source id.
func (r *Registry) List(owner string) ([]models.SourceInfo, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.SourceInfo, 0, len(r.order))
	for _, id := range r.order {
		src := r.sources[id]
		out = append(out, models.SourceInfo{
			ID:          src.id,
			Name:        src.name,
			Description: src.description,
			SignalCount: len(src.signals),
			TimeMin:     src.tmin,
			TimeMax:     src.tmax,
		})
	}
	return out, r.currentLocked(owner)
}

// Activate switches the caller's active source.
func (r *Registry) Activate(owner, id string) (*InfoResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return nil, ErrUnknownSource
	}
	r.active[owner] = id
	return srcInfo(src), nil
}

// Info describes the caller's active source, falling back to the
// default when none was activated.
func (r *Registry) Info(owner string) (*InfoResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, err := r.activeLocked(owner)
	if err != nil {
		return nil, err
	}
	return srcInfo(src), nil
}

// View returns a windowed, possibly downsampled slice of the caller's
// active source. Out-of-range indices are skipped; NaN window edges
// default to the source bounds; maxPoints is clamped to [100, 10000].
func (r *Registry) View(owner string, indices []int, start, end float64, maxPoints int) (*models.ViewResponse, error) {
	r.mu.RLock()
	src, err := r.activeLocked(owner)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if len(indices) > r.maxViewSignals {
		indices = indices[:r.maxViewSignals]
	}
	maxPoints = models.ClampViewPoints(maxPoints)
	if math.IsNaN(start) {
		start = src.tmin
	}
	if math.IsNaN(end) {
		end = src.tmax
	}

	resp := &models.ViewResponse{
		Signals:   []models.ViewSignal{},
		Start:     start,
		End:       end,
		MaxPoints: maxPoints,
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(src.signals) {
			continue
		}
		sig := &src.signals[idx]
		outTS, outVals, st, ok := Series(sig.ts, sig.vals, start, end, maxPoints)
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

// SignalCount reports the number of signals of the caller's active
// source, for "all signals" view requests.
func (r *Registry) SignalCount(owner string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, err := r.activeLocked(owner)
	if err != nil {
		return 0, err
	}
	return len(src.signals), nil
}

// activeLocked resolves the caller's source, defaulting to the first
// registered one. Callers hold r.mu.
func (r *Registry) activeLocked(owner string) (*Source, error) {
	if id, ok := r.active[owner]; ok {
		if src, ok := r.sources[id]; ok {
			return src, nil
		}
	}
	if len(r.order) == 0 {
		return nil, ErrNoSource
	}
	return r.sources[r.order[0]], nil
}

// currentLocked names the caller's source id without resolving it.
func (r *Registry) currentLocked(owner string) string {
	if id, ok := r.active[owner]; ok {
		return id
	}
	if len(r.order) > 0 {
		return r.order[0]
	}
	return ""
}

// srcInfo formats one source description.
func srcInfo(src *Source) *InfoResponse {
	metas := make([]models.SignalMeta, len(src.signals))
	for i := range src.signals {
		metas[i] = src.signals[i].meta
	}
	return &InfoResponse{
		Source:    src.id,
		NSignals:  len(metas),
		Duration:  src.tmax - src.tmin,
		TimeRange: TimeRange{Min: src.tmin, Max: src.tmax},
		Signals:   metas,
	}
}
