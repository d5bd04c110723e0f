// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package models

// SignalMeta describes one channel of a recording session without its
// samples. Listing a session returns these; samples load on demand.
type SignalMeta struct {
	Index    int    `json:"index"`
	Group    int    `json:"group"`
	Channel  int    `json:"channel"`
	Name     string `json:"name"`
	Unit     string `json:"unit,omitempty"`
	Color    string `json:"color"`
	Loaded   bool   `json:"loaded"`
	Computed bool   `json:"computed"`
	Samples  int    `json:"samples,omitempty"`
}

// ViewSignal is one signal's slice of a windowed, possibly downsampled
// view. Min and Max are computed over the clipped window before any
// downsampling.
type ViewSignal struct {
	Name           string    `json:"name"`
	Unit           string    `json:"unit,omitempty"`
	Color          string    `json:"color"`
	Timestamps     []float64 `json:"timestamps"`
	Values         []float64 `json:"values"`
	Min            float64   `json:"min"`
	Max            float64   `json:"max"`
	OriginalPoints int       `json:"original_points"`
	ReturnedPoints int       `json:"returned_points"`
	IsComplete     bool      `json:"is_complete"`
}

// ViewResponse is the envelope for a multi-signal view.
type ViewResponse struct {
	Signals        []ViewSignal `json:"signals"`
	Start          float64      `json:"start"`
	End            float64      `json:"end"`
	MaxPoints      int          `json:"max_points"`
	OriginalPoints int          `json:"original_points"`
	ReturnedPoints int          `json:"returned_points"`
	IsComplete     bool         `json:"is_complete"`
}

// View request clamps.
const (
	MinViewPoints     = 100
	MaxViewPoints     = 10000
	DefaultViewPoints = 2000
)

// ClampViewPoints clamps a requested max_points into the allowed range.
func ClampViewPoints(n int) int {
	if n <= 0 {
		return DefaultViewPoints
	}
	if n < MinViewPoints {
		return MinViewPoints
	}
	if n > MaxViewPoints {
		return MaxViewPoints
	}
	return n
}

// SourceInfo describes a registered demo data source.
type SourceInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SignalCount int     `json:"signal_count"`
	TimeMin     float64 `json:"time_min"`
	TimeMax     float64 `json:"time_max"`
}
