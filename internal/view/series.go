// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package view windows and downsamples signal series for plotting, and
// keeps the registry of built-in demo sources.
//
// The per-signal pipeline is shared by every plotting surface: clip to
// the requested window, take min/max over the clipped samples, then
// LTTB-downsample when the window exceeds the point budget. Statistics
// always describe the clipped window, not the downsampled result, so a
// zoomed-out plot still reports full-fidelity extremes.
package view

import (
	"sort"

	"github.com/mleclerc/courbe/internal/downsample"
)

// Stats describes one signal's clipped window.
type Stats struct {
	Min            float64
	Max            float64
	OriginalPoints int
	ReturnedPoints int
	IsComplete     bool
}

// Series clips (ts, vals) to [start, end], both ends inclusive, and
// downsamples to maxPoints when the window is larger. ok is false when
// no sample falls inside the window. The returned slices are fresh when
// downsampling ran and shared subslices otherwise; callers must not
// mutate them.
func Series(ts, vals []float64, start, end float64, maxPoints int) (outTS, outVals []float64, st Stats, ok bool) {
	i := sort.Search(len(ts), func(k int) bool { return ts[k] >= start })
	j := sort.Search(len(ts), func(k int) bool { return ts[k] > end })
	if i >= j {
		return nil, nil, Stats{}, false
	}

	wts, wvals := ts[i:j], vals[i:j]
	st.Min, st.Max = wvals[0], wvals[0]
	for _, v := range wvals[1:] {
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	st.OriginalPoints = len(wts)

	if len(wts) > maxPoints {
		dsTS, dsVals := downsample.LTTB64(wts, wvals, maxPoints)
		outTS, outVals = widen(dsTS), widen(dsVals)
	} else {
		outTS, outVals = wts, wvals
	}
	st.ReturnedPoints = len(outTS)
	st.IsComplete = st.OriginalPoints <= maxPoints
	return outTS, outVals, st, true
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
