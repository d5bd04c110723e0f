// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import "math"

// Interpolate evaluates the piecewise-linear function through the knots
// (xp, fp) at each point of xs. Both xs and xp must be ascending and
// len(xp) == len(fp). Points outside [xp[0], xp[len-1]] clamp to the
// boundary values. An empty knot set yields zeros.
func Interpolate(xs, xp, fp []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xp) == 0 {
		return out
	}

	last := len(xp) - 1
	j := 0
	for i, x := range xs {
		switch {
		case x <= xp[0]:
			out[i] = fp[0]
		case x >= xp[last]:
			out[i] = fp[last]
		default:
			for xp[j+1] < x {
				j++
			}
			dx := xp[j+1] - xp[j]
			if dx == 0 {
				out[i] = fp[j]
				continue
			}
			t := (x - xp[j]) / dx
			out[i] = fp[j] + t*(fp[j+1]-fp[j])
		}
	}
	return out
}

// FillNonFinite replaces NaN and infinite values in place by linear
// interpolation over the finite samples, clamping at the ends. It
// reports false when vals holds no finite sample at all, in which case
// nothing is written.
func FillNonFinite(ts, vals []float64) bool {
	finite := 0
	for _, v := range vals {
		if IsFinite(v) {
			finite++
		}
	}
	if finite == 0 {
		return false
	}
	if finite == len(vals) {
		return true
	}

	xp := make([]float64, 0, finite)
	fp := make([]float64, 0, finite)
	xs := make([]float64, 0, len(vals)-finite)
	holes := make([]int, 0, len(vals)-finite)
	for i, v := range vals {
		if IsFinite(v) {
			xp = append(xp, ts[i])
			fp = append(fp, v)
		} else {
			xs = append(xs, ts[i])
			holes = append(holes, i)
		}
	}

	filled := Interpolate(xs, xp, fp)
	for k, i := range holes {
		vals[i] = filled[k]
	}
	return true
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
