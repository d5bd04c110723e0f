// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package downsample reduces (timestamp, value) series to a target point
// count using Largest-Triangle-Three-Buckets.
//
// LTTB keeps the first and last samples and, for each of the n-2 interior
// buckets, keeps the sample forming the largest triangle with the
// previously kept point and the centroid of the following bucket. The
// result preserves the visual shape of the raw series far better than
// striding or averaging at the same point budget.
//
// The implementation is deterministic: equal areas inside a bucket are
// resolved to the lowest index. All arithmetic runs on float32; callers
// holding float64 series use LTTB64, which converts on entry.
package downsample

// LTTB downsamples the series (x, y) to n points.
//
// x and y must have equal length. When n >= len(x) or n <= 2 the inputs
// are returned unchanged (no copy). Otherwise both returned slices have
// length exactly n, begin with (x[0], y[0]) and end with
// (x[len-1], y[len-1]).
func LTTB(x, y []float32, n int) ([]float32, []float32) {
	length := len(x)
	if n >= length || n <= 2 {
		return x, y
	}

	outX := make([]float32, n)
	outY := make([]float32, n)
	outX[0], outY[0] = x[0], y[0]

	// Interior buckets partition the index range [1, length-1).
	every := float64(length-2) / float64(n-2)

	a := 0 // index of the previously kept point
	for i := 0; i < n-2; i++ {
		// Centroid of the next bucket. For the last interior bucket the
		// next bucket degenerates to the final sample.
		avgStart := int(float64(i+1)*every) + 1
		avgEnd := int(float64(i+2)*every) + 1
		if avgEnd > length {
			avgEnd = length
		}

		var sumX, sumY float32
		for j := avgStart; j < avgEnd; j++ {
			sumX += x[j]
			sumY += y[j]
		}
		cnt := float32(avgEnd - avgStart)
		avgX := sumX / cnt
		avgY := sumY / cnt

		// Candidates of the current bucket.
		rangeStart := int(float64(i)*every) + 1
		rangeEnd := int(float64(i+1)*every) + 1
		if rangeEnd > length-1 {
			rangeEnd = length - 1
		}

		ax, ay := x[a], y[a]
		maxArea := float32(-1)
		maxIdx := rangeStart
		for j := rangeStart; j < rangeEnd; j++ {
			// Twice the triangle area; the factor does not change the argmax.
			area := (ax-avgX)*(y[j]-ay) - (ax-x[j])*(avgY-ay)
			if area < 0 {
				area = -area
			}
			if area > maxArea {
				maxArea = area
				maxIdx = j
			}
		}

		outX[i+1], outY[i+1] = x[maxIdx], y[maxIdx]
		a = maxIdx
	}

	outX[n-1], outY[n-1] = x[length-1], y[length-1]
	return outX, outY
}

// LTTB64 converts float64 series to float32 and downsamples to n points.
// The returned slices are always fresh float32 arrays, including on the
// short-circuit paths.
func LTTB64(x, y []float64, n int) ([]float32, []float32) {
	x32 := make([]float32, len(x))
	y32 := make([]float32, len(y))
	for i := range x {
		x32[i] = float32(x[i])
	}
	for i := range y {
		y32[i] = float32(y[i])
	}
	return LTTB(x32, y32, n)
}
