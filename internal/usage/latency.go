// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package usage

import (
	"math"
	"math/rand"
	"sort"
)

// latencyStats accumulates one day of request latencies: exact
// count/min/max/sum plus a bounded reservoir so percentiles stay
// computable without keeping every sample.
type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64

	// samples is an Algorithm R reservoir of at most size entries.
	samples []float64
	size    int
}

// LatencySummary is the read-time latency report, milliseconds rounded
// to two decimals. Percentiles come from the reservoir and are absent
// for days reloaded from disk.
type LatencySummary struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
	Avg   float64 `json:"avg,omitempty"`
	P50   float64 `json:"p50,omitempty"`
	P95   float64 `json:"p95,omitempty"`
	P99   float64 `json:"p99,omitempty"`
}

func (l *latencyStats) add(v float64, rng *rand.Rand) {
	l.count++
	l.sum += v
	if l.count == 1 || v < l.min {
		l.min = v
	}
	if v > l.max {
		l.max = v
	}
	if len(l.samples) < l.size {
		l.samples = append(l.samples, v)
	} else if idx := rng.Intn(int(l.count)); idx < l.size {
		l.samples[idx] = v
	}
}

func (l *latencyStats) summary() LatencySummary {
	if l == nil || l.count == 0 {
		return LatencySummary{}
	}
	s := LatencySummary{
		Count: l.count,
		Min:   round2(l.min),
		Max:   round2(l.max),
		Avg:   round2(l.sum / float64(l.count)),
	}
	if n := len(l.samples); n > 0 {
		sorted := append([]float64(nil), l.samples...)
		sort.Float64s(sorted)
		s.P50 = round2(sorted[n/2])
		s.P95 = round2(sorted[pctIndex(n, 0.95)])
		s.P99 = round2(sorted[pctIndex(n, 0.99)])
	}
	return s
}

func pctIndex(n int, q float64) int {
	i := int(float64(n) * q)
	if i >= n {
		i = n - 1
	}
	return i
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
