// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"math"
	"math/rand"
)

// Demo recording geometry: 20 signals sampled at 100 Hz for 3000 s.
const (
	DemoRate     = 100.0
	DemoDuration = 3000.0

	demoSeed = 42
)

// demoSignals is the standard OBD2-style signal set: a slow sinusoid
// per physical quantity plus Gaussian noise, scaled to plausible
// ranges. n is a standard normal draw.
var demoSignals = []struct {
	name string
	unit string
	gen  func(t, dur, n float64) float64
}{
	{"VehicleSpeed", "km/h", func(t, _, n float64) float64 { return 60 + 40*math.Sin(2*math.Pi*t/300) + 2*n }},
	{"EngineRPM", "rpm", func(t, _, n float64) float64 { return 2500 + 1500*math.Sin(2*math.Pi*t/120) + 50*n }},
	{"ThrottlePosition", "%", func(t, _, n float64) float64 { return 30 + 25*math.Sin(2*math.Pi*t/60) + 3*n }},
	{"CoolantTemp", "C", func(t, _, n float64) float64 { return 85 + 10*math.Sin(2*math.Pi*t/600) + 0.5*n }},
	{"IntakeAirTemp", "C", func(t, _, n float64) float64 { return 35 + 15*math.Sin(2*math.Pi*t/400) + n }},
	{"MAF", "g/s", func(t, _, n float64) float64 { return 15 + 10*math.Sin(2*math.Pi*t/90) + 0.5*n }},
	{"FuelPressure", "kPa", func(t, _, n float64) float64 { return 350 + 30*math.Sin(2*math.Pi*t/180) + 5*n }},
	{"O2Voltage", "V", func(t, _, n float64) float64 { return 0.45 + 0.4*math.Sin(2*math.Pi*t/30) + 0.02*n }},
	{"TimingAdvance", "deg", func(t, _, n float64) float64 { return 15 + 10*math.Sin(2*math.Pi*t/150) + n }},
	{"BatteryVoltage", "V", func(t, _, n float64) float64 { return 13.8 + 0.5*math.Sin(2*math.Pi*t/500) + 0.1*n }},
	{"EngineLoad", "%", func(t, _, n float64) float64 { return 40 + 30*math.Sin(2*math.Pi*t/100) + 2*n }},
	{"FuelLevel", "%", func(t, dur, n float64) float64 { return 75 - t/dur*50 + 0.5*n }},
	{"OilTemp", "C", func(t, _, n float64) float64 { return 95 + 15*math.Sin(2*math.Pi*t/800) + 0.5*n }},
	{"OilPressure", "bar", func(t, _, n float64) float64 { return 3.5 + math.Sin(2*math.Pi*t/200) + 0.1*n }},
	{"BoostPressure", "bar", func(t, _, n float64) float64 { return 0.8 + 0.5*math.Sin(2*math.Pi*t/80) + 0.05*n }},
	{"EGT", "C", func(t, _, n float64) float64 { return 400 + 150*math.Sin(2*math.Pi*t/250) + 10*n }},
	{"Lambda", "", func(t, _, n float64) float64 { return 1 + 0.1*math.Sin(2*math.Pi*t/40) + 0.01*n }},
	{"AccelPedalPos", "%", func(t, _, n float64) float64 { return 25 + 20*math.Sin(2*math.Pi*t/70) + 2*n }},
	{"BrakePressure", "bar", func(t, _, n float64) float64 {
		s := math.Sin(2 * math.Pi * t / 50)
		return math.Max(0, 20*s*s+n)
	}},
	{"SteeringAngle", "deg", func(t, _, n float64) float64 { return 30*math.Sin(2*math.Pi*t/200) + 2*n }},
}

// NewDemo fabricates the full-size built-in demo recording.
func NewDemo() Recording { return Generate(DemoRate, DemoDuration, demoSeed) }

// Generate fabricates an OBD2-style recording with the standard signal
// set, sampled at rate Hz over duration seconds. Channel 0 is the time
// base; identical arguments always produce identical samples.
func Generate(rate, duration float64, seed int64) Recording {
	n := int(rate * duration)
	if n < 2 {
		n = 2
	}
	ts := linspace(duration, n)

	rng := rand.New(rand.NewSource(seed))
	rec := &memRecording{name: "synthetic"}
	rec.channels = append(rec.channels, memChannel{
		info: ChannelInfo{Group: 0, Index: 0, Name: "time", Unit: "s", DType: "float64"},
		ts:   ts,
		vals: ts,
	})
	for i, def := range demoSignals {
		vals := make([]float64, n)
		for k, t := range ts {
			vals[k] = def.gen(t, duration, rng.NormFloat64())
		}
		rec.channels = append(rec.channels, memChannel{
			info: ChannelInfo{Group: 0, Index: i + 1, Name: def.name, Unit: def.unit, DType: "float64"},
			ts:   ts,
			vals: vals,
		})
	}
	return rec
}

// NewBusLog fabricates a raw CAN log: frame bookkeeping channels only,
// every one of them deny-listed, decodable with a DBC catalog.
func NewBusLog(rate, duration float64) Recording {
	n := int(rate * duration)
	if n < 2 {
		n = 2
	}
	ts := linspace(duration, n)

	ids := make([]float64, n)
	lengths := make([]float64, n)
	frames := make([]float64, n)
	for i := range ids {
		ids[i] = float64(0x7E8 + i%8)
		lengths[i] = 8
	}

	rec := &memRecording{name: "buslog"}
	rec.channels = append(rec.channels,
		memChannel{
			info: ChannelInfo{Group: 0, Index: 0, Name: "time", Unit: "s", DType: "float64"},
			ts:   ts,
			vals: ts,
		},
		memChannel{
			info: ChannelInfo{Group: 0, Index: 1, Name: "CAN_DataFrame", DType: "float64"},
			ts:   ts,
			vals: frames,
		},
		memChannel{
			info: ChannelInfo{Group: 0, Index: 2, Name: "CAN_DataFrame.ID", DType: "float64"},
			ts:   ts,
			vals: ids,
		},
		memChannel{
			info: ChannelInfo{Group: 0, Index: 3, Name: "CAN_DataFrame.DataLength", DType: "float64"},
			ts:   ts,
			vals: lengths,
		},
	)
	return rec
}

// linspace returns n ascending points from 0 to duration inclusive.
func linspace(duration float64, n int) []float64 {
	ts := make([]float64, n)
	step := duration / float64(n-1)
	for i := range ts {
		ts[i] = float64(i) * step
	}
	return ts
}
