// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"math"
	"testing"
)

func TestGenerate_CatalogShape(t *testing.T) {
	rec := Generate(10, 30, demoSeed)
	defer func() { _ = rec.Close() }()

	infos := rec.Channels()
	if len(infos) != len(demoSignals)+1 {
		t.Fatalf("got %d channels, want %d", len(infos), len(demoSignals)+1)
	}
	if infos[0].Name != "time" || infos[0].Unit != "s" {
		t.Fatalf("channel 0 = %+v, want the time base", infos[0])
	}
	if infos[1].Name != "VehicleSpeed" || infos[1].Unit != "km/h" {
		t.Errorf("channel 1 = %+v, want VehicleSpeed km/h", infos[1])
	}
	if infos[len(infos)-1].Name != "SteeringAngle" {
		t.Errorf("last channel = %+v, want SteeringAngle", infos[len(infos)-1])
	}
}

func TestGenerate_TimeBaseCoversDuration(t *testing.T) {
	rec := Generate(10, 30, demoSeed)
	defer func() { _ = rec.Close() }()

	ts, vals, err := rec.Samples(0, 0)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(ts) != 300 {
		t.Fatalf("got %d samples, want 300", len(ts))
	}
	if ts[0] != 0 || math.Abs(ts[len(ts)-1]-30) > 1e-9 {
		t.Fatalf("time base spans [%v, %v], want [0, 30]", ts[0], ts[len(ts)-1])
	}
	if !almostEqual(ts, vals) {
		t.Error("time channel values should equal its timestamps")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(10, 5, 42)
	b := Generate(10, 5, 42)
	c := Generate(10, 5, 43)

	_, av, err := a.Samples(0, 2)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	_, bv, err := b.Samples(0, 2)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	_, cv, err := c.Samples(0, 2)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}

	if !almostEqual(av, bv) {
		t.Error("same seed should reproduce the same samples")
	}
	if almostEqual(av, cv) {
		t.Error("different seeds should produce different samples")
	}
}

func TestGenerate_ValuesStayPlausible(t *testing.T) {
	rec := Generate(10, 60, demoSeed)

	var brake int
	for _, info := range rec.Channels() {
		if info.Name == "BrakePressure" {
			brake = info.Index
		}
	}
	_, vals, err := rec.Samples(0, brake)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	for i, v := range vals {
		if v < 0 {
			t.Fatalf("BrakePressure[%d] = %v, want >= 0", i, v)
		}
	}
}

func TestNewBusLog_AllChannelsDenied(t *testing.T) {
	rec := NewBusLog(10, 5)
	defer func() { _ = rec.Close() }()

	infos := rec.Channels()
	if len(infos) != 4 {
		t.Fatalf("got %d channels, want 4", len(infos))
	}
	for _, info := range infos {
		if !Denied(info.Name, DenyList) {
			t.Errorf("channel %q should match the deny list", info.Name)
		}
	}
}

func TestDenied_CaseInsensitiveSubstring(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"time", true},
		{"Timestamp_Master", true},
		{"t_axis", true},
		{"CAN_DataFrame.ID", true},
		{"can_dataframe", true},
		{"VehicleSpeed", false},
		{"Throttle", false},
	}
	for _, tt := range tests {
		if got := Denied(tt.name, DenyList); got != tt.want {
			t.Errorf("Denied(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
