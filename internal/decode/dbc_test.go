// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"os"
	"path/filepath"
	"testing"
)

const testDBC = `VERSION ""

NS_ :
	NS_DESC_
	CM_

BS_:

BU_: Vector__XXX

BO_ 2024 OBD2: 8 Vector__XXX
 SG_ ParameterID_Service01 M : 23|8@0+ (1,0) [0|255] "" Vector__XXX
 SG_ S1_PID_0D_VehicleSpeed m13 : 31|8@0+ (1,0) [0|255] "km/h" Vector__XXX
 SG_ S1_PID_0C_EngineRPM m12 : 31|16@0+ (0.25,0) [0|16383.75] "rpm" Vector__XXX

BO_ 2025 OBD2_Extra: 8 Vector__XXX
 SG_ S1_PID_05_CoolantTemp : 31|8@0+ (1,-40) [-40|215] "degC" Vector__XXX
 SG_ S1_PID_0D_VehicleSpeed : 31|8@0+ (1,0) [0|255] "km/h" Vector__XXX
`

func writeTestDBC(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obd2.dbc")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("write dbc: %v", err)
	}
	return path
}

func TestParseDBC_Catalog(t *testing.T) {
	sigs, err := ParseDBC(writeTestDBC(t, testDBC))
	if err != nil {
		t.Fatalf("ParseDBC: %v", err)
	}

	want := []BusSignal{
		{Message: "OBD2", Name: "ParameterID_Service01", Unit: ""},
		{Message: "OBD2", Name: "S1_PID_0D_VehicleSpeed", Unit: "km/h"},
		{Message: "OBD2", Name: "S1_PID_0C_EngineRPM", Unit: "rpm"},
		{Message: "OBD2_Extra", Name: "S1_PID_05_CoolantTemp", Unit: "degC"},
	}
	if len(sigs) != len(want) {
		t.Fatalf("got %d signals, want %d: %+v", len(sigs), len(want), sigs)
	}
	for i, w := range want {
		if sigs[i] != w {
			t.Errorf("signal %d = %+v, want %+v", i, sigs[i], w)
		}
	}
}

func TestParseDBC_NoSignals(t *testing.T) {
	sigs, err := ParseDBC(writeTestDBC(t, "VERSION \"\"\n\nBU_: Node\n"))
	if err != nil {
		t.Fatalf("ParseDBC: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("got %d signals from a catalog without SG_ lines", len(sigs))
	}
}

func TestParseDBC_MissingFile(t *testing.T) {
	if _, err := ParseDBC(filepath.Join(t.TempDir(), "nope.dbc")); err == nil {
		t.Fatal("ParseDBC on a missing file should fail")
	}
}
