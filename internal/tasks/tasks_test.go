// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package tasks

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/models"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	m, err := NewManager(decode.NewSynthetic(), cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

// stageRecording persists an in-memory recording into the task
// directory, as the upload endpoint would.
func stageRecording(t *testing.T, m *Manager, name string, rec decode.Recording) string {
	t.Helper()
	path := filepath.Join(m.Dir(), name)
	if err := rec.Save(path); err != nil {
		t.Fatalf("stage %s: %v", name, err)
	}
	rec.Close()
	return path
}

func rampRecording() decode.Recording {
	ts := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	speed := []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}
	rpm := []float64{800, 900, 1000, 1100, 1200, 1300, 1400, 1500, 1600, 1700}
	return decode.NewRecording("trip", []decode.Channel{
		{Name: "time", Unit: "s", Timestamps: ts, Values: ts},
		{Name: "VehicleSpeed", Unit: "km/h", Timestamps: ts, Values: speed},
		{Name: "EngineRPM", Unit: "rpm", Timestamps: ts, Values: rpm},
	})
}

func waitTask(t *testing.T, m *Manager, id, owner string) *models.Task {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		task, err := m.Get(id, owner)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if task.Finished() {
			return task
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s stuck at %s (%d%%, %q)", id, task.Status, task.Progress, task.Message)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func TestConvert_SharedTimeBase(t *testing.T) {
	m := newTestManager(t, Config{})
	input := stageRecording(t, m, "trip.mf4", rampRecording())

	task, err := m.CreateConvert("alice", input, "csv", "", 0)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}
	if task.Status != models.TaskPending || task.Kind != models.TaskConvert {
		t.Fatalf("fresh task = %s/%s, want pending convert", task.Status, task.Kind)
	}
	if len(task.ID) != 8 {
		t.Fatalf("task id %q, want 8 chars", task.ID)
	}

	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskCompleted {
		t.Fatalf("task = %s (%q), want completed", done.Status, done.Error)
	}
	if done.Progress != 100 || done.Message != "Conversion terminée" {
		t.Fatalf("final = %d%% %q", done.Progress, done.Message)
	}
	if done.OutputName != "trip.csv" {
		t.Fatalf("OutputName = %q", done.OutputName)
	}
	if done.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}

	lines := readLines(t, filepath.Join(m.Dir(), "trip.csv"))
	if lines[0] != "timestamps;VehicleSpeed [km/h];EngineRPM [rpm]" {
		t.Fatalf("header = %q", lines[0])
	}
	if len(lines) != 11 {
		t.Fatalf("got %d lines, want header + 10 rows", len(lines))
	}
	// Integer-valued columns print undecorated.
	if lines[1] != "0;0;800" {
		t.Errorf("row 0 = %q", lines[1])
	}
	if lines[6] != "5;50;1300" {
		t.Errorf("row 5 = %q", lines[6])
	}

	// Successful conversions consume their input.
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Errorf("input still present after conversion")
	}

	path, name, err := m.Download(task.ID, "alice")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if name != "trip.csv" || path != filepath.Join(m.Dir(), "trip.csv") {
		t.Fatalf("Download = %q %q", path, name)
	}
}

func TestConvert_InterpolatesMixedRates(t *testing.T) {
	m := newTestManager(t, Config{DefaultRaster: 0.5})
	rec := decode.NewRecording("mixed", []decode.Channel{
		{Name: "A", Timestamps: []float64{0, 1, 2}, Values: []float64{0, 10, 20}},
		{Name: "B", Timestamps: []float64{0, 0.5, 1, 1.5, 2}, Values: []float64{5, 5, 5, 5, 5}},
	})
	input := stageRecording(t, m, "mixed.mf4", rec)

	task, err := m.CreateConvert("alice", input, "csv", "", 0)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskCompleted {
		t.Fatalf("task = %s (%q)", done.Status, done.Error)
	}

	lines := readLines(t, filepath.Join(m.Dir(), "mixed.csv"))
	want := []string{
		"timestamps;A;B",
		"0;0;5",
		"0.5;5;5",
		"1;10;5",
		"1.5;15;5",
		"2;20;5",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestConvert_ResampleRaster(t *testing.T) {
	m := newTestManager(t, Config{})
	rec := decode.NewRecording("mixed", []decode.Channel{
		{Name: "A", Timestamps: []float64{0, 1, 2}, Values: []float64{0, 10, 20}},
		{Name: "B", Timestamps: []float64{0, 0.5, 1, 1.5, 2}, Values: []float64{5, 5, 5, 5, 5}},
	})
	input := stageRecording(t, m, "mixed.mf4", rec)

	task, err := m.CreateConvert("alice", input, "csv", "", 0.5)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskCompleted {
		t.Fatalf("task = %s (%q)", done.Status, done.Error)
	}

	lines := readLines(t, filepath.Join(m.Dir(), "mixed.csv"))
	if lines[0] != "timestamps;A;B" {
		t.Fatalf("header = %q", lines[0])
	}
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6", len(lines))
	}
	if lines[2] != "0.5;5;5" {
		t.Errorf("row 1 = %q", lines[2])
	}
}

func TestConvert_BusDecode(t *testing.T) {
	m := newTestManager(t, Config{})
	input := stageRecording(t, m, "canlog.mf4", decode.NewBusLog(10, 5))

	dbcPath := filepath.Join(m.Dir(), "engine.dbc")
	dbc := "BO_ 256 Engine: 8 ECU\n" +
		" SG_ EngineSpeed : 0|16@1+ (0.25,0) [0|8000] \"rpm\" ECU\n" +
		" SG_ CoolantTemp : 16|8@1+ (1,-40) [-40|215] \"degC\" ECU\n"
	if err := os.WriteFile(dbcPath, []byte(dbc), 0o640); err != nil {
		t.Fatalf("write dbc: %v", err)
	}

	task, err := m.CreateConvert("alice", input, "csv", dbcPath, 0)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskCompleted {
		t.Fatalf("task = %s (%q)", done.Status, done.Error)
	}

	lines := readLines(t, filepath.Join(m.Dir(), "canlog.csv"))
	if lines[0] != "timestamps;EngineSpeed [rpm];CoolantTemp [degC]" {
		t.Fatalf("header = %q", lines[0])
	}
	if len(lines) != 51 {
		t.Fatalf("got %d lines, want header + 50 rows", len(lines))
	}

	// Both the recording and the catalog are cleaned up.
	if _, err := os.Stat(dbcPath); !os.IsNotExist(err) {
		t.Errorf("dbc still present after conversion")
	}
}

func TestConvert_BusDecodeFailureKeepsRaw(t *testing.T) {
	m := newTestManager(t, Config{})
	input := stageRecording(t, m, "canlog.mf4", decode.NewBusLog(10, 5))

	// An empty catalog makes the decode fail; the raw frame channels
	// are all deny-listed, so nothing remains to convert.
	dbcPath := filepath.Join(m.Dir(), "empty.dbc")
	if err := os.WriteFile(dbcPath, nil, 0o640); err != nil {
		t.Fatalf("write dbc: %v", err)
	}

	task, err := m.CreateConvert("alice", input, "csv", dbcPath, 0)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskFailed {
		t.Fatalf("task = %s, want failed", done.Status)
	}
	if done.Error != "Aucun canal valide trouvé" {
		t.Fatalf("Error = %q", done.Error)
	}
	if done.Message != "Erreur: Aucun canal valide trouvé" {
		t.Fatalf("Message = %q", done.Message)
	}
}

func TestConvert_CorruptInputFailsGenerically(t *testing.T) {
	m := newTestManager(t, Config{})
	input := filepath.Join(m.Dir(), "junk.mf4")
	if err := os.WriteFile(input, []byte("not a recording"), 0o640); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	task, err := m.CreateConvert("alice", input, "csv", "", 0)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskFailed {
		t.Fatalf("task = %s, want failed", done.Status)
	}
	// Internal decode detail stays out of the client-facing error.
	if done.Error != "La conversion a échoué" {
		t.Fatalf("Error = %q", done.Error)
	}
}

func TestConvert_Validation(t *testing.T) {
	m := newTestManager(t, Config{})

	txt := filepath.Join(m.Dir(), "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
	var unsupported *UnsupportedError
	if _, err := m.CreateConvert("alice", txt, "csv", "", 0); !errors.As(err, &unsupported) {
		t.Fatalf("txt input: err = %v, want UnsupportedError", err)
	}
	if unsupported.Error() != "Conversion .txt → .csv non supportée" {
		t.Fatalf("message = %q", unsupported.Error())
	}

	input := stageRecording(t, m, "trip.mf4", rampRecording())
	if _, err := m.CreateConvert("alice", input, "parquet", "", 0); !errors.As(err, &unsupported) {
		t.Fatalf("parquet output: err = %v, want UnsupportedError", err)
	}

	outside := filepath.Join(t.TempDir(), "evil.mf4")
	if err := os.WriteFile(outside, []byte("x"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, p := range []string{outside, filepath.Join(m.Dir(), "missing.mf4"), "../escape.mf4", ""} {
		if _, err := m.CreateConvert("alice", p, "csv", "", 0); !errors.Is(err, ErrPathOutsideDir) {
			t.Errorf("path %q: err = %v, want ErrPathOutsideDir", p, err)
		}
	}

	// A DBC outside the directory is rejected too.
	if _, err := m.CreateConvert("alice", input, "csv", outside, 0); !errors.Is(err, ErrPathOutsideDir) {
		t.Fatalf("outside dbc: err = %v, want ErrPathOutsideDir", err)
	}
}

func TestConcat_EndToEnd(t *testing.T) {
	m := newTestManager(t, Config{})

	ts := []float64{0, 1, 2, 3, 4}
	rec1 := decode.NewRecording("a", []decode.Channel{
		{Name: "time", Unit: "s", Timestamps: ts, Values: ts},
		{Name: "VehicleSpeed", Unit: "km/h", Timestamps: ts, Values: []float64{0, 10, 20, 30, 40}},
		{Name: "EngineRPM", Unit: "rpm", Timestamps: ts, Values: []float64{800, 900, 1000, 1100, 1200}},
	})
	rec2 := decode.NewRecording("b", []decode.Channel{
		{Name: "time", Unit: "s", Timestamps: ts, Values: ts},
		{Name: "VehicleSpeed", Unit: "km/h", Timestamps: ts, Values: []float64{40, 50, 60, 70, 80}},
		{Name: "EngineRPM", Unit: "rpm", Timestamps: ts, Values: []float64{1200, 1300, 1400, 1500, 1600}},
		{Name: "Extra", Timestamps: ts, Values: []float64{1, 1, 1, 1, 1}},
	})
	in1 := stageRecording(t, m, "part1.mf4", rec1)
	in2 := stageRecording(t, m, "part2.mf4", rec2)

	task, err := m.CreateConcat("alice", []string{in1, in2})
	if err != nil {
		t.Fatalf("CreateConcat: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskCompleted {
		t.Fatalf("task = %s (%q)", done.Status, done.Error)
	}
	if done.Message != "Concaténation terminée" {
		t.Fatalf("Message = %q", done.Message)
	}
	if done.OutputName != "merged_"+task.ID+".mf4" {
		t.Fatalf("OutputName = %q", done.OutputName)
	}

	// Only channels common to both files and off the deny-list merge:
	// time is deny-listed, Extra exists in one file only.
	if done.Stats == nil {
		t.Fatal("Stats not set")
	}
	if done.Stats.Files != 2 || done.Stats.Signals != 2 {
		t.Fatalf("Stats = %+v", done.Stats)
	}
	// Synced chaining: the second file starts where the first ends.
	if math.Abs(done.Stats.Duration-8) > 1e-9 {
		t.Fatalf("Duration = %g, want 8", done.Stats.Duration)
	}

	merged, err := decode.NewSynthetic().Open(filepath.Join(m.Dir(), done.OutputName))
	if err != nil {
		t.Fatalf("open merged: %v", err)
	}
	defer merged.Close()
	chs := merged.Channels()
	if len(chs) != 2 {
		t.Fatalf("merged channels = %d, want 2", len(chs))
	}
	mts, _, err := merged.Samples(chs[0].Group, chs[0].Index)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(mts) != 10 || mts[len(mts)-1] != 8 {
		t.Fatalf("merged base: %d samples ending at %g", len(mts), mts[len(mts)-1])
	}

	// Stage files and inputs are gone.
	temps, _ := filepath.Glob(filepath.Join(m.Dir(), "temp_filtered_*"))
	if len(temps) != 0 {
		t.Errorf("stage files left behind: %v", temps)
	}
	for _, p := range []string{in1, in2} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("input %s still present", filepath.Base(p))
		}
	}
}

func TestConcat_NoCommonSignals(t *testing.T) {
	m := newTestManager(t, Config{})

	ts := []float64{0, 1, 2}
	in1 := stageRecording(t, m, "a.mf4", decode.NewRecording("a", []decode.Channel{
		{Name: "time", Timestamps: ts, Values: ts},
		{Name: "OnlyInA", Timestamps: ts, Values: []float64{1, 2, 3}},
	}))
	in2 := stageRecording(t, m, "b.mf4", decode.NewRecording("b", []decode.Channel{
		{Name: "time", Timestamps: ts, Values: ts},
		{Name: "OnlyInB", Timestamps: ts, Values: []float64{4, 5, 6}},
	}))

	task, err := m.CreateConcat("alice", []string{in1, in2})
	if err != nil {
		t.Fatalf("CreateConcat: %v", err)
	}
	done := waitTask(t, m, task.ID, "alice")
	if done.Status != models.TaskFailed {
		t.Fatalf("task = %s, want failed", done.Status)
	}
	if done.Error != "Aucun signal commun trouvé entre les fichiers" {
		t.Fatalf("Error = %q", done.Error)
	}

	// Failed concatenations leave their inputs for the janitor.
	for _, p := range []string{in1, in2} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("input %s missing after failure", filepath.Base(p))
		}
	}
}

func TestConcat_InputBounds(t *testing.T) {
	m := newTestManager(t, Config{})

	if _, err := m.CreateConcat("alice", []string{"one.mf4"}); !errors.Is(err, ErrTooFewInputs) {
		t.Fatalf("one input: err = %v", err)
	}

	many := make([]string, MaxConcatInputs+1)
	for i := range many {
		many[i] = fmt.Sprintf("f%d.mf4", i)
	}
	if _, err := m.CreateConcat("alice", many); !errors.Is(err, ErrTooManyInputs) {
		t.Fatalf("21 inputs: err = %v", err)
	}
}

func TestCreate_RateLimited(t *testing.T) {
	m := newTestManager(t, Config{})

	ids := make([]string, 0, createBurst)
	for i := 0; i < createBurst; i++ {
		input := stageRecording(t, m, fmt.Sprintf("trip%d.mf4", i), rampRecording())
		task, err := m.CreateConvert("alice", input, "csv", "", 0)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, task.ID)
	}

	over := stageRecording(t, m, "over.mf4", rampRecording())
	if _, err := m.CreateConvert("alice", over, "csv", "", 0); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("5th create: err = %v, want ErrRateLimited", err)
	}

	// Pacing is per owner.
	if _, err := m.CreateConvert("bob", over, "csv", "", 0); err != nil {
		t.Fatalf("other owner: %v", err)
	}

	// Spent buckets are not sweepable yet.
	if n := m.SweepLimiters(); n != 0 {
		t.Fatalf("SweepLimiters = %d, want 0", n)
	}

	for _, id := range ids {
		waitTask(t, m, id, "alice")
	}
	waitTask(t, m, mustLastID(t, m, "bob"), "bob")
}

// mustLastID finds the single task owned by owner.
func mustLastID(t *testing.T, m *Manager, owner string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, task := range m.tasks {
		if task.OwnerID == owner {
			return id
		}
	}
	t.Fatalf("no task for %s", owner)
	return ""
}

func TestGet_OwnerScoped(t *testing.T) {
	m := newTestManager(t, Config{})
	input := stageRecording(t, m, "trip.mf4", rampRecording())

	task, err := m.CreateConvert("alice", input, "csv", "", 0)
	if err != nil {
		t.Fatalf("CreateConvert: %v", err)
	}

	if _, err := m.Get(task.ID, "bob"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("foreign Get: err = %v", err)
	}
	if _, err := m.Get("nothere", "alice"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("unknown Get: err = %v", err)
	}
	if _, _, err := m.Download(task.ID, "bob"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("foreign Download: err = %v", err)
	}
	waitTask(t, m, task.ID, "alice")
}

func TestDownload_States(t *testing.T) {
	m := newTestManager(t, Config{})

	out := filepath.Join(m.Dir(), "done.csv")
	if err := os.WriteFile(out, []byte("timestamps\n0\n"), 0o640); err != nil {
		t.Fatalf("write: %v", err)
	}

	now := time.Now().UTC()
	m.mu.Lock()
	m.tasks["pend"] = &models.Task{ID: "pend", Kind: models.TaskConvert, OwnerID: "u", Status: models.TaskPending, CreatedAt: now}
	m.tasks["fail"] = &models.Task{ID: "fail", Kind: models.TaskConcat, OwnerID: "u", Status: models.TaskFailed, CreatedAt: now}
	m.tasks["done"] = &models.Task{ID: "done", Kind: models.TaskConvert, OwnerID: "u", Status: models.TaskCompleted, OutputPath: out, OutputName: "done.csv", CreatedAt: now}
	m.tasks["gone"] = &models.Task{ID: "gone", Kind: models.TaskConvert, OwnerID: "u", Status: models.TaskCompleted, OutputPath: filepath.Join(m.Dir(), "vanished.csv"), CreatedAt: now}
	m.mu.Unlock()

	var notFinished *NotFinishedError
	if _, _, err := m.Download("pend", "u"); !errors.As(err, &notFinished) {
		t.Fatalf("pending: err = %v", err)
	}
	if notFinished.Error() != "Conversion non terminée" {
		t.Fatalf("pending message = %q", notFinished.Error())
	}

	if _, _, err := m.Download("fail", "u"); !errors.As(err, &notFinished) {
		t.Fatalf("failed: err = %v", err)
	}
	if notFinished.Error() != "Concaténation non terminée" {
		t.Fatalf("failed message = %q", notFinished.Error())
	}

	path, name, err := m.Download("done", "u")
	if err != nil || path != out || name != "done.csv" {
		t.Fatalf("done: %q %q %v", path, name, err)
	}

	if _, _, err := m.Download("gone", "u"); !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("gone: err = %v", err)
	}
}

func TestCleanup_PerKindHorizons(t *testing.T) {
	m := newTestManager(t, Config{})
	base := time.Now().UTC()
	m.now = func() time.Time { return base }

	mkfile := func(name string) string {
		p := filepath.Join(m.Dir(), name)
		if err := os.WriteFile(p, []byte("x"), 0o640); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}
	oldIn, oldDBC, oldOut := mkfile("old.mf4"), mkfile("old.dbc"), mkfile("old.csv")
	concatOut := mkfile("merged_cc.mf4")

	m.mu.Lock()
	m.tasks["oldcv"] = &models.Task{
		ID: "oldcv", Kind: models.TaskConvert, OwnerID: "u", Status: models.TaskCompleted,
		InputPaths: []string{oldIn}, DBCPath: oldDBC, OutputPath: oldOut,
		CreatedAt: base.Add(-25 * time.Hour),
	}
	m.tasks["oldcc"] = &models.Task{
		ID: "oldcc", Kind: models.TaskConcat, OwnerID: "u", Status: models.TaskCompleted,
		OutputPath: concatOut, CreatedAt: base.Add(-2 * time.Hour),
	}
	m.tasks["fresh"] = &models.Task{
		ID: "fresh", Kind: models.TaskConvert, OwnerID: "u", Status: models.TaskCompleted,
		CreatedAt: base.Add(-30 * time.Minute),
	}
	m.mu.Unlock()

	if n := m.Cleanup(); n != 2 {
		t.Fatalf("Cleanup = %d, want 2", n)
	}
	for _, p := range []string{oldIn, oldDBC, oldOut, concatOut} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still present", filepath.Base(p))
		}
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
	if _, err := m.Get("fresh", "u"); err != nil {
		t.Fatalf("fresh task gone: %v", err)
	}

	// Admin cleanup with a tighter horizon takes the fresh one too.
	if n := m.CleanupKind(models.TaskConvert, 10*time.Minute); n != 1 {
		t.Fatalf("CleanupKind = %d, want 1", n)
	}
	if m.Len() != 0 {
		t.Fatalf("Len = %d, want 0", m.Len())
	}
}

func TestRunner_BoundedParallelism(t *testing.T) {
	m := newTestManager(t, Config{Parallelism: 1})

	release := make(chan struct{})
	started := make(chan string, 3)
	run := func(id string) {
		m.update(id, func(task *models.Task) { task.Status = models.TaskProcessing })
		started <- id
		<-release
		m.complete(id, filepath.Join(m.Dir(), "out.bin"), nil, "done")
	}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		task, err := m.enqueue("alice", &models.Task{Kind: models.TaskConvert, OwnerID: "alice"}, run)
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids = append(ids, task.ID)
	}

	<-started

	// The runner admits one task; the rest hold in pending.
	deadline := time.Now().Add(5 * time.Second)
	for {
		pending, processing := m.Counts()
		if pending == 2 && processing == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("counts = %d pending / %d processing, want 2/1", pending, processing)
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case id := <-started:
		t.Fatalf("task %s started beyond the parallelism bound", id)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	for _, id := range ids {
		done := waitTask(t, m, id, "alice")
		if done.Status != models.TaskCompleted {
			t.Fatalf("task %s = %s", id, done.Status)
		}
	}
}

func TestProgress_Monotone(t *testing.T) {
	m := newTestManager(t, Config{})
	m.mu.Lock()
	m.tasks["p1"] = &models.Task{ID: "p1", Kind: models.TaskConvert, OwnerID: "u", Status: models.TaskProcessing, CreatedAt: time.Now()}
	m.mu.Unlock()

	m.progress("p1", 50, "halfway")
	m.progress("p1", 20, "revisited")

	task, err := m.Get("p1", "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Progress != 50 {
		t.Fatalf("Progress = %d, want high-water 50", task.Progress)
	}
	if task.Message != "revisited" {
		t.Fatalf("Message = %q", task.Message)
	}

	m.progress("p1", 60, "onward")
	if task, _ = m.Get("p1", "u"); task.Progress != 60 {
		t.Fatalf("Progress = %d, want 60", task.Progress)
	}

	// Updates to expired tasks are dropped silently.
	m.progress("zz", 10, "ghost")
}

func TestSaveInput(t *testing.T) {
	m := newTestManager(t, Config{})

	path, n, err := m.SaveInput("u1_trip.mf4", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	if n != 5 || path != filepath.Join(m.Dir(), "u1_trip.mf4") {
		t.Fatalf("SaveInput = %q (%d bytes)", path, n)
	}
	raw, err := os.ReadFile(path)
	if err != nil || string(raw) != "hello" {
		t.Fatalf("content = %q, %v", raw, err)
	}

	for _, name := range []string{"", ".", "..", "../evil.mf4", "a/b.mf4"} {
		if _, _, err := m.SaveInput(name, strings.NewReader("x")); !errors.Is(err, ErrPathOutsideDir) {
			t.Errorf("name %q: err = %v, want ErrPathOutsideDir", name, err)
		}
	}

	// Names are single-use.
	if _, _, err := m.SaveInput("u1_trip.mf4", strings.NewReader("again")); err == nil {
		t.Fatal("duplicate name accepted")
	}
}

func TestInferDType(t *testing.T) {
	cases := []struct {
		name string
		col  []float64
		want dtype
	}{
		{"bool", []float64{0, 1, 0, 1}, dtBool},
		{"uint8", []float64{0, 200}, dtUint8},
		{"uint16", []float64{0, 40000}, dtUint16},
		{"uint32", []float64{0, 70000}, dtUint32},
		{"int8", []float64{-5, 100}, dtInt8},
		{"int16", []float64{-200, 300}, dtInt16},
		{"int32", []float64{-40000, 2}, dtInt32},
		{"fractional", []float64{0.5, 1}, dtFloat32},
		{"nan", []float64{math.NaN(), 1}, dtFloat32},
		{"huge", []float64{0, 1e10}, dtFloat32},
		{"huge negative", []float64{-3e9, 0}, dtFloat32},
		{"empty", nil, dtFloat32},
	}
	for _, tc := range cases {
		if got := inferDType(tc.col, 0); got != tc.want {
			t.Errorf("%s: inferDType = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestWriteCSV_FormatAndQuoting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	header := []string{"timestamps", "A;B", "Ints"}
	cols := [][]float64{
		{0, 0.5, 1},
		{1234.5678, 0.125, -2.5},
		{1, 2, 300},
	}
	if err := writeCSV(path, header, cols, 0, nil); err != nil {
		t.Fatalf("writeCSV: %v", err)
	}

	want := []string{
		`timestamps;"A;B";Ints`,
		"0;1235;1",
		"0.5;0.125;2",
		"1;-2.5;300",
	}
	lines := readLines(t, path)
	if len(lines) != len(want) {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestWriteCSV_WidenOnOverflow(t *testing.T) {
	rows := dtypeScanLimit + 1
	ts := make([]float64, rows)
	vals := make([]float64, rows)
	for i := range ts {
		ts[i] = float64(i)
		vals[i] = 1
	}
	// The last value falls outside the sampled integer range and must
	// print as a float, not get coerced.
	vals[rows-1] = 2.5

	var chunks [][2]int
	path := filepath.Join(t.TempDir(), "wide.csv")
	err := writeCSV(path, []string{"timestamps", "V"}, [][]float64{ts, vals}, 4000, func(written, total int) {
		chunks = append(chunks, [2]int{written, total})
	})
	if err != nil {
		t.Fatalf("writeCSV: %v", err)
	}

	wantChunks := [][2]int{{4000, rows}, {8000, rows}, {rows, rows}}
	if len(chunks) != len(wantChunks) {
		t.Fatalf("chunks = %v", chunks)
	}
	for i, w := range wantChunks {
		if chunks[i] != w {
			t.Fatalf("chunk %d = %v, want %v", i, chunks[i], w)
		}
	}

	lines := readLines(t, path)
	if len(lines) != rows+1 {
		t.Fatalf("got %d lines, want %d", len(lines), rows+1)
	}
	if lines[1] != "0;1" {
		t.Errorf("first row = %q", lines[1])
	}
	last := lines[len(lines)-1]
	if !strings.HasSuffix(last, ";2.5") {
		t.Errorf("last row = %q, want float tail", last)
	}
}
