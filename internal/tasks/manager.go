// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package tasks runs the background convert and concatenate pipeline.
//
// Tasks are created pending, picked up by a bounded runner and mutated
// only through the manager, which serializes updates under one mutex
// and keeps progress monotone. A janitor removes finished or abandoned
// tasks past a per-kind retention horizon together with their files.
package tasks

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/models"
)

// Concatenation fan-in bounds.
const (
	MinConcatInputs = 2
	MaxConcatInputs = 20
)

// Per-user task creation pacing.
const (
	createRefill = rate.Limit(1)
	createBurst  = 4
)

// Config holds the pipeline policy.
type Config struct {
	// Dir is the working directory for task inputs and outputs. Every
	// path a task touches must resolve inside it.
	Dir string

	// Parallelism bounds concurrently running tasks; zero or negative
	// means GOMAXPROCS. Tasks beyond the bound wait in pending.
	Parallelism int

	// ConvertMaxAge and ConcatMaxAge are the janitor retention horizons
	// per task kind, measured from creation.
	ConvertMaxAge time.Duration
	ConcatMaxAge  time.Duration

	// DefaultRaster is the uniform time step in seconds used by the
	// interpolating conversion path when the request names none.
	DefaultRaster float64

	// CSVChunkRows is the flush granularity of the CSV writer.
	CSVChunkRows int
}

// DefaultConfig returns the production policy: GOMAXPROCS runners,
// 24 h convert retention, 1 h concat retention, 10 ms raster.
func DefaultConfig() Config {
	return Config{
		ConvertMaxAge: 24 * time.Hour,
		ConcatMaxAge:  time.Hour,
		DefaultRaster: 0.01,
		CSVChunkRows:  100000,
	}
}

// Manager owns the task table and the runner pool. Safe for concurrent
// use.
type Manager struct {
	cfg     Config
	backend decode.Backend
	log     zerolog.Logger

	sem chan struct{}

	mu       sync.Mutex
	tasks    map[string]*models.Task
	limiters map[string]*rate.Limiter

	now func() time.Time
}

// NewManager builds a task manager over the given decode backend and
// creates the working directory. Zero config fields fall back to
// DefaultConfig values.
func NewManager(backend decode.Backend, cfg Config) (*Manager, error) {
	def := DefaultConfig()
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.ConvertMaxAge <= 0 {
		cfg.ConvertMaxAge = def.ConvertMaxAge
	}
	if cfg.ConcatMaxAge <= 0 {
		cfg.ConcatMaxAge = def.ConcatMaxAge
	}
	if cfg.DefaultRaster <= 0 {
		cfg.DefaultRaster = def.DefaultRaster
	}
	if cfg.CSVChunkRows <= 0 {
		cfg.CSVChunkRows = def.CSVChunkRows
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	cfg.Dir = dir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, Error.Wrap(err)
	}

	return &Manager{
		cfg:      cfg,
		backend:  backend,
		log:      logging.WithComponent("tasks"),
		sem:      make(chan struct{}, cfg.Parallelism),
		tasks:    make(map[string]*models.Task),
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}, nil
}

// Dir returns the working directory tasks read and write.
func (m *Manager) Dir() string { return m.cfg.Dir }

// CreateConvert validates and enqueues a format conversion. inputPath
// must be a previously uploaded file inside the task directory; only
// .mf4 to csv is supported. A raster of zero keeps the original
// sampling. The returned task is a snapshot.
func (m *Manager) CreateConvert(owner, inputPath, outputFormat, dbcPath string, raster float64) (*models.Task, error) {
	input, err := m.ValidatePath(inputPath)
	if err != nil {
		return nil, err
	}
	dbc := ""
	if dbcPath != "" {
		if dbc, err = m.ValidatePath(dbcPath); err != nil {
			return nil, err
		}
	}

	in := strings.TrimPrefix(strings.ToLower(filepath.Ext(input)), ".")
	out := strings.TrimPrefix(strings.ToLower(outputFormat), ".")
	if in != "mf4" || out != "csv" {
		return nil, &UnsupportedError{In: in, Out: out}
	}
	if raster < 0 {
		raster = 0
	}

	task := &models.Task{
		Kind:       models.TaskConvert,
		OwnerID:    owner,
		InputPaths: []string{input},
		DBCPath:    dbc,
	}
	return m.enqueue(owner, task, func(id string) { m.runConvert(id, input, dbc, raster) })
}

// CreateConcat validates and enqueues a concatenation of 2 to 20
// recordings, all inside the task directory. The returned task is a
// snapshot.
func (m *Manager) CreateConcat(owner string, inputPaths []string) (*models.Task, error) {
	if len(inputPaths) < MinConcatInputs {
		return nil, ErrTooFewInputs
	}
	if len(inputPaths) > MaxConcatInputs {
		return nil, ErrTooManyInputs
	}

	inputs := make([]string, len(inputPaths))
	for i, p := range inputPaths {
		clean, err := m.ValidatePath(p)
		if err != nil {
			return nil, err
		}
		inputs[i] = clean
	}

	task := &models.Task{
		Kind:       models.TaskConcat,
		OwnerID:    owner,
		InputPaths: inputs,
	}
	return m.enqueue(owner, task, func(id string) { m.runConcat(id, inputs) })
}

// enqueue paces the owner, registers the pending record and starts the
// runner goroutine. run receives the task id and must drive the task to
// a terminal status.
func (m *Manager) enqueue(owner string, task *models.Task, run func(id string)) (*models.Task, error) {
	m.mu.Lock()
	lim := m.limiters[owner]
	if lim == nil {
		lim = rate.NewLimiter(createRefill, createBurst)
		m.limiters[owner] = lim
	}
	if !lim.Allow() {
		m.mu.Unlock()
		return nil, ErrRateLimited
	}

	task.ID = uuid.NewString()[:8]
	task.Status = models.TaskPending
	task.CreatedAt = m.now().UTC()
	m.tasks[task.ID] = task
	snap := *task
	m.mu.Unlock()

	m.log.Info().
		Str("task_id", task.ID).
		Str("kind", task.Kind).
		Int("inputs", len(task.InputPaths)).
		Msg("task created")

	go func(id string) {
		m.sem <- struct{}{}
		defer func() { <-m.sem }()
		run(id)
	}(task.ID)

	return &snap, nil
}

// runConvert drives one conversion to a terminal status.
func (m *Manager) runConvert(id, input, dbc string, raster float64) {
	m.update(id, func(t *models.Task) {
		t.Status = models.TaskProcessing
		t.Message = "Démarrage..."
	})

	outPath, err := m.convert(id, input, dbc, raster)
	if err != nil {
		m.fail(id, models.TaskConvert, err)
		return
	}
	m.complete(id, outPath, nil, "Conversion terminée")
}

// runConcat drives one concatenation to a terminal status.
func (m *Manager) runConcat(id string, inputs []string) {
	m.update(id, func(t *models.Task) {
		t.Status = models.TaskProcessing
		t.Message = "Démarrage..."
	})

	outPath, stats, err := m.concatenate(id, inputs)
	if err != nil {
		m.fail(id, models.TaskConcat, err)
		return
	}
	m.complete(id, outPath, stats, "Concaténation terminée")
}

// Get returns a snapshot of one task. Unknown ids and tasks owned by
// someone else are indistinguishable.
func (m *Manager) Get(id, owner string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.OwnerID != owner {
		return nil, ErrTaskNotFound
	}
	snap := *t
	return &snap, nil
}

// Download resolves the output of a completed task to its on-disk path
// and client-facing filename.
func (m *Manager) Download(id, owner string) (path, name string, err error) {
	t, err := m.Get(id, owner)
	if err != nil {
		return "", "", err
	}
	if t.Status != models.TaskCompleted {
		return "", "", &NotFinishedError{Kind: t.Kind}
	}

	info, err := os.Stat(t.OutputPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", "", ErrOutputMissing
	}

	name = t.OutputName
	if name == "" {
		name = filepath.Base(t.OutputPath)
	}
	return t.OutputPath, name, nil
}

// Counts reports pending and processing tasks, for gauges.
func (m *Manager) Counts() (pending, processing int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		switch t.Status {
		case models.TaskPending:
			pending++
		case models.TaskProcessing:
			processing++
		}
	}
	return pending, processing
}

// Len reports the number of tracked tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Cleanup removes tasks past their kind's retention horizon and unlinks
// their files, returning how many were removed. Age is measured from
// creation, so abandoned tasks go too.
func (m *Manager) Cleanup() int {
	n := m.CleanupKind(models.TaskConvert, m.cfg.ConvertMaxAge)
	n += m.CleanupKind(models.TaskConcat, m.cfg.ConcatMaxAge)
	return n
}

// CleanupKind removes tasks of one kind created more than maxAge ago.
// Admin cleanup calls this with a caller-chosen horizon.
func (m *Manager) CleanupKind(kind string, maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	var victims []*models.Task
	for id, t := range m.tasks {
		if t.Kind != kind || t.CreatedAt.After(cutoff) {
			continue
		}
		delete(m.tasks, id)
		victims = append(victims, t)
	}
	m.mu.Unlock()

	for _, t := range victims {
		m.removeFiles(t)
		m.log.Debug().Str("task_id", t.ID).Str("kind", t.Kind).Msg("task expired")
	}
	return len(victims)
}

// SweepLimiters drops owner pacing buckets that are back to full burst,
// returning how many were dropped.
func (m *Manager) SweepLimiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for owner, lim := range m.limiters {
		if lim.Tokens() >= createBurst {
			delete(m.limiters, owner)
			removed++
		}
	}
	return removed
}

// SaveInput streams an upload into the task directory under name and
// returns its absolute path and size. name must be a bare filename.
func (m *Manager) SaveInput(name string, r io.Reader) (string, int64, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", 0, ErrPathOutsideDir
	}
	path := filepath.Join(m.cfg.Dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, Error.Wrap(err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, Error.Wrap(err)
	}
	return path, n, nil
}

// ValidatePath resolves p and requires an existing regular file inside
// the task directory. Missing files and escapes report the same error
// so probing reveals nothing.
func (m *Manager) ValidatePath(p string) (string, error) {
	if p == "" {
		return "", ErrPathOutsideDir
	}
	clean := filepath.Clean(p)
	if !filepath.IsAbs(clean) {
		clean = filepath.Join(m.cfg.Dir, clean)
	}

	rel, err := filepath.Rel(m.cfg.Dir, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathOutsideDir
	}

	info, err := os.Stat(clean)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrPathOutsideDir
	}
	return clean, nil
}

// update applies fn to a live task under the table mutex. Expired tasks
// are gone from the table, in which case the mutation is dropped.
func (m *Manager) update(id string, fn func(*models.Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		fn(t)
	}
}

// progress records a milestone. Progress is monotone: a lower pct keeps
// the high-water mark and only refreshes the message.
func (m *Manager) progress(id string, pct int, msg string) {
	m.update(id, func(t *models.Task) {
		if pct > t.Progress {
			t.Progress = pct
		}
		t.Message = msg
	})
}

func (m *Manager) complete(id, outPath string, stats *models.ConcatStats, msg string) {
	done := m.now().UTC()
	m.update(id, func(t *models.Task) {
		t.Status = models.TaskCompleted
		t.Progress = 100
		t.Message = msg
		t.OutputPath = outPath
		t.OutputName = filepath.Base(outPath)
		t.Stats = stats
		t.CompletedAt = &done
	})
	m.log.Info().Str("task_id", id).Str("output", filepath.Base(outPath)).Msg("task completed")
}

func (m *Manager) fail(id, kind string, err error) {
	userMsg := userMessage(kind, err)
	done := m.now().UTC()
	m.update(id, func(t *models.Task) {
		t.Status = models.TaskFailed
		t.Message = "Erreur: " + userMsg
		t.Error = userMsg
		t.CompletedAt = &done
	})
	m.log.Error().Err(err).Str("task_id", id).Str("kind", kind).Msg("task failed")
}

// userMessage maps a pipeline failure to its client-facing text. Known
// validation failures keep their message; anything else collapses to a
// generic one so internal detail stays in the logs.
func userMessage(kind string, err error) string {
	switch {
	case errors.Is(err, ErrNoValidChannels),
		errors.Is(err, ErrNoValidSignals),
		errors.Is(err, ErrNoCommonSignals),
		errors.Is(err, ErrPathOutsideDir),
		errors.Is(err, ErrTooFewInputs),
		errors.Is(err, ErrTooManyInputs):
		return err.Error()
	}

	var unsupported *UnsupportedError
	if errors.As(err, &unsupported) {
		return unsupported.Error()
	}
	var timeRange *TimeRangeError
	if errors.As(err, &timeRange) {
		return timeRange.Error()
	}

	if kind == models.TaskConcat {
		return "La concaténation a échoué"
	}
	return "La conversion a échoué"
}

// removeFiles unlinks everything a task owns on disk.
func (m *Manager) removeFiles(t *models.Task) {
	for _, p := range t.InputPaths {
		m.removeIfExists(p)
	}
	m.removeIfExists(t.DBCPath)
	m.removeIfExists(t.OutputPath)
}

func (m *Manager) removeIfExists(p string) {
	if p == "" {
		return
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		m.log.Warn().Err(err).Str("path", p).Msg("file removal failed")
	}
}
