// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package sandbox validates and executes untrusted analysis code.
//
// Two stages: a static token-level validator that rejects dangerous
// constructs without ever executing anything, and an out-of-process
// runner (python3 -I -E -S) with wall, CPU and address-space limits.
// Rejected code never reaches the runner. Block scripts are rendered
// to source by the codegen in this package before either stage.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"syscall"
	"time"

	_ "embed"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sys/unix"

	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/models"
)

//go:embed runner.py
var runnerSource string

// termGrace is how long a timed-out child gets between SIGTERM and
// SIGKILL.
const termGrace = 2 * time.Second

// cpuGrace pads the CPU-seconds rlimit over the wall timeout.
const cpuGrace = 5

// Config holds the sandbox limits. The zero value is completed by
// withDefaults; fields mirror config.SandboxConfig.
type Config struct {
	PythonPath     string
	WallTimeout    time.Duration
	MemoryLimit    int64
	MaxCodeLength  int
	MaxNodes       int
	MaxStringChars int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PythonPath:     "python3",
		WallTimeout:    30 * time.Second,
		MemoryLimit:    256 * 1024 * 1024,
		MaxCodeLength:  500_000,
		MaxNodes:       10_000,
		MaxStringChars: 10_000,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PythonPath == "" {
		c.PythonPath = def.PythonPath
	}
	if c.WallTimeout <= 0 {
		c.WallTimeout = def.WallTimeout
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = def.MemoryLimit
	}
	if c.MaxCodeLength <= 0 {
		c.MaxCodeLength = def.MaxCodeLength
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = def.MaxNodes
	}
	if c.MaxStringChars <= 0 {
		c.MaxStringChars = def.MaxStringChars
	}
	return c
}

// Runner executes validated code in a child interpreter. Spawn and
// protocol failures feed a circuit breaker so a broken runtime fails
// fast instead of stacking up doomed children; user-code failures do
// not count against it.
type Runner struct {
	cfg     Config
	log     zerolog.Logger
	breaker *gobreaker.CircuitBreaker[*models.ExecutionResult]
}

// NewRunner builds a Runner with the given limits.
func NewRunner(cfg Config) *Runner {
	log := logging.WithComponent("sandbox")
	return &Runner{
		cfg: cfg.withDefaults(),
		log: log,
		breaker: gobreaker.NewCircuitBreaker[*models.ExecutionResult](gobreaker.Settings{
			Name:        "sandbox-spawn",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("spawn breaker state change")
			},
		}),
	}
}

// Validate runs the static stage with the runner's caps.
func (r *Runner) Validate(code string) models.ValidationResult {
	return Validate(code, r.cfg)
}

// runRequest is the JSON sent to the child on stdin.
type runRequest struct {
	Code    string               `json:"code"`
	Data    map[string][]float64 `json:"data,omitempty"`
	Timeout float64              `json:"timeout"`
}

// runResponse is the JSON the child writes to stdout.
type runResponse struct {
	Success bool        `json:"success"`
	Output  string      `json:"output"`
	Error   string      `json:"error"`
	Result  interface{} `json:"result"`
}

// Run validates code and, when safe, executes it in a child
// interpreter with data bound as the injected table. timeout <= 0
// uses the configured wall timeout. Unsafe code is reported in the
// result without spawning anything.
func (r *Runner) Run(ctx context.Context, code string, data map[string][]float64, timeout time.Duration) (*models.ExecutionResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}
	if check := r.Validate(code); !check.Safe {
		var b strings.Builder
		b.WriteString("Code non autorisé:")
		for _, msg := range check.Errors {
			b.WriteString("\n  • ")
			b.WriteString(msg)
		}
		return &models.ExecutionResult{Success: false, Error: b.String()}, nil
	}
	if timeout <= 0 {
		timeout = r.cfg.WallTimeout
	}

	result, err := r.breaker.Execute(func() (*models.ExecutionResult, error) {
		return r.exec(ctx, code, data, timeout)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.log.Warn().Err(err).Msg("run rejected: spawn breaker open")
			return nil, ErrRunnerUnavailable
		}
		r.log.Error().Err(err).Msg("sandbox run failed")
		return nil, Error.Wrap(err)
	}
	return result, nil
}

// exec spawns one child and drives the stdin/stdout protocol. The
// returned error marks runtime-level failures only (spawn, protocol);
// anything the user's code did wrong comes back inside the result.
func (r *Runner) exec(ctx context.Context, code string, data map[string][]float64, timeout time.Duration) (*models.ExecutionResult, error) {
	req, err := json.Marshal(runRequest{Code: code, Data: data, Timeout: timeout.Seconds()})
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// -I isolates from the invoking environment, -E ignores PYTHON*
	// variables, -S skips site initialization.
	cmd := exec.CommandContext(runCtx, r.cfg.PythonPath, "-I", "-E", "-S", "-c", runnerSource)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(req)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn interpreter: %w", err)
	}
	r.applyLimits(cmd.Process.Pid, timeout)
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		r.log.Warn().
			Dur("elapsed", elapsed).
			Float64("timeout_s", timeout.Seconds()).
			Msg("run timed out")
		return &models.ExecutionResult{
			Success:       false,
			Error:         fmt.Sprintf("Timeout: l'exécution a dépassé %.0f secondes", timeout.Seconds()),
			ExecutionTime: elapsed.Seconds(),
		}, nil
	}

	var resp runResponse
	if jsonErr := json.Unmarshal(stdout.Bytes(), &resp); jsonErr == nil && waitErr == nil {
		return &models.ExecutionResult{
			Success:       resp.Success,
			Output:        resp.Output,
			Error:         resp.Error,
			Result:        resp.Result,
			ExecutionTime: elapsed.Seconds(),
		}, nil
	}

	// A child killed by a resource limit died before writing its
	// response; that is the script's doing, not the runtime's.
	if killedBySignal(waitErr) {
		r.log.Warn().Err(waitErr).Dur("elapsed", elapsed).Msg("child killed by resource limit")
		return &models.ExecutionResult{
			Success:       false,
			Error:         "Exécution interrompue: limite mémoire ou CPU dépassée",
			ExecutionTime: elapsed.Seconds(),
		}, nil
	}

	tail := stderr.String()
	if len(tail) > 512 {
		tail = tail[len(tail)-512:]
	}
	if waitErr != nil {
		return nil, fmt.Errorf("interpreter exited: %w (stderr: %s)", waitErr, tail)
	}
	return nil, fmt.Errorf("malformed runner response (stderr: %s)", tail)
}

// applyLimits caps the child's address space and CPU seconds. Failures
// degrade to the wall timeout alone.
func (r *Runner) applyLimits(pid int, timeout time.Duration) {
	mem := uint64(r.cfg.MemoryLimit)
	if err := unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: mem, Max: mem}, nil); err != nil {
		r.log.Warn().Err(err).Msg("set RLIMIT_AS failed")
	}
	cpu := uint64(math.Ceil(timeout.Seconds())) + cpuGrace
	if err := unix.Prlimit(pid, unix.RLIMIT_CPU, &unix.Rlimit{Cur: cpu, Max: cpu}, nil); err != nil {
		r.log.Warn().Err(err).Msg("set RLIMIT_CPU failed")
	}
}

func killedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && status.Signaled()
}
