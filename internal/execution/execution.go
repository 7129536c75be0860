// Package execution runs self-contained programs on a pluggable backend and
// reports the outcome as data.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/era-ai/era/pkg/types"
)

// teardownTimeout bounds context teardown after a run.
const teardownTimeout = 10 * time.Second

// Executor is an execution backend.
type Executor interface {
	// Name returns the executor name used in configuration.
	Name() string

	// CanExecute reports whether the backend runs programs in language.
	CanExecute(language string) bool

	// Provision creates a fresh, isolated context for one run.
	Provision(ctx context.Context, language string) (Context, error)
}

// Context is one ephemeral execution environment.
type Context interface {
	ID() string
	Run(ctx context.Context, req *RunRequest) (*RunOutput, error)
	Teardown(ctx context.Context) error
}

// RunRequest is a program submitted to a Context.
type RunRequest struct {
	Code     string
	Language string
	Env      map[string]string
}

// RunOutput is what a completed run produced. A non-zero ExitCode is still a
// completed run.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Options configure an Adapter.
type Options struct {
	// Preferred names the executor tried first.
	Preferred string
	// Timeout bounds one run, provisioning included. Zero means no bound.
	Timeout time.Duration
	// Env is exported to every run; per-call values win on conflict.
	Env map[string]string
}

// Adapter provisions a context, runs code in it, and tears it down.
type Adapter struct {
	opts   Options
	logger *slog.Logger

	executorsMu sync.RWMutex
	executors   []Executor
}

// NewAdapter creates an Adapter with no executors registered.
func NewAdapter(opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{opts: opts, logger: logger}
}

// RegisterExecutor adds a backend.
func (a *Adapter) RegisterExecutor(e Executor) {
	a.executorsMu.Lock()
	defer a.executorsMu.Unlock()
	a.executors = append(a.executors, e)
}

// Executors returns the registered backend names in registration order.
func (a *Adapter) Executors() []string {
	a.executorsMu.RLock()
	defer a.executorsMu.RUnlock()
	names := make([]string, 0, len(a.executors))
	for _, e := range a.executors {
		names = append(names, e.Name())
	}
	return names
}

func (a *Adapter) findExecutor(language string) Executor {
	a.executorsMu.RLock()
	defer a.executorsMu.RUnlock()

	for _, e := range a.executors {
		if e.Name() == a.opts.Preferred && e.CanExecute(language) {
			return e
		}
	}
	for _, e := range a.executors {
		if e.CanExecute(language) {
			return e
		}
	}
	return nil
}

// Execute runs code once. It never returns an error: a completed run yields
// Succeeded=true with the program's output and exit code, whatever that exit
// code is, and any failure to provision or reach the backend yields
// Succeeded=false with ErrorMessage set. Nothing is retried.
func (a *Adapter) Execute(ctx context.Context, code, language string, env map[string]string) types.ExecutionResult {
	executor := a.findExecutor(language)
	if executor == nil {
		return types.ExecutionResult{ErrorMessage: fmt.Sprintf("no executor available for language %q", language)}
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	logger := a.logger.With("executor", executor.Name(), "language", language)

	ec, err := executor.Provision(ctx, language)
	if err != nil {
		logger.Warn("failed to provision execution context", "error", err)
		return types.ExecutionResult{ErrorMessage: a.describe("failed to provision execution context", err)}
	}
	logger = logger.With("context", ec.ID())
	defer a.teardown(ctx, ec, logger)

	out, err := ec.Run(ctx, &RunRequest{
		Code:     code,
		Language: language,
		Env:      MergeEnv(a.opts.Env, env),
	})
	if err != nil {
		logger.Warn("execution failed", "error", err)
		return types.ExecutionResult{ErrorMessage: a.describe("execution failed", err)}
	}

	exitCode := out.ExitCode
	logger.Debug("execution finished", "exit_code", exitCode, "stdout_bytes", len(out.Stdout))
	return types.ExecutionResult{
		Succeeded: true,
		Stdout:    out.Stdout,
		Stderr:    out.Stderr,
		ExitCode:  &exitCode,
	}
}

func (a *Adapter) describe(what string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) && a.opts.Timeout > 0 {
		return fmt.Sprintf("%s: timed out after %s", what, a.opts.Timeout)
	}
	return fmt.Sprintf("%s: %v", what, err)
}

// teardown is best effort; the run's context may already be done.
func (a *Adapter) teardown(ctx context.Context, ec Context, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := ec.Teardown(ctx); err != nil {
		logger.Warn("failed to tear down execution context", "error", err)
	}
}

// MergeEnv overlays maps left to right into a new map.
func MergeEnv(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
