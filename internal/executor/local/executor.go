// Package local runs programs as subprocesses inside throwaway directories.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/era-ai/era/internal/execution"
	"github.com/era-ai/era/pkg/types"
)

var sourceFiles = map[string]string{
	"javascript": "main.js",
	"typescript": "main.ts",
}

// Executor runs programs with a locally installed runtime.
type Executor struct {
	config *types.LocalExecutorConfig

	// Semaphore for max concurrent runs
	semaphore chan struct{}
}

// NewExecutor creates a local Executor.
func NewExecutor(config *types.LocalExecutorConfig) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	return &Executor{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return "local"
}

// CanExecute reports whether a runtime command is configured for language.
func (e *Executor) CanExecute(language string) bool {
	if !e.config.Enabled {
		return false
	}
	_, known := sourceFiles[language]
	return known && len(e.config.Runtimes[language]) > 0
}

// Languages lists the languages with a configured runtime.
func (e *Executor) Languages() []string {
	var langs []string
	for lang := range sourceFiles {
		if e.CanExecute(lang) {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	return langs
}

// Provision creates a fresh working directory.
func (e *Executor) Provision(ctx context.Context, language string) (execution.Context, error) {
	if !e.CanExecute(language) {
		return nil, fmt.Errorf("no runtime configured for %s", language)
	}
	if e.config.WorkDir != "" {
		if err := os.MkdirAll(e.config.WorkDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(e.config.WorkDir, "era-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	return &runDir{executor: e, dir: dir, language: language}, nil
}

type runDir struct {
	executor *Executor
	dir      string
	language string
}

func (r *runDir) ID() string {
	return filepath.Base(r.dir)
}

func (r *runDir) Run(ctx context.Context, req *execution.RunRequest) (*execution.RunOutput, error) {
	e := r.executor
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	file := filepath.Join(r.dir, sourceFiles[r.language])
	if err := os.WriteFile(file, []byte(req.Code), 0644); err != nil {
		return nil, fmt.Errorf("failed to write program: %w", err)
	}

	runtime := e.config.Runtimes[r.language]
	args := append(append([]string{}, runtime[1:]...), file)
	cmd := exec.CommandContext(ctx, runtime[0], args...)
	cmd.Dir = r.dir
	cmd.Env = buildEnvironment(r.dir, req.Env)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", runtime[0], err)
	}

	err := cmd.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	out := &execution.RunOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run program: %w", err)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

func (r *runDir) Teardown(ctx context.Context) error {
	return os.RemoveAll(r.dir)
}

// buildEnvironment keeps the daemon's environment so runtimes find their
// toolchain, then applies the run's variables.
func buildEnvironment(dir string, vars map[string]string) []string {
	env := os.Environ()
	env = append(env, "ERA_RUN_DIR="+dir)
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
