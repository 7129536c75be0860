// Package embedded runs JavaScript in-process on goja. It has no module
// loader, so programs that require npm packages must use another executor.
package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/era-ai/era/internal/execution"
)

// Executor runs programs in a fresh goja runtime per context.
type Executor struct{}

// NewExecutor creates an embedded Executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return "embedded"
}

// CanExecute reports whether language is plain JavaScript.
func (e *Executor) CanExecute(language string) bool {
	return language == "javascript"
}

// Provision creates an isolated runtime.
func (e *Executor) Provision(ctx context.Context, language string) (execution.Context, error) {
	if !e.CanExecute(language) {
		return nil, fmt.Errorf("embedded executor cannot run %s", language)
	}
	return &runtime{id: uuid.NewString(), vm: goja.New()}, nil
}

type runtime struct {
	id string
	vm *goja.Runtime
}

// exitError carries process.exit out of the VM.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("process.exit(%d)", e.code)
}

func (r *runtime) ID() string {
	return r.id
}

func (r *runtime) Run(ctx context.Context, req *execution.RunRequest) (out *execution.RunOutput, err error) {
	var stdout, stderr strings.Builder
	r.registerConsole(&stdout, &stderr)
	r.registerProcess(req.Env)
	unhandled := r.trackRejections()

	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(ctx.Err())
	})
	defer stop()

	defer func() {
		if p := recover(); p != nil {
			exit, ok := p.(*exitError)
			if !ok {
				panic(p)
			}
			out = &execution.RunOutput{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exit.code}
			err = nil
		}
	}()

	_, runErr := r.vm.RunString(req.Code)

	out = &execution.RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		for _, p := range *unhandled {
			out.Stderr += "Uncaught (in promise) " + rejectionReason(p.Result()) + "\n"
			out.ExitCode = 1
		}
		return out, nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(runErr, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return nil, cause
		}
		return nil, runErr
	}

	var exception *goja.Exception
	if errors.As(runErr, &exception) {
		out.Stderr += "Uncaught " + exception.Error() + "\n"
		out.ExitCode = 1
		return out, nil
	}
	return nil, runErr
}

func (r *runtime) Teardown(ctx context.Context) error {
	r.vm.ClearInterrupt()
	r.vm = nil
	return nil
}

// trackRejections records promises rejected without a handler. goja drains
// its job queue before RunString returns, so the list is final by then.
func (r *runtime) trackRejections() *[]*goja.Promise {
	var rejected []*goja.Promise
	r.vm.SetPromiseRejectionTracker(func(p *goja.Promise, op goja.PromiseRejectionOperation) {
		switch op {
		case goja.PromiseRejectionReject:
			rejected = append(rejected, p)
		case goja.PromiseRejectionHandle:
			for i, q := range rejected {
				if q == p {
					rejected = append(rejected[:i], rejected[i+1:]...)
					break
				}
			}
		}
	})
	return &rejected
}

func rejectionReason(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	return v.String()
}

func (r *runtime) registerConsole(stdout, stderr *strings.Builder) {
	console := r.vm.NewObject()

	write := func(w *strings.Builder) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, format(arg))
			}
			w.WriteString(strings.Join(parts, " "))
			w.WriteString("\n")
			return goja.Undefined()
		}
	}

	console.Set("log", write(stdout))
	console.Set("info", write(stdout))
	console.Set("debug", write(stdout))
	console.Set("warn", write(stderr))
	console.Set("error", write(stderr))
	r.vm.Set("console", console)
}

func (r *runtime) registerProcess(env map[string]string) {
	process := r.vm.NewObject()

	envObj := r.vm.NewObject()
	for k, v := range env {
		envObj.Set(k, v)
	}
	process.Set("env", envObj)

	process.Set("exit", func(call goja.FunctionCall) goja.Value {
		code := 0
		if len(call.Arguments) > 0 {
			code = int(call.Argument(0).ToInteger())
		}
		panic(&exitError{code: code})
	})

	r.vm.Set("process", process)
}

// format renders a console argument the way Node does for common values.
func format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if _, isObj := v.(*goja.Object); isObj {
		exported := v.Export()
		if _, isFunc := exported.(func(goja.FunctionCall) goja.Value); !isFunc {
			if data, err := json.Marshal(exported); err == nil {
				return string(data)
			}
		}
	}
	return v.String()
}
