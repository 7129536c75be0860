// Package orchestrator drives agent creation sessions: generate code, run
// it, judge the run, and retry with feedback until an attempt succeeds or
// the budget is spent.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/era-ai/era/internal/generator"
	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/registry"
	"github.com/era-ai/era/pkg/types"
)

// DefaultMaxAttempts is the outer attempt budget when none is configured.
const DefaultMaxAttempts = 3

var (
	// ErrAgentExists is returned when a successful agent with the requested
	// name is already stored and the request does not force a rebuild.
	ErrAgentExists = errors.New("agent already exists")

	// ErrHistoryUnavailable wraps failures to read or write the history store.
	ErrHistoryUnavailable = errors.New("history store unavailable")

	// ErrEmptyPrompt is returned when there is no prompt to build from.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrInvalidName is returned for agent names that cannot be stored or
	// referenced from generated code.
	ErrInvalidName = errors.New("invalid agent name")
)

var agentNamePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$-]{0,63}$`)

// Generator produces code for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts generator.Options) (*generator.Result, error)
}

// Runner executes a self-contained program.
type Runner interface {
	Execute(ctx context.Context, code, language string, env map[string]string) types.ExecutionResult
}

// Store persists finished sessions.
type Store interface {
	Save(s *types.Session) error
	LatestSuccess(agentName string) (*types.Session, error)
}

// Utilities hands out registry snapshots.
type Utilities interface {
	Load(force bool) *registry.Snapshot
}

// Options are the orchestrator defaults applied to requests that leave the
// corresponding field empty.
type Options struct {
	MaxAttempts int
	Language    string
	Model       string
}

// Orchestrator runs sessions. Independent sessions may run concurrently.
type Orchestrator struct {
	generator Generator
	runner    Runner
	store     Store
	utilities Utilities
	events    *Hub
	opts      Options
	logger    *slog.Logger

	// active holds agent names with a session in flight.
	mu     sync.Mutex
	active map[string]bool

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(gen Generator, runner Runner, store Store, utilities Utilities, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Language == "" {
		opts.Language = "javascript"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator: gen,
		runner:    runner,
		store:     store,
		utilities: utilities,
		events:    NewHub(),
		opts:      opts,
		logger:    logger,
		active:    make(map[string]bool),
	}
}

// Events returns the hub session events are published on.
func (o *Orchestrator) Events() *Hub {
	return o.events
}

// Run executes one session to completion and persists it whatever the
// outcome. Extraction, execution and transport failures are recorded on the
// returned session, not returned as errors. An error is returned only when
// the request is rejected up front, the prompt is empty, ctx is cancelled,
// or the history store cannot be reached; in the last three cases the
// session is still returned with outcome FatalError. The agent name stays
// reserved until the session is stored.
func (o *Orchestrator) Run(ctx context.Context, req *types.CreateRequest) (*types.Session, error) {
	release, err := o.claim(req)
	if err != nil {
		return nil, err
	}
	defer release()
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req *types.CreateRequest) (*types.Session, error) {
	s := o.newSession(req)
	logger := o.logger.With("session", s.ID, "agent", s.AgentName)

	if strings.TrimSpace(req.Prompt) == "" {
		return o.finish(s, types.OutcomeFatalError, logger, ErrEmptyPrompt)
	}

	o.events.Publish(&types.SessionEvent{Type: types.EventSessionStarted, SessionID: s.ID, AgentName: s.AgentName})
	logger.Info("session started", "max_attempts", s.MaxAttempts, "language", s.Language)

	genOpts := generator.Options{Model: s.Model, Language: s.Language}
	prompt := initialPrompt(req)

	for n := 1; n <= s.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return o.finish(s, types.OutcomeFatalError, logger, err)
		}

		attempt := types.GenerationAttempt{
			AttemptNumber: n,
			PromptSent:    prompt,
			StartedAt:     time.Now(),
		}

		res, err := o.generator.Generate(ctx, prompt, genOpts)
		if err != nil {
			attempt.GenerationError = err.Error()
			var extErr *generator.ExtractionError
			if errors.As(err, &extErr) {
				attempt.RawResponse = extErr.LastResponse
			}
			attempt.CompletedAt = time.Now()
			s.Attempts = append(s.Attempts, attempt)
			o.publishAttempt(types.EventAttemptGenerated, s, &attempt, false, attempt.GenerationError)
			logger.Warn("generation failed", "attempt", n, "error", err)

			if ctxErr := ctx.Err(); ctxErr != nil {
				return o.finish(s, types.OutcomeFatalError, logger, ctxErr)
			}
			if n == s.MaxAttempts {
				return o.finish(s, types.OutcomeFatalError, logger, nil)
			}
			prompt = reframePrompt(req, n)
			continue
		}

		attempt.PromptSent = res.Prompt
		attempt.RawResponse = res.RawResponse
		attempt.ExtractionSucceeded = true
		attempt.ExtractedCode = res.Code
		o.publishAttempt(types.EventAttemptGenerated, s, &attempt, true, "")

		snap := o.utilities.Load(false)
		attempt.Utilities = req.Utilities
		if len(attempt.Utilities) == 0 {
			attempt.Utilities = snap.Select(res.Code)
		}
		program := snap.Inject(res.Code, attempt.Utilities)

		judged := Judge(o.runner.Execute(ctx, program, s.Language, req.Env))
		attempt.ExecutionResult = &judged
		attempt.CompletedAt = time.Now()
		s.Attempts = append(s.Attempts, attempt)
		o.publishAttempt(types.EventAttemptExecuted, s, &attempt, judged.Succeeded, judged.ErrorMessage)

		if judged.Succeeded {
			s.FinalCode = res.Code
			return o.finish(s, types.OutcomeSuccess, logger, nil)
		}

		logger.Info("attempt failed", "attempt", n, "reason", judged.ErrorMessage)
		prompt = feedbackPrompt(req, res.Code, judged.ErrorMessage)
	}

	return o.finish(s, types.OutcomeExhaustedRetries, logger, nil)
}

// RunAsync starts Run in the background and returns the session ID at once.
// The session outlives ctx cancellation; Wait blocks until every background
// session has finished.
func (o *Orchestrator) RunAsync(ctx context.Context, req *types.CreateRequest) (string, error) {
	release, err := o.claim(req)
	if err != nil {
		return "", err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	bg := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer release()
		if _, err := o.run(bg, req); err != nil {
			o.logger.Error("background session failed", "session", req.ID, "agent", req.AgentName, "error", err)
		}
	}()
	return req.ID, nil
}

// Wait blocks until every session started by RunAsync has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Preview generates code once and composes the program without running or
// storing anything.
func (o *Orchestrator) Preview(ctx context.Context, req *types.CreateRequest) (*types.Preview, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	s := o.newSession(req)
	res, err := o.generator.Generate(ctx, initialPrompt(req), generator.Options{Model: s.Model, Language: s.Language})
	if err != nil {
		return nil, err
	}

	snap := o.utilities.Load(false)
	names := req.Utilities
	if len(names) == 0 {
		names = snap.Select(res.Code)
	}

	return &types.Preview{
		AgentName:    req.AgentName,
		Prompt:       req.Prompt,
		Code:         res.Code,
		Utilities:    names,
		Program:      snap.Inject(res.Code, names),
		RawResponse:  res.RawResponse,
		AttemptsUsed: res.AttemptsUsed,
	}, nil
}

// claim checks the name and reserves it for one session at a time.
func (o *Orchestrator) claim(req *types.CreateRequest) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkName(req); err != nil {
		return nil, err
	}
	if o.active[req.AgentName] {
		return nil, fmt.Errorf("%w: %s (creation in progress)", ErrAgentExists, req.AgentName)
	}
	o.active[req.AgentName] = true

	return func() {
		o.mu.Lock()
		delete(o.active, req.AgentName)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) checkName(req *types.CreateRequest) error {
	if !agentNamePattern.MatchString(req.AgentName) {
		return fmt.Errorf("%w: %q", ErrInvalidName, req.AgentName)
	}
	if req.Force {
		return nil
	}

	existing, err := o.store.LatestSuccess(req.AgentName)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s (session %s)", ErrAgentExists, req.AgentName, existing.ID)
	case errors.Is(err, history.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
}

func (o *Orchestrator) newSession(req *types.CreateRequest) *types.Session {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	language := req.Language
	if language == "" {
		language = o.opts.Language
	}
	model := req.Model
	if model == "" {
		model = o.opts.Model
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = o.opts.MaxAttempts
	}

	return &types.Session{
		ID:             id,
		AgentName:      req.AgentName,
		OriginalPrompt: req.Prompt,
		Language:       language,
		Model:          model,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now(),
	}
}

// finish sets the outcome, persists the session and announces it. cause is
// returned alongside the session; a save failure replaces it.
func (o *Orchestrator) finish(s *types.Session, outcome types.Outcome, logger *slog.Logger, cause error) (*types.Session, error) {
	now := time.Now()
	s.Outcome = outcome
	s.CompletedAt = &now
	if outcome != types.OutcomeSuccess {
		s.FinalCode = ""
	}

	if err := o.store.Save(s); err != nil {
		logger.Error("failed to save session", "error", err)
		return s, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	if outcome == types.OutcomeSuccess {
		o.utilities.Load(true)
	}

	o.events.Publish(&types.SessionEvent{
		Type:      types.EventSessionCompleted,
		SessionID: s.ID,
		AgentName: s.AgentName,
		Succeeded: outcome == types.OutcomeSuccess,
		Outcome:   outcome,
		Message:   s.LastError(),
	})
	logger.Info("session finished", "outcome", outcome, "attempts", len(s.Attempts))
	return s, cause
}

func (o *Orchestrator) publishAttempt(typ types.SessionEventType, s *types.Session, a *types.GenerationAttempt, ok bool, msg string) {
	o.events.Publish(&types.SessionEvent{
		Type:          typ,
		SessionID:     s.ID,
		AgentName:     s.AgentName,
		AttemptNumber: a.AttemptNumber,
		Succeeded:     ok,
		Message:       msg,
	})
}
