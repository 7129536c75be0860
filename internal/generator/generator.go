// Package generator turns a natural-language prompt into program source by
// asking a model and extracting the delimited code block from its reply.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/era-ai/era/internal/extract"
	"github.com/era-ai/era/internal/llm"
	"github.com/era-ai/era/pkg/types"
)

// DefaultMaxRetries bounds model calls per Generate when options leave it unset.
const DefaultMaxRetries = 3

// correction is appended to the prompt after a reply without a usable block.
const correction = "\n\nYour previous reply did not contain a usable program. " +
	"Reply again with the complete program inside a single <code></code> block and nothing else inside the tags."

// Documentation supplies the utility reference placed in the system prompt.
type Documentation interface {
	DocumentationBundle(includeAgents bool) string
}

// Options tune one Generate call. Zero fields fall back to the generator's
// defaults.
type Options struct {
	Model         string
	Language      string
	MaxRetries    int
	IncludeAgents *bool
}

// Result is a successful extraction.
type Result struct {
	Code         string
	RawResponse  string
	AttemptsUsed int
	// Prompt is the user prompt as last sent, corrective clauses included.
	Prompt string
}

// ExtractionError reports that no usable code block came back within the
// retry budget.
type ExtractionError struct {
	Attempts     int
	LastResponse string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no code block found after %d attempts", e.Attempts)
}

// Generator drives the draft-extract-retry protocol against one client.
type Generator struct {
	client   llm.Client
	docs     Documentation
	defaults Options
	logger   *slog.Logger
}

// New creates a Generator. docs may be nil.
func New(client llm.Client, docs Documentation, defaults Options, logger *slog.Logger) *Generator {
	if defaults.MaxRetries <= 0 {
		defaults.MaxRetries = DefaultMaxRetries
	}
	if defaults.Language == "" {
		defaults.Language = "javascript"
	}
	if defaults.IncludeAgents == nil {
		include := true
		defaults.IncludeAgents = &include
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:   client,
		docs:     docs,
		defaults: defaults,
		logger:   logger,
	}
}

func (g *Generator) resolve(opts Options) Options {
	if opts.Model == "" {
		opts.Model = g.defaults.Model
	}
	if opts.Language == "" {
		opts.Language = g.defaults.Language
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = g.defaults.MaxRetries
	}
	if opts.IncludeAgents == nil {
		opts.IncludeAgents = g.defaults.IncludeAgents
	}
	return opts
}

// Generate sends prompt until the reply carries a non-empty code block or
// MaxRetries calls have been made. Model transport failures end the call
// immediately; only missing code blocks are retried. The returned error is
// an *ExtractionError when the budget ran out.
func (g *Generator) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	opts = g.resolve(opts)
	system := g.SystemPrompt(opts.Language, *opts.IncludeAgents)

	current := prompt
	var last string
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		resp, err := g.client.Chat(ctx, &types.ChatRequest{
			Model:        opts.Model,
			SystemPrompt: system,
			Messages:     []types.Message{{Role: types.RoleUser, Content: current}},
			Component:    "generator",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to call model: %w", err)
		}

		last = resp.Text()
		code, ok := extract.Code(last)
		if ok && strings.TrimSpace(code) != "" {
			g.logger.Debug("code extracted", "attempt", attempt, "bytes", len(code))
			return &Result{
				Code:         code,
				RawResponse:  last,
				AttemptsUsed: attempt,
				Prompt:       current,
			}, nil
		}

		g.logger.Info("reply had no code block", "attempt", attempt, "max_retries", opts.MaxRetries)
		current += correction
	}

	return nil, &ExtractionError{Attempts: opts.MaxRetries, LastResponse: last}
}

// SystemPrompt returns the fixed instructions followed by the utility
// documentation bundle.
func (g *Generator) SystemPrompt(language string, includeAgents bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, instructions, language)
	if g.docs != nil {
		if bundle := g.docs.DocumentationBundle(includeAgents); bundle != "" {
			b.WriteString("\n\n## Available utilities\n\n")
			b.WriteString("These functions are defined for you at run time. Call them directly; do not redefine or import them.\n\n")
			b.WriteString(bundle)
		}
	}
	return b.String()
}

const instructions = `You write small, self-contained %s programs that accomplish the user's task.

Rules:
- Reply with the whole program inside one <code></code> block. Text outside the block is ignored.
- The program runs once, non-interactively, and must print its result to stdout.
- Document every function you declare with a comment directly above it.
- Exit with a non-zero status or throw on failure; never print a success message when the task failed.
- Use only the utilities listed below and the standard runtime. Other npm packages are not installed.`

// IsExtractionError reports whether err is, or wraps, an *ExtractionError.
func IsExtractionError(err error) bool {
	var extErr *ExtractionError
	return errors.As(err, &extErr)
}
