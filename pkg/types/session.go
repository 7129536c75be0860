package types

import (
	"time"
)

// Outcome is the terminal state of an agent creation session.
type Outcome string

const (
	OutcomePending          Outcome = ""
	OutcomeSuccess          Outcome = "success"
	OutcomeExhaustedRetries Outcome = "exhausted_retries"
	OutcomeFatalError       Outcome = "fatal_error"
)

// ExecutionResult is the outcome of running code in a sandbox.
type ExecutionResult struct {
	Succeeded    bool   `json:"succeeded"`
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ExitCode     *int   `json:"exit_code,omitempty"`
}

// GenerationAttempt is one round trip through the generator and executor.
// Attempts are appended to their session and never modified afterwards.
type GenerationAttempt struct {
	AttemptNumber       int              `json:"attempt_number"`
	PromptSent          string           `json:"prompt_sent"`
	RawResponse         string           `json:"raw_response"`
	ExtractionSucceeded bool             `json:"extraction_succeeded"`
	ExtractedCode       string           `json:"extracted_code,omitempty"`
	Utilities           []string         `json:"utilities,omitempty"`
	GenerationError     string           `json:"generation_error,omitempty"`
	ExecutionResult     *ExecutionResult `json:"execution_result,omitempty"`
	StartedAt           time.Time        `json:"started_at"`
	CompletedAt         time.Time        `json:"completed_at"`
}

// Session is the unit of work for creating one agent from one prompt.
type Session struct {
	ID             string              `json:"id"`
	AgentName      string              `json:"agent_name"`
	OriginalPrompt string              `json:"original_prompt"`
	Language       string              `json:"language"`
	Model          string              `json:"model,omitempty"`
	Attempts       []GenerationAttempt `json:"attempts"`
	FinalCode      string              `json:"final_code,omitempty"`
	MaxAttempts    int                 `json:"max_attempts"`
	Outcome        Outcome             `json:"outcome"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// Done reports whether the session reached a terminal outcome.
func (s *Session) Done() bool {
	return s.Outcome != OutcomePending
}

// LastError returns the most recent failure message recorded on the session.
func (s *Session) LastError() string {
	for i := len(s.Attempts) - 1; i >= 0; i-- {
		a := s.Attempts[i]
		if a.ExecutionResult != nil && a.ExecutionResult.ErrorMessage != "" {
			return a.ExecutionResult.ErrorMessage
		}
		if a.GenerationError != "" {
			return a.GenerationError
		}
	}
	return ""
}

// AnySucceeded reports whether any attempt's execution was judged successful.
func (s *Session) AnySucceeded() bool {
	for _, a := range s.Attempts {
		if a.ExecutionResult != nil && a.ExecutionResult.Succeeded {
			return true
		}
	}
	return false
}

// CreateRequest asks the orchestrator to create one agent.
type CreateRequest struct {
	ID          string            `json:"-"`
	AgentName   string            `json:"name" binding:"required"`
	Prompt      string            `json:"prompt" binding:"required"`
	Language    string            `json:"language,omitempty"`
	Model       string            `json:"model,omitempty"`
	MaxAttempts int               `json:"max_attempts,omitempty"`
	Utilities   []string          `json:"utilities,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Force       bool              `json:"force,omitempty"`
}

// SessionFilter defines criteria for listing sessions.
type SessionFilter struct {
	AgentName string    `json:"agent_name,omitempty"`
	Outcome   []Outcome `json:"outcome,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// Preview is the result of a dry run: generated and injected code that was
// neither executed nor stored.
type Preview struct {
	AgentName    string   `json:"agent_name"`
	Prompt       string   `json:"prompt"`
	Code         string   `json:"code"`
	Utilities    []string `json:"utilities"`
	Program      string   `json:"program"`
	RawResponse  string   `json:"raw_response"`
	AttemptsUsed int      `json:"attempts_used"`
}
