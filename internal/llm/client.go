// Package llm provides chat clients for model providers and the
// process-wide admission gate placed in front of them.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/era-ai/era/pkg/types"
)

// Client sends one chat request to a model.
type Client interface {
	Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)
}

// HTTPDoer is the subset of *http.Client the HTTP providers need.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-success response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, truncate(e.Body, 512))
}

// Retryable reports whether the provider asked the caller to slow down or
// failed on its side.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// splitSystem folds system-role messages into the system prompt, for
// providers that take it out of band.
func splitSystem(req *types.ChatRequest) (string, []types.Message) {
	system := req.SystemPrompt
	msgs := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		msgs = append(msgs, m)
	}
	return system, msgs
}
