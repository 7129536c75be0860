// Package sandbox runs programs on a remote ephemeral sandbox service.
//
// Protocol:
//
//	POST   {url}/contexts           {"language"}            -> {"id"}
//	POST   {url}/contexts/{id}/run  {"code","env"}          -> {"stdout","stderr","exit_code"}
//	DELETE {url}/contexts/{id}
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/era-ai/era/internal/execution"
)

// Executor talks to a sandbox service.
type Executor struct {
	baseURL   string
	token     string
	client    *http.Client
	languages map[string]bool
}

// NewExecutor creates a sandbox executor. client may be nil.
func NewExecutor(baseURL, token string, client *http.Client) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		languages: map[string]bool{
			"javascript": true,
			"typescript": true,
		},
	}
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return "sandbox"
}

// CanExecute reports whether the service runs language.
func (e *Executor) CanExecute(language string) bool {
	return e.languages[language]
}

type createResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Provision creates a remote context.
func (e *Executor) Provision(ctx context.Context, language string) (execution.Context, error) {
	var created createResponse
	if err := e.do(ctx, http.MethodPost, "/contexts", map[string]string{"language": language}, &created); err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("sandbox returned an empty context id")
	}
	return &remoteContext{executor: e, id: created.ID}, nil
}

func (e *Executor) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type remoteContext struct {
	executor *Executor
	id       string
}

func (c *remoteContext) ID() string {
	return c.id
}

func (c *remoteContext) Run(ctx context.Context, req *execution.RunRequest) (*execution.RunOutput, error) {
	var out runResponse
	body := map[string]any{"code": req.Code, "env": req.Env}
	if err := c.executor.do(ctx, http.MethodPost, "/contexts/"+c.id+"/run", body, &out); err != nil {
		return nil, err
	}
	return &execution.RunOutput{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
	}, nil
}

func (c *remoteContext) Teardown(ctx context.Context) error {
	return c.executor.do(ctx, http.MethodDelete, "/contexts/"+c.id, nil, nil)
}
