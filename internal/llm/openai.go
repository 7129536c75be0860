package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/era-ai/era/pkg/types"
)

// DefaultOpenAIBaseURL is used when no base URL is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
}

// NewOpenAI creates an OpenAI-compatible client. client may be nil.
func NewOpenAI(apiKey, baseURL string, client HTTPDoer) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message types.Message `json:"message"`
	} `json:"choices"`
	Usage *types.Usage `json:"usage"`
}

// Chat sends req to the chat completions endpoint.
func (c *OpenAI) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	msgs := make([]types.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, req.Messages...)

	body, err := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call openai: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(data)}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := &types.ChatResponse{Usage: parsed.Usage}
	for _, ch := range parsed.Choices {
		out.Choices = append(out.Choices, types.Choice{Message: ch.Message})
	}
	return out, nil
}
