package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/era-ai/era/pkg/types"
)

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini client for the Gemini API backend. baseURL
// and httpClient may be empty to use the SDK defaults.
func NewGemini(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Chat sends req through GenerateContent.
func (g *Gemini) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	system, msgs := splitSystem(req)

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}

	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, translateGeminiError(err)
	}

	resp := &types.ChatResponse{
		Choices: []types.Choice{{Message: types.Message{Role: types.RoleAssistant, Content: result.Text()}}},
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = &types.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

// translateGeminiError maps SDK API errors onto APIError so callers see the
// same failure type from every provider.
func translateGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "gemini", StatusCode: apiErr.Code, Body: geminiBody(apiErr)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{Provider: "gemini", StatusCode: apiErrPtr.Code, Body: geminiBody(*apiErrPtr)}
	}
	return fmt.Errorf("failed to call gemini: %w", err)
}

func geminiBody(e genai.APIError) string {
	if e.Status == "" {
		return e.Message
	}
	return e.Status + ": " + e.Message
}
