// Package models routes model names to provider clients.
package models

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/era-ai/era/internal/crypto"
	"github.com/era-ai/era/internal/llm"
	"github.com/era-ai/era/pkg/types"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Factory builds a raw client for one provider.
type Factory func(ctx context.Context, apiKey string, cfg types.ProviderConfig) (llm.Client, error)

// Router resolves a model name to a gated provider client.
type Router struct {
	config   *types.ModelsConfig
	payloads *crypto.PayloadService
	gate     *llm.Gate
	timeout  time.Duration

	apiKeysMu sync.RWMutex
	apiKeys   map[string]string

	clientsMu sync.Mutex
	clients   map[string]llm.Client
	factories map[string]Factory

	modelProviders map[string]string
}

// NewRouter creates a Router. Every client it hands out shares gate.
// payloads may be nil when no provider key is stored encrypted.
func NewRouter(config *types.ModelsConfig, payloads *crypto.PayloadService, gate *llm.Gate, timeout time.Duration) *Router {
	if gate == nil {
		gate = llm.NewGate(llm.DefaultMaxConcurrent)
	}
	r := &Router{
		config:         config,
		payloads:       payloads,
		gate:           gate,
		timeout:        timeout,
		apiKeys:        make(map[string]string),
		clients:        make(map[string]llm.Client),
		factories:      make(map[string]Factory),
		modelProviders: make(map[string]string),
	}

	r.factories[ProviderOpenAI] = func(_ context.Context, key string, cfg types.ProviderConfig) (llm.Client, error) {
		return llm.NewOpenAI(key, cfg.BaseURL, nil), nil
	}
	r.factories[ProviderAnthropic] = func(_ context.Context, key string, cfg types.ProviderConfig) (llm.Client, error) {
		return llm.NewAnthropic(key, cfg.BaseURL, nil), nil
	}
	r.factories[ProviderGemini] = func(ctx context.Context, key string, cfg types.ProviderConfig) (llm.Client, error) {
		return llm.NewGemini(ctx, key, cfg.BaseURL, nil)
	}

	r.initModelProviders()
	return r
}

func (r *Router) initModelProviders() {
	for _, model := range []string{
		"claude-sonnet-4-20250514",
		"claude-3-5-sonnet-latest",
		"claude-3-5-haiku-latest",
	} {
		r.modelProviders[model] = ProviderAnthropic
	}
	for _, model := range []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"o3-mini",
	} {
		r.modelProviders[model] = ProviderOpenAI
	}
	for _, model := range []string{
		"gemini-2.0-flash",
		"gemini-2.5-flash",
		"gemini-2.5-pro",
	} {
		r.modelProviders[model] = ProviderGemini
	}
}

// RegisterProvider installs or replaces the factory for a provider name.
func (r *Router) RegisterProvider(name string, f Factory) {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()
	r.factories[name] = f
	delete(r.clients, name)
}

// Gate returns the admission gate shared by every client.
func (r *Router) Gate() *llm.Gate {
	return r.gate
}

// DefaultModel returns the configured default model.
func (r *Router) DefaultModel() string {
	if r.config.Default != "" {
		return r.config.Default
	}
	return "gpt-4o-mini"
}

// SelectModel returns requested, or the default when it is empty.
func (r *Router) SelectModel(requested string) string {
	if requested != "" {
		return requested
	}
	return r.DefaultModel()
}

// ProviderFor returns the provider serving model, or "unknown".
// A "provider/model" prefix selects the provider explicitly.
func (r *Router) ProviderFor(model string) string {
	if provider, _, ok := strings.Cut(model, "/"); ok {
		if _, known := r.config.Providers[provider]; known {
			return provider
		}
	}
	if provider, ok := r.modelProviders[model]; ok {
		return provider
	}

	switch {
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "gemini"):
		return ProviderGemini
	}
	return "unknown"
}

// APIKey returns the key for provider, decrypting api_key_encrypted or
// reading api_key_env. Decrypted keys are cached.
func (r *Router) APIKey(provider string) (string, error) {
	r.apiKeysMu.RLock()
	if key, ok := r.apiKeys[provider]; ok {
		r.apiKeysMu.RUnlock()
		return key, nil
	}
	r.apiKeysMu.RUnlock()

	cfg, ok := r.config.Providers[provider]
	if !ok {
		return "", fmt.Errorf("provider not configured: %s", provider)
	}

	var key string
	switch {
	case cfg.APIKeyEncrypted != "":
		if r.payloads == nil {
			return "", fmt.Errorf("payload service not configured")
		}
		decrypted, err := r.payloads.OpenValue(cfg.APIKeyEncrypted)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt API key for %s: %w", provider, err)
		}
		key = decrypted
	case cfg.APIKeyEnv != "":
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return "", fmt.Errorf("no API key configured for provider: %s", provider)
	}

	r.apiKeysMu.Lock()
	r.apiKeys[provider] = key
	r.apiKeysMu.Unlock()
	return key, nil
}

// Client returns the gated client for model along with the model name to
// send upstream.
func (r *Router) Client(ctx context.Context, model string) (llm.Client, string, error) {
	model = r.SelectModel(model)
	provider := r.ProviderFor(model)
	upstream := strings.TrimPrefix(model, provider+"/")

	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	if c, ok := r.clients[provider]; ok {
		return c, upstream, nil
	}

	factory, ok := r.factories[provider]
	if !ok {
		return nil, "", fmt.Errorf("no provider for model %q", model)
	}
	key, err := r.APIKey(provider)
	if err != nil {
		return nil, "", err
	}
	raw, err := factory(ctx, key, r.config.Providers[provider])
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
	}

	c := llm.Gated(llm.WithTimeout(raw, r.timeout), r.gate)
	r.clients[provider] = c
	return c, upstream, nil
}

// Chat resolves req.Model and sends req through the matching client.
func (r *Router) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	c, upstream, err := r.Client(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	out := *req
	out.Model = upstream
	return c.Chat(ctx, &out)
}

// ListProviders returns the configured provider names, sorted.
func (r *Router) ListProviders() []string {
	providers := make([]string, 0, len(r.config.Providers))
	for name := range r.config.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// ClearCache drops cached keys and clients.
func (r *Router) ClearCache() {
	r.apiKeysMu.Lock()
	r.apiKeys = make(map[string]string)
	r.apiKeysMu.Unlock()

	r.clientsMu.Lock()
	r.clients = make(map[string]llm.Client)
	r.clientsMu.Unlock()
}
