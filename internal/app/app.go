// Package app wires the ERA components from a loaded configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/era-ai/era/internal/crypto"
	"github.com/era-ai/era/internal/execution"
	"github.com/era-ai/era/internal/executor"
	"github.com/era-ai/era/internal/generator"
	"github.com/era-ai/era/internal/history"
	"github.com/era-ai/era/internal/llm"
	"github.com/era-ai/era/internal/models"
	"github.com/era-ai/era/internal/orchestrator"
	"github.com/era-ai/era/internal/registry"
	"github.com/era-ai/era/pkg/types"
)

// App holds the wired components.
type App struct {
	Config       *types.Config
	Keys         *crypto.KeyManager
	Payloads     *crypto.PayloadService
	Store        *history.Store
	Registry     *registry.Registry
	Models       *models.Router
	Generator    *generator.Generator
	Executor     *execution.Adapter
	Orchestrator *orchestrator.Orchestrator
}

// New builds every component. Close releases the history store.
func New(config *types.Config, logger *slog.Logger) (*App, error) {
	keys := crypto.NewKeyManager(config.Crypto.IdentityPath)
	if err := keys.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize crypto: %w", err)
	}
	logger.Debug("crypto initialized", "public_key", keys.PublicKeyHint())
	payloads := crypto.NewPayloadService(keys)

	store, err := history.Open(config.History.Path, logger.With("component", "history"))
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	reg := registry.New(registry.DefaultLoaders(), store, logger.With("component", "registry"))

	gate := llm.NewGate(config.LLM.MaxConcurrent)
	router := models.NewRouter(&config.Models, payloads, gate, config.LLM.Timeout)

	includeAgents := config.Generator.IncludeAgents
	gen := generator.New(router, reg, generator.Options{
		Model:         config.Models.Default,
		Language:      config.Orchestrator.Language,
		MaxRetries:    config.Generator.MaxRetries,
		IncludeAgents: &includeAgents,
	}, logger.With("component", "generator"))

	adapter, err := executor.NewAdapter(&config.Executors, payloads, logger.With("component", "execution"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to set up executors: %w", err)
	}

	orch := orchestrator.New(gen, adapter, store, reg, orchestrator.Options{
		MaxAttempts: config.Orchestrator.MaxAttempts,
		Language:    config.Orchestrator.Language,
		Model:       config.Models.Default,
	}, logger.With("component", "orchestrator"))

	return &App{
		Config:       config,
		Keys:         keys,
		Payloads:     payloads,
		Store:        store,
		Registry:     reg,
		Models:       router,
		Generator:    gen,
		Executor:     adapter,
		Orchestrator: orch,
	}, nil
}

// Close waits for background sessions and closes the history store.
func (a *App) Close() error {
	a.Orchestrator.Wait()
	return a.Store.Close()
}
