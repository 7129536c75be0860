// Package executor assembles the configured execution backends behind one
// execution.Adapter.
package executor

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/era-ai/era/internal/crypto"
	"github.com/era-ai/era/internal/execution"
	"github.com/era-ai/era/internal/executor/embedded"
	"github.com/era-ai/era/internal/executor/local"
	"github.com/era-ai/era/internal/executor/sandbox"
	"github.com/era-ai/era/pkg/types"
)

// NewAdapter registers every enabled backend. executors.default is tried
// first; the others serve languages it cannot run. payloads may be nil when
// no secret in the section is stored encrypted.
func NewAdapter(cfg *types.ExecutorsConfig, payloads *crypto.PayloadService, logger *slog.Logger) (*execution.Adapter, error) {
	env, err := ResolveEnv(cfg, payloads)
	if err != nil {
		return nil, err
	}

	adapter := execution.NewAdapter(execution.Options{
		Preferred: cfg.Default,
		Timeout:   cfg.Timeout,
		Env:       env,
	}, logger)

	if cfg.Sandbox.Enabled {
		token, err := secret(cfg.Sandbox.TokenEncrypted, cfg.Sandbox.TokenEnv, payloads)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sandbox token: %w", err)
		}
		adapter.RegisterExecutor(sandbox.NewExecutor(cfg.Sandbox.URL, token, &http.Client{}))
	}
	if cfg.Local.Enabled {
		adapter.RegisterExecutor(local.NewExecutor(&cfg.Local))
	}
	if cfg.Embedded.Enabled {
		adapter.RegisterExecutor(embedded.NewExecutor())
	}

	if len(adapter.Executors()) == 0 {
		return nil, fmt.Errorf("no executors enabled")
	}
	logger.Info("executors registered", "executors", adapter.Executors(), "default", cfg.Default)
	return adapter, nil
}

// ResolveEnv merges executors.env with the decrypted executors.env_encrypted.
// Encrypted values win.
func ResolveEnv(cfg *types.ExecutorsConfig, payloads *crypto.PayloadService) (map[string]string, error) {
	if cfg.EnvEncrypted == "" {
		return execution.MergeEnv(cfg.Env), nil
	}
	if payloads == nil {
		return nil, fmt.Errorf("executors.env_encrypted is set but no identity is loaded")
	}
	secrets, err := payloads.OpenSecrets(cfg.EnvEncrypted)
	if err != nil {
		return nil, err
	}
	return execution.MergeEnv(cfg.Env, secrets.Env), nil
}

func secret(encrypted, envVar string, payloads *crypto.PayloadService) (string, error) {
	if encrypted != "" {
		if payloads == nil {
			return "", fmt.Errorf("no identity loaded")
		}
		return payloads.OpenValue(encrypted)
	}
	if envVar != "" {
		return os.Getenv(envVar), nil
	}
	return "", nil
}
