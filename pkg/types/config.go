package types

import "time"

// Config represents the main configuration for ERA.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	History      HistoryConfig      `yaml:"history"`
	Crypto       CryptoConfig       `yaml:"crypto"`
	Models       ModelsConfig       `yaml:"models"`
	LLM          LLMConfig          `yaml:"llm"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Executors    ExecutorsConfig    `yaml:"executors"`
	MCP          MCPConfig          `yaml:"mcp"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// HistoryConfig defines where sessions are persisted.
type HistoryConfig struct {
	Path string `yaml:"path" validate:"required"` // sqlite database file
}

// CryptoConfig defines encryption settings.
type CryptoConfig struct {
	IdentityPath string `yaml:"identity_path" validate:"required"` // Path to age identity file
}

// ModelsConfig defines model routing settings.
type ModelsConfig struct {
	Default   string                    `yaml:"default" validate:"required"`
	Providers map[string]ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig defines settings for an AI provider.
type ProviderConfig struct {
	APIKeyEncrypted string `yaml:"api_key_encrypted,omitempty"` // age-encrypted API key
	APIKeyEnv       string `yaml:"api_key_env,omitempty"`       // fallback environment variable
	BaseURL         string `yaml:"base_url,omitempty" validate:"omitempty,url"`
}

// LLMConfig bounds outbound model traffic.
type LLMConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" validate:"min=1"`
	Timeout       time.Duration `yaml:"timeout"`
}

// GeneratorConfig controls the extraction retry protocol.
type GeneratorConfig struct {
	MaxRetries    int  `yaml:"max_retries" validate:"min=1"`
	IncludeAgents bool `yaml:"include_agents"`
}

// OrchestratorConfig controls the outer generate-execute loop.
type OrchestratorConfig struct {
	MaxAttempts int    `yaml:"max_attempts" validate:"min=1"`
	Language    string `yaml:"language" validate:"oneof=javascript typescript"`
}

// ExecutorsConfig defines execution backend settings.
type ExecutorsConfig struct {
	Default      string                 `yaml:"default" validate:"oneof=sandbox local embedded"`
	Timeout      time.Duration          `yaml:"timeout"`
	Env          map[string]string      `yaml:"env,omitempty"`
	EnvEncrypted string                 `yaml:"env_encrypted,omitempty"` // age payload of ExecutionSecrets
	Sandbox      SandboxExecutorConfig  `yaml:"sandbox"`
	Local        LocalExecutorConfig    `yaml:"local"`
	Embedded     EmbeddedExecutorConfig `yaml:"embedded"`
}

// SandboxExecutorConfig defines the remote ephemeral sandbox service.
type SandboxExecutorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url" validate:"omitempty,url"`
	TokenEncrypted string `yaml:"token_encrypted,omitempty"` // age payload of the bearer token
	TokenEnv       string `yaml:"token_env,omitempty"`
}

// LocalExecutorConfig defines local subprocess executor settings.
type LocalExecutorConfig struct {
	Enabled       bool                `yaml:"enabled"`
	MaxConcurrent int                 `yaml:"max_concurrent" validate:"min=0"`
	WorkDir       string              `yaml:"work_dir"` // parent of per-run temp dirs
	Runtimes      map[string][]string `yaml:"runtimes"` // language -> command
}

// EmbeddedExecutorConfig defines the in-process JavaScript executor.
type EmbeddedExecutorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MCPConfig defines MCP server settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file,omitempty"` // optional JSON log file
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		History: HistoryConfig{
			Path: "./era.db",
		},
		Crypto: CryptoConfig{
			IdentityPath: "./era.key",
		},
		Models: ModelsConfig{
			Default: "gpt-4o-mini",
			Providers: map[string]ProviderConfig{
				"openai":    {APIKeyEnv: "OPENAI_API_KEY"},
				"anthropic": {APIKeyEnv: "ANTHROPIC_API_KEY"},
				"gemini":    {APIKeyEnv: "GEMINI_API_KEY"},
			},
		},
		LLM: LLMConfig{
			MaxConcurrent: 10,
			Timeout:       120 * time.Second,
		},
		Generator: GeneratorConfig{
			MaxRetries:    3,
			IncludeAgents: true,
		},
		Orchestrator: OrchestratorConfig{
			MaxAttempts: 3,
			Language:    "javascript",
		},
		Executors: ExecutorsConfig{
			Default: "local",
			Timeout: 60 * time.Second,
			Sandbox: SandboxExecutorConfig{
				Enabled:  false,
				TokenEnv: "ERA_SANDBOX_TOKEN",
			},
			Local: LocalExecutorConfig{
				Enabled:       true,
				MaxConcurrent: 4,
				Runtimes: map[string][]string{
					"javascript": {"node"},
					"typescript": {"npx", "--yes", "tsx"},
				},
			},
			Embedded: EmbeddedExecutorConfig{
				Enabled: true,
			},
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
