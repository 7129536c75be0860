// Package config loads and validates the ERA configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/era-ai/era/pkg/types"
)

// Candidates are the paths tried, in order, when no config path is given.
var Candidates = []string{
	"era.yaml",
	"era.yml",
	filepath.Join(".era", "config.yaml"),
}

var validate = validator.New()

// Load reads the config at path, or the first existing candidate when path
// is empty. Values missing from the file keep their defaults. With no file
// at all the defaults are returned. The second return value is the path
// that was read, or "" for defaults.
func Load(path string) (*types.Config, string, error) {
	if path == "" {
		for _, c := range Candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	config := types.DefaultConfig()
	if path == "" {
		return config, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, "", fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := Validate(config); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, path, nil
}

// Validate checks field constraints and the rules that span fields.
func Validate(config *types.Config) error {
	if err := validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	ex := config.Executors
	if ex.Sandbox.Enabled && ex.Sandbox.URL == "" {
		return errors.New("executors.sandbox.url is required when the sandbox executor is enabled")
	}
	if !ex.Sandbox.Enabled && !ex.Local.Enabled && !ex.Embedded.Enabled {
		return errors.New("at least one executor must be enabled")
	}
	enabled := map[string]bool{
		"sandbox":  ex.Sandbox.Enabled,
		"local":    ex.Local.Enabled,
		"embedded": ex.Embedded.Enabled,
	}
	if !enabled[ex.Default] {
		return fmt.Errorf("default executor %q is not enabled", ex.Default)
	}
	if ex.Local.Enabled {
		for lang, cmd := range ex.Local.Runtimes {
			if len(cmd) == 0 {
				return fmt.Errorf("executors.local.runtimes.%s is empty", lang)
			}
		}
	}
	return nil
}

// Write stores config as YAML at path, creating parent directories.
func Write(path string, config *types.Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
