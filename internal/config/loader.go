package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON or an invalid result returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectPath is the project config, relative to the working directory.
var ProjectPath = filepath.Join(".taskflow", "config.json")

// GlobalPath returns ~/.taskflow/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".taskflow", "config.json"), nil
}

// LoadDefault loads the global then the project config over the defaults.
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Provider and agent entries are merged with mergo. Scheduler settings are
// decoded straight onto the base, so every key present in the file wins,
// including explicit zeros such as "default_retry_budget": 0.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil // Missing file is not an error
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	scheduler := base.Scheduler
	if err := mergo.Merge(base, loaded, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}

	var raw struct {
		Scheduler json.RawMessage `json:"scheduler"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(raw.Scheduler) > 0 && string(raw.Scheduler) != "null" {
		if err := json.Unmarshal(raw.Scheduler, &scheduler); err != nil {
			return fmt.Errorf("parsing %s: scheduler: %w", path, err)
		}
	}
	base.Scheduler = scheduler
	return nil
}

// Validate checks field constraints and that every agent names a known provider.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for id, a := range cfg.Agents {
		if _, ok := cfg.Providers[a.Provider]; !ok {
			return fmt.Errorf("invalid config: agent %q uses unknown provider %q", id, a.Provider)
		}
	}
	return nil
}
