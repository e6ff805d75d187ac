package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment, project config,
// global config, defaults. Missing files are not errors; malformed JSON and
// invalid values return an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GlobalPath returns ~/.minions/config.json.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".minions", "config.json"), nil
}

// ProjectPath is the project config location relative to the working directory.
const ProjectPath = ".minions/config.json"

// LoadDefault loads configuration from conventional paths.
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Keys present in the file override; absent keys keep their value.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// encoding/json keeps fields absent from the file and replaces map
	// entries whole, so a provider key overrides the default of that key.
	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if base.Providers == nil {
		base.Providers = make(map[string]ProviderConfig)
	}

	return nil
}

// applyEnv overrides selected values from the environment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("MINIONS_MODEL"); ok && v != "" {
		cfg.Roles.Generator.Model = v
	}
	if v, ok := lookup("MINIONS_REVIEWER"); ok && v != "" {
		cfg.Roles.Reviewer.Model = v
	}
	if v, ok := lookup("MINIONS_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MINIONS_WORKERS: %w", err)
		}
		cfg.Swarm.Workers = n
	}
	if v, ok := lookup("MINIONS_MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MINIONS_MAX_RETRIES: %w", err)
		}
		cfg.Swarm.MaxRetries = n
	}
	if v, ok := lookup("OLLAMA_BASE_URL"); ok && v != "" {
		for key, p := range cfg.Providers {
			if p.Type == "ollama" {
				p.BaseURL = v
				cfg.Providers[key] = p
			}
		}
	}
	return nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.Swarm.Workers < 1 {
		return fmt.Errorf("swarm.workers must be at least 1, got %d", c.Swarm.Workers)
	}
	if c.Swarm.MaxRetries < 0 {
		return fmt.Errorf("swarm.max_retries must not be negative, got %d", c.Swarm.MaxRetries)
	}
	if c.Reconcile.FuzzyThreshold <= 0 || c.Reconcile.FuzzyThreshold > 1 {
		return fmt.Errorf("reconcile.fuzzy_threshold must be in (0, 1], got %v", c.Reconcile.FuzzyThreshold)
	}
	if c.Reconcile.FuzzyMargin < 0 {
		return fmt.Errorf("reconcile.fuzzy_margin must not be negative, got %v", c.Reconcile.FuzzyMargin)
	}
	if c.Reconcile.DriftLines < 0 {
		return fmt.Errorf("reconcile.drift_lines must not be negative, got %d", c.Reconcile.DriftLines)
	}
	for name, role := range map[string]RoleConfig{"generator": c.Roles.Generator, "reviewer": c.Roles.Reviewer} {
		p, ok := c.Providers[role.Provider]
		if !ok {
			return fmt.Errorf("roles.%s: unknown provider %q", name, role.Provider)
		}
		switch p.Type {
		case "ollama", "claude", "command":
		default:
			return fmt.Errorf("providers.%s: unknown type %q", role.Provider, p.Type)
		}
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
