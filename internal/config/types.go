// Package config loads layered JSON configuration for the minions CLI.
package config

// ProviderConfig defines a transport to a model. Roles pick a provider by
// key, so several roles can share one.
type ProviderConfig struct {
	Type           string   `json:"type"`                      // Backend type matching backend.Config.Type: "ollama", "claude", "command"
	BaseURL        string   `json:"base_url,omitempty"`        // ollama
	Command        string   `json:"command,omitempty"`         // CLI binary for "claude" and "command"
	Args           []string `json:"args,omitempty"`            // "command" only; {prompt}, {model} and {system} are substituted
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"` // Per call
}

// RoleConfig binds one collaborator role to a provider and model.
type RoleConfig struct {
	Provider     string  `json:"provider"`                // Key into Providers map
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// RolesConfig holds the two collaborator roles.
type RolesConfig struct {
	Generator RoleConfig `json:"generator"`
	Reviewer  RoleConfig `json:"reviewer"`
}

// SwarmConfig sizes the worker pool.
type SwarmConfig struct {
	Workers    int `json:"workers"`
	MaxRetries int `json:"max_retries"`
}

// ReconcileConfig tunes the fuzzy and unified-diff strategies.
type ReconcileConfig struct {
	FuzzyThreshold float64 `json:"fuzzy_threshold"`
	FuzzyMargin    float64 `json:"fuzzy_margin"`
	DriftLines     int     `json:"drift_lines"`
}

// WorkspaceConfig locates the edited tree and its side files.
type WorkspaceConfig struct {
	Root      string `json:"root"`
	BackupDir string `json:"backup_dir"` // Relative to Root; empty disables backups
	HistoryDB string `json:"history_db"` // Empty disables the run ledger; "~/" is expanded
}

// ResilienceConfig tunes retries and circuit breaking inside one model call.
type ResilienceConfig struct {
	InitialIntervalMs int `json:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms"`
	MaxElapsedSeconds int `json:"max_elapsed_seconds"`
	TripThreshold     int `json:"trip_threshold"` // Consecutive failures that open a breaker
}

// Config is the top-level configuration.
type Config struct {
	Providers       map[string]ProviderConfig `json:"providers"`
	Roles           RolesConfig               `json:"roles"`
	Swarm           SwarmConfig               `json:"swarm"`
	Reconcile       ReconcileConfig           `json:"reconcile"`
	Workspace       WorkspaceConfig           `json:"workspace"`
	SyntaxCacheSize int                       `json:"syntax_cache_size"`
	Resilience      ResilienceConfig          `json:"resilience"`
}
