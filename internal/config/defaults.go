package config

// DefaultConfig returns the built-in configuration: both roles on a local
// Ollama model.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"ollama": {
				Type:           "ollama",
				BaseURL:        "http://127.0.0.1:11434",
				TimeoutSeconds: 300,
			},
			"claude": {
				Type:           "claude",
				Command:        "claude",
				TimeoutSeconds: 300,
			},
		},
		Roles: RolesConfig{
			Generator: RoleConfig{
				Provider:     "ollama",
				Model:        "qwen2.5-coder:7b",
				Temperature:  0.2,
				SystemPrompt: "You are a careful code editor. You make exactly the requested change and nothing else.",
			},
			Reviewer: RoleConfig{
				Provider:     "ollama",
				Model:        "qwen2.5-coder:7b",
				SystemPrompt: "You are a strict code reviewer. You answer with PASS or FAIL: <reason> on one line.",
			},
		},
		Swarm: SwarmConfig{
			Workers:    5,
			MaxRetries: 2,
		},
		Reconcile: ReconcileConfig{
			FuzzyThreshold: 0.8,
			FuzzyMargin:    0.05,
			DriftLines:     3,
		},
		Workspace: WorkspaceConfig{
			Root:      ".",
			BackupDir: ".minion-backups",
			HistoryDB: "~/.minions/history.db",
		},
		SyntaxCacheSize: 512,
		Resilience: ResilienceConfig{
			InitialIntervalMs: 500,
			MaxIntervalMs:     10000,
			MaxElapsedSeconds: 60,
			TripThreshold:     5,
		},
	}
}
