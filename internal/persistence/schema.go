package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist. No table
// stores file content: only paths, states and failure reasons.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS task_results (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		attempts_used INTEGER NOT NULL,
		final_kind INTEGER NOT NULL,
		final_reason TEXT,
		strategy INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		path TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		state INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		reason TEXT,
		strategy INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_run_task ON attempts(run_id, task_id, attempt);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
