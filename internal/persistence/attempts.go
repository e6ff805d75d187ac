package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/pipeline"
)

// SaveAttempt stores the diagnostics of one finished attempt.
func (s *SQLiteStore) SaveAttempt(ctx context.Context, runID string, rec pipeline.AttemptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, task_id, path, attempt, state, kind, reason, strategy, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, rec.TaskID, rec.Path, rec.Attempt, int(rec.State), int(rec.Kind), rec.Reason, int(rec.Strategy), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save attempt %d of %s: %w", rec.Attempt, rec.TaskID, err)
	}
	return nil
}

// TaskAttempts returns the attempts of one task in order.
func (s *SQLiteStore) TaskAttempts(ctx context.Context, runID, taskID string) ([]pipeline.AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, path, attempt, state, kind, reason, strategy, duration_ms
		FROM attempts
		WHERE run_id = ? AND task_id = ?
		ORDER BY attempt, id
	`, runID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var records []pipeline.AttemptRecord
	for rows.Next() {
		var (
			rec                   pipeline.AttemptRecord
			state, kind, strategy int
			reason                sql.NullString
			durationMs            int64
		)
		if err := rows.Scan(&rec.TaskID, &rec.Path, &rec.Attempt, &state, &kind, &reason, &strategy, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		rec.State = pipeline.State(state)
		rec.Kind = edit.FailureKind(kind)
		rec.Reason = reason.String
		rec.Strategy = edit.Strategy(strategy)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return records, nil
}

// AttemptRecorder adapts a Store to pipeline.AttemptRecorder for one run.
// Write failures are logged and never reach the pipeline.
type AttemptRecorder struct {
	store  Store
	runID  string
	logger *slog.Logger
}

// NewAttemptRecorder creates a recorder bound to runID.
func NewAttemptRecorder(store Store, runID string, logger *slog.Logger) *AttemptRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptRecorder{store: store, runID: runID, logger: logger}
}

// RecordAttempt implements pipeline.AttemptRecorder.
func (r *AttemptRecorder) RecordAttempt(rec pipeline.AttemptRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SaveAttempt(ctx, r.runID, rec); err != nil {
		r.logger.Warn("attempt not recorded", "task_id", rec.TaskID, "attempt", rec.Attempt, "error", err)
	}
}
