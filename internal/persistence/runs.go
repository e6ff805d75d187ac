package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/minions/internal/edit"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of run history.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while the run is in progress or was interrupted
	Stats      edit.RunStats
}

// Finished reports whether FinishRun was recorded for the run.
func (r RunSummary) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// BeginRun records the start of a run.
func (s *SQLiteStore) BeginRun(ctx context.Context, runID string, total int, started time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, total)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			total = excluded.total
	`, runID, started.UTC(), total)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", runID, err)
	}
	return nil
}

// RecordResult stores the terminal result of one task. Saving the same
// task twice overwrites the earlier row.
func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, res edit.TaskResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_results (run_id, task_id, path, status, attempts_used, final_kind, final_reason, strategy, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id) DO UPDATE SET
			path = excluded.path,
			status = excluded.status,
			attempts_used = excluded.attempts_used,
			final_kind = excluded.final_kind,
			final_reason = excluded.final_reason,
			strategy = excluded.strategy,
			duration_ms = excluded.duration_ms,
			recorded_at = CURRENT_TIMESTAMP
	`, runID, res.TaskID, res.TargetPath, int(res.Status), res.AttemptsUsed, int(res.FinalKind), res.FinalReason, int(res.Strategy), res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record result for %s: %w", res.TaskID, err)
	}
	return nil
}

// FinishRun stores the aggregate statistics of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, stats edit.RunStats) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			total = ?,
			completed = ?,
			failed = ?,
			retries = ?,
			attempts = ?,
			elapsed_ms = ?
		WHERE id = ?
	`, time.Now().UTC(), stats.Total, stats.Completed, stats.Failed, stats.Retries, stats.AttemptsTotal, stats.Elapsed.Milliseconds(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit returns all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total, completed, failed, retries, attempts, elapsed_ms
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, total, completed, failed, retries, attempts, elapsed_ms
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// RunResults returns the task results of a run ordered by task ID.
func (s *SQLiteStore) RunResults(ctx context.Context, runID string) ([]edit.TaskResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, path, status, attempts_used, final_kind, final_reason, strategy, duration_ms
		FROM task_results
		WHERE run_id = ?
		ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []edit.TaskResult
	for rows.Next() {
		var (
			res                    edit.TaskResult
			status, kind, strategy int
			reason                 sql.NullString
			durationMs             int64
		)
		if err := rows.Scan(&res.TaskID, &res.TargetPath, &status, &res.AttemptsUsed, &kind, &reason, &strategy, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Status = edit.Status(status)
		res.FinalKind = edit.FailureKind(kind)
		res.FinalReason = reason.String
		res.Strategy = edit.Strategy(strategy)
		res.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// PruneRuns deletes all but the keep most recent runs together with their
// results and attempts. It returns the number of runs removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunSummary, error) {
	var (
		run       RunSummary
		finished  sql.NullTime
		elapsedMs int64
	)
	err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Stats.Total, &run.Stats.Completed,
		&run.Stats.Failed, &run.Stats.Retries, &run.Stats.AttemptsTotal, &elapsedMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, err
		}
		return RunSummary{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.Stats.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	return run, nil
}
