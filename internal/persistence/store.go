// Package persistence keeps a SQLite ledger of runs, task results and
// attempt diagnostics.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/pipeline"
)

// Store defines the run ledger.
type Store interface {
	// Run lifecycle, driven by the scheduler
	BeginRun(ctx context.Context, runID string, total int, started time.Time) error
	RecordResult(ctx context.Context, runID string, res edit.TaskResult) error
	FinishRun(ctx context.Context, runID string, stats edit.RunStats) error

	// Attempt diagnostics, driven by the task pipeline
	SaveAttempt(ctx context.Context, runID string, rec pipeline.AttemptRecord) error

	// History
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	GetRun(ctx context.Context, runID string) (RunSummary, error)
	RunResults(ctx context.Context, runID string) ([]edit.TaskResult, error)
	TaskAttempts(ctx context.Context, runID, taskID string) ([]pipeline.AttemptRecord, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite only honours _pragma parameters in the DSN.
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing. Each call
// gets its own database, shared by that store's connections.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:minions-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises concurrent writes from workers and keeps
	// the foreign_keys pragma in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
