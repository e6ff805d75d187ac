// Package scheduler fans independent edit tasks out over a bounded pool of
// workers and aggregates their results.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/events"
)

const defaultWorkers = 5

// Request is one task as submitted by the caller.
type Request struct {
	Path        string // Relative to the workspace root
	Instruction string
	MaxRetries  int
}

// Report is the aggregate outcome of a run. Results keep submission order.
type Report struct {
	RunID     string
	Succeeded []edit.TaskResult
	Failed    []edit.TaskResult
	Stats     edit.RunStats
}

// TaskRunner drives one task to a terminal state.
type TaskRunner interface {
	Run(ctx context.Context, task *edit.Task) edit.TaskResult
}

// Reader loads the content of a target at dispatch time.
type Reader interface {
	Read(path string) (string, error)
}

// Ledger persists runs and task results. Failures are logged, never fatal.
type Ledger interface {
	BeginRun(ctx context.Context, runID string, total int, started time.Time) error
	RecordResult(ctx context.Context, runID string, res edit.TaskResult) error
	FinishRun(ctx context.Context, runID string, stats edit.RunStats) error
}

// Config configures a Scheduler.
type Config struct {
	Workers int              // Max concurrent tasks (default 5)
	Runner  TaskRunner       // Required
	Reader  Reader           // Required
	Ledger  Ledger           // Optional
	Events  events.Publisher // Optional
	Logger  *slog.Logger     // Optional
}

// Scheduler runs batches of tasks.
type Scheduler struct {
	cfg Config
}

// New creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("scheduler: reader is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{cfg: cfg}, nil
}

// progress tracks live counters for RunProgressEvent.
type progress struct {
	mu        sync.Mutex
	total     int
	running   int
	succeeded int
	failed    int
	retries   int
}

// Run executes every request and returns once all of them are terminal.
// At most Workers tasks are in flight, so at most Workers file bodies are
// held at once. Cancelling ctx makes remaining tasks fail with
// "run cancelled" at their next attempt boundary; Run still returns a
// complete report. An empty runID is replaced by a fresh one.
func (s *Scheduler) Run(ctx context.Context, runID string, reqs []Request) Report {
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()
	log := s.cfg.Logger.With("run_id", runID)

	if s.cfg.Ledger != nil {
		if err := s.cfg.Ledger.BeginRun(ctx, runID, len(reqs), start); err != nil {
			log.Warn("ledger: begin run failed", "error", err)
		}
	}

	prog := &progress{total: len(reqs)}
	s.publishProgress(runID, prog, false)

	tasks := make([]*edit.Task, len(reqs))
	for i, req := range reqs {
		tasks[i] = &edit.Task{
			ID:          fmt.Sprintf("%s-%d", runID[:min(8, len(runID))], i+1),
			TargetPath:  req.Path,
			Instruction: req.Instruction,
			MaxRetries:  max(req.MaxRetries, 0),
		}
		s.cfg.Events.Publish(events.TaskQueuedEvent{
			ID:          tasks[i].ID,
			Path:        req.Path,
			Instruction: req.Instruction,
			Timestamp:   time.Now(),
		})
	}

	results := make([]edit.TaskResult, len(reqs))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)

	for i, task := range tasks {
		g.Go(func() error {
			prog.mu.Lock()
			prog.running++
			prog.mu.Unlock()
			s.publishProgress(runID, prog, false)

			res := s.dispatch(ctx, task, log)
			results[i] = res

			prog.mu.Lock()
			prog.running--
			if res.Succeeded() {
				prog.succeeded++
			} else {
				prog.failed++
			}
			if res.AttemptsUsed > 1 {
				prog.retries += res.AttemptsUsed - 1
			}
			prog.mu.Unlock()
			s.publishProgress(runID, prog, false)

			if s.cfg.Ledger != nil {
				// The ledger outlives a cancelled run.
				if err := s.cfg.Ledger.RecordResult(context.WithoutCancel(ctx), runID, res); err != nil {
					log.Warn("ledger: record result failed", "task_id", res.TaskID, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{RunID: runID}
	for _, res := range results {
		report.Stats.Total++
		report.Stats.AttemptsTotal += res.AttemptsUsed
		if res.AttemptsUsed > 1 {
			report.Stats.Retries += res.AttemptsUsed - 1
		}
		if res.Succeeded() {
			report.Stats.Completed++
			report.Succeeded = append(report.Succeeded, res)
		} else {
			report.Stats.Failed++
			report.Failed = append(report.Failed, res)
		}
	}
	report.Stats.Elapsed = time.Since(start)

	if s.cfg.Ledger != nil {
		if err := s.cfg.Ledger.FinishRun(context.WithoutCancel(ctx), runID, report.Stats); err != nil {
			log.Warn("ledger: finish run failed", "error", err)
		}
	}
	s.publishProgress(runID, prog, true)

	log.Info("run finished",
		"total", report.Stats.Total,
		"completed", report.Stats.Completed,
		"failed", report.Stats.Failed,
		"retries", report.Stats.Retries,
		"elapsed", report.Stats.Elapsed)
	return report
}

// dispatch loads the original content and hands the task to the runner.
// The content is dropped when the task finishes.
func (s *Scheduler) dispatch(ctx context.Context, task *edit.Task, log *slog.Logger) edit.TaskResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return s.failEarly(task, edit.FailureCancelled, "run cancelled", start)
	}

	original, err := s.cfg.Reader.Read(task.TargetPath)
	if err != nil {
		log.Error("cannot read target", "task_id", task.ID, "path", task.TargetPath, "error", err)
		return s.failEarly(task, edit.FailureCommit, "reading target: "+err.Error(), start)
	}
	task.Original = original

	res := s.cfg.Runner.Run(ctx, task)
	task.Original = ""
	return res
}

// failEarly ends a task that never reached the runner and reports it the
// way the runner reports a terminal failure.
func (s *Scheduler) failEarly(task *edit.Task, kind edit.FailureKind, reason string, start time.Time) edit.TaskResult {
	res := edit.TaskResult{
		TaskID:      task.ID,
		TargetPath:  task.TargetPath,
		Status:      edit.StatusFailedTerminal,
		FinalKind:   kind,
		FinalReason: reason,
		Duration:    time.Since(start),
	}
	s.cfg.Events.Publish(events.TaskFailedEvent{
		ID:           task.ID,
		Path:         task.TargetPath,
		Kind:         kind,
		Reason:       reason,
		AttemptsUsed: res.AttemptsUsed,
		Duration:     res.Duration,
		Timestamp:    time.Now(),
	})
	return res
}

func (s *Scheduler) publishProgress(runID string, p *progress, done bool) {
	p.mu.Lock()
	ev := events.RunProgressEvent{
		RunID:     runID,
		Total:     p.total,
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Running:   p.running,
		Pending:   p.total - p.succeeded - p.failed - p.running,
		Retries:   p.retries,
		Done:      done,
		Timestamp: time.Now(),
	}
	p.mu.Unlock()
	s.cfg.Events.Publish(ev)
}
