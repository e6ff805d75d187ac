// Package pipeline runs the retry-validate state machine for a single task:
// generate a candidate, check its syntax, have it reviewed, reconcile it
// against the file on disk and commit it with one atomic write. Any failure
// feeds its diagnostic into the next attempt until retries run out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/events"
	"github.com/aristath/minions/internal/gate"
	"github.com/aristath/minions/internal/reconcile"
	"github.com/aristath/minions/internal/workspace"
)

// GenerateRequest is everything the generator sees for one attempt.
type GenerateRequest struct {
	TaskID       string
	Path         string
	Original     string
	Instruction  string // Possibly degraded for this attempt
	ErrorContext string // Diagnostic of the previous attempt, empty on the first
	Attempt      int
}

// Generator proposes an edit. Any error is a failed attempt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (edit.Candidate, error)
}

// DegradeFunc rewrites an instruction for a zero-based attempt index.
// It must be pure: the same inputs always give the same output.
type DegradeFunc func(instruction string, attempt int) string

// Config configures a Pipeline.
type Config struct {
	Generator  Generator              // Required
	Reviewer   gate.Reviewer          // Optional; nil skips the review gate
	Syntax     gate.Checker           // Optional; defaults to gate.NewSyntaxChecker()
	Reconciler *reconcile.Reconciler  // Optional; defaults to reconcile.DefaultOptions()
	Workspace  *workspace.Root        // Required
	Degrade    DegradeFunc            // Optional; nil keeps the instruction unchanged
	Events     events.Publisher       // Optional
	Recorder   AttemptRecorder        // Optional
	Logger     *slog.Logger           // Optional; defaults to slog.Default()
}

// Pipeline runs tasks. It holds no per-task state and is safe for
// concurrent use.
type Pipeline struct {
	cfg    Config
	review *gate.ReviewGate
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if cfg.Workspace == nil {
		return nil, errors.New("pipeline: workspace is required")
	}
	if cfg.Syntax == nil {
		cfg.Syntax = gate.NewSyntaxChecker()
	}
	if cfg.Reconciler == nil {
		cfg.Reconciler = reconcile.New(reconcile.DefaultOptions())
	}
	if cfg.Degrade == nil {
		cfg.Degrade = func(instruction string, _ int) string { return instruction }
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pipeline{cfg: cfg}
	if cfg.Reviewer != nil {
		p.review = gate.NewReviewGate(cfg.Reviewer)
	}
	return p, nil
}

// Run drives task to a terminal state and returns its result. It never
// returns an error: every failure ends up in the result. task.Original must
// hold the file content read at dispatch. task.Attempt is advanced as
// attempts are consumed.
func (p *Pipeline) Run(ctx context.Context, task *edit.Task) edit.TaskResult {
	start := time.Now()
	log := p.cfg.Logger.With("task_id", task.ID, "path", task.TargetPath)

	result := edit.TaskResult{TaskID: task.ID, TargetPath: task.TargetPath}
	var feedback string

	for {
		if err := ctx.Err(); err != nil {
			result.Status = edit.StatusFailedTerminal
			result.FinalKind = edit.FailureCancelled
			result.FinalReason = "run cancelled"
			log.Warn("task cancelled", "attempt", task.Attempt)
			break
		}

		attemptStart := time.Now()
		instruction := p.cfg.Degrade(task.Instruction, task.Attempt)
		result.AttemptsUsed = task.Attempt + 1

		p.cfg.Events.Publish(events.AttemptStartedEvent{
			ID:          task.ID,
			Path:        task.TargetPath,
			Attempt:     task.Attempt,
			Instruction: instruction,
			Timestamp:   attemptStart,
		})

		out, aerr := p.attempt(ctx, task, instruction, feedback, log)
		if aerr == nil {
			p.setState(task, StateCommitted)
			p.record(task, StateCommitted, nil, out.strategy, time.Since(attemptStart))

			result.Status = edit.StatusSucceeded
			result.Strategy = out.strategy
			result.Duration = time.Since(start)

			log.Info("task committed",
				"attempt", task.Attempt,
				"strategy", out.strategy.String(),
				"added", out.added,
				"removed", out.removed)
			p.cfg.Events.Publish(events.TaskCommittedEvent{
				ID:           task.ID,
				Path:         task.TargetPath,
				Strategy:     out.strategy,
				AttemptsUsed: result.AttemptsUsed,
				LinesAdded:   out.added,
				LinesRemoved: out.removed,
				Backup:       out.backup,
				Duration:     result.Duration,
				Timestamp:    time.Now(),
			})
			return result
		}

		state := failedState(aerr.Kind)
		p.setState(task, state)
		p.record(task, state, aerr, edit.StrategyNone, time.Since(attemptStart))

		retrying := task.Attempt < task.MaxRetries
		log.Warn("attempt failed",
			"attempt", task.Attempt,
			"state", state.String(),
			"reason", aerr.Reason,
			"retrying", retrying)
		p.cfg.Events.Publish(events.AttemptFailedEvent{
			ID:        task.ID,
			Attempt:   task.Attempt,
			Kind:      aerr.Kind,
			Reason:    aerr.Reason,
			Retrying:  retrying,
			Timestamp: time.Now(),
		})

		result.Status = edit.StatusFailedTerminal
		result.FinalKind = aerr.Kind
		result.FinalReason = aerr.Error()
		if !retrying {
			break
		}

		feedback = out.feedback
		task.Attempt++
	}

	result.Duration = time.Since(start)
	p.setState(task, StateFailedTerminal)
	log.Error("task failed", "attempts", result.AttemptsUsed, "reason", result.FinalReason)
	p.cfg.Events.Publish(events.TaskFailedEvent{
		ID:           task.ID,
		Path:         task.TargetPath,
		Kind:         result.FinalKind,
		Reason:       result.FinalReason,
		AttemptsUsed: result.AttemptsUsed,
		Duration:     result.Duration,
		Timestamp:    time.Now(),
	})
	return result
}

// outcome carries what one attempt produced besides its error.
type outcome struct {
	strategy edit.Strategy
	added    int
	removed  int
	backup   string
	feedback string // Error context for the next attempt
}

// attempt runs Generating through Committed once.
func (p *Pipeline) attempt(ctx context.Context, task *edit.Task, instruction, prior string, log *slog.Logger) (outcome, *edit.AttemptError) {
	var out outcome
	fail := func(kind edit.FailureKind, reason string, err error, content string, locs ...edit.Location) (outcome, *edit.AttemptError) {
		aerr := &edit.AttemptError{Kind: kind, Reason: reason, Location: locs, Err: err}
		out.feedback = buildFeedback(aerr, content)
		return out, aerr
	}

	// Generating
	p.setState(task, StateGenerating)
	cand, err := p.cfg.Generator.Generate(ctx, GenerateRequest{
		TaskID:       task.ID,
		Path:         task.TargetPath,
		Original:     task.Original,
		Instruction:  instruction,
		ErrorContext: prior,
		Attempt:      task.Attempt,
	})
	if err != nil {
		return fail(edit.FailureGeneration, err.Error(), err, "")
	}
	cand.TaskID = task.ID
	cand.Attempt = task.Attempt

	if cand.Empty() {
		return fail(edit.FailureSyntax, "empty candidate", nil, "")
	}

	// SyntaxChecking: a localized edit is checked on its projection.
	p.setState(task, StateSyntaxChecking)
	projected, err := p.cfg.Reconciler.Reconcile(task.Original, cand)
	if err != nil {
		return fail(edit.FailureReconcile, err.Error(), err, "")
	}
	if v := p.cfg.Syntax.Check(task.TargetPath, projected.Content); !v.Passed {
		return fail(edit.FailureSyntax, v.Describe(), nil, projected.Content, v.Detail...)
	}

	// Reviewing
	if p.review != nil {
		p.setState(task, StateReviewing)
		v, err := p.review.Check(ctx, task.TargetPath, task.Original, projected.Content, instruction)
		if err != nil {
			return fail(edit.FailureReview, "reviewer unavailable: "+err.Error(), err, "")
		}
		if !v.Passed {
			return fail(edit.FailureReview, v.Reason, nil, "")
		}
	}

	// Reconciling against what is on disk now.
	p.setState(task, StateReconciling)
	current, err := p.cfg.Workspace.Read(task.TargetPath)
	if err != nil {
		return fail(edit.FailureCommit, err.Error(), err, "")
	}

	final := projected
	if current != task.Original {
		log.Debug("target drifted since dispatch", "attempt", task.Attempt)
		final, err = p.cfg.Reconciler.Reconcile(current, cand)
		if err != nil {
			return fail(edit.FailureReconcile, err.Error(), err, "")
		}
		if final.Content != projected.Content {
			if v := p.cfg.Syntax.Check(task.TargetPath, final.Content); !v.Passed {
				return fail(edit.FailureSyntax, v.Describe(), nil, final.Content, v.Detail...)
			}
		}
	}
	if final.Content == current {
		return fail(edit.FailureReconcile, "edit produces no change", nil, "")
	}

	// Commit
	backup, err := p.cfg.Workspace.Backup(task.TargetPath)
	if err != nil {
		log.Warn("backup failed", "error", err)
	}
	if err := p.cfg.Workspace.WriteAtomic(task.TargetPath, final.Content); err != nil {
		return fail(edit.FailureCommit, err.Error(), err, "")
	}

	out.strategy = final.Strategy
	out.backup = backup
	out.added, out.removed = lineDelta(current, final.Content)
	return out, nil
}

func (p *Pipeline) setState(task *edit.Task, s State) {
	p.cfg.Events.Publish(events.StateChangedEvent{
		ID:        task.ID,
		Attempt:   task.Attempt,
		State:     s.String(),
		Timestamp: time.Now(),
	})
}

func (p *Pipeline) record(task *edit.Task, s State, aerr *edit.AttemptError, strategy edit.Strategy, d time.Duration) {
	if p.cfg.Recorder == nil {
		return
	}
	rec := AttemptRecord{
		TaskID:   task.ID,
		Path:     task.TargetPath,
		Attempt:  task.Attempt,
		State:    s,
		Strategy: strategy,
		Duration: d,
	}
	if aerr != nil {
		rec.Kind = aerr.Kind
		rec.Reason = aerr.Reason
	}
	p.cfg.Recorder.RecordAttempt(rec)
}

// buildFeedback renders the diagnostic handed to the next generation
// attempt. Located failures include the offending lines of content.
func buildFeedback(aerr *edit.AttemptError, content string) string {
	var b strings.Builder
	b.WriteString(aerr.Error())

	var lines []int
	for _, l := range aerr.Location {
		if l.Line > 0 {
			lines = append(lines, l.Line)
		}
	}
	if snippet := gate.ErrorContext(content, lines); snippet != "" {
		fmt.Fprintf(&b, "\n\n%s", strings.TrimRight(snippet, "\n"))
	}
	return b.String()
}
