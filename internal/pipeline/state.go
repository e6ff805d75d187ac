package pipeline

import (
	"fmt"
	"time"

	"github.com/aristath/minions/internal/edit"
)

// State is a step of the per-task state machine.
type State int

const (
	StateGenerating State = iota
	StateGenerationFailed
	StateSyntaxChecking
	StateSyntaxFailed
	StateReviewing
	StateReviewFailed
	StateReconciling
	StateReconcileFailed
	StateCommitted
	StateFailedTerminal
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateGenerationFailed:
		return "generation-failed"
	case StateSyntaxChecking:
		return "syntax-checking"
	case StateSyntaxFailed:
		return "syntax-failed"
	case StateReviewing:
		return "reviewing"
	case StateReviewFailed:
		return "review-failed"
	case StateReconciling:
		return "reconciling"
	case StateReconcileFailed:
		return "reconcile-failed"
	case StateCommitted:
		return "committed"
	case StateFailedTerminal:
		return "failed-terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further attempt follows this state.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailedTerminal
}

// Failed reports whether the state ends an attempt without a commit.
func (s State) Failed() bool {
	switch s {
	case StateGenerationFailed, StateSyntaxFailed, StateReviewFailed, StateReconcileFailed:
		return true
	}
	return false
}

// failedState maps a failure kind to the state the attempt ends in.
func failedState(kind edit.FailureKind) State {
	switch kind {
	case edit.FailureGeneration:
		return StateGenerationFailed
	case edit.FailureSyntax:
		return StateSyntaxFailed
	case edit.FailureReview:
		return StateReviewFailed
	default:
		return StateReconcileFailed
	}
}

// AttemptRecord summarises one finished attempt. It never carries file
// content.
type AttemptRecord struct {
	TaskID   string
	Path     string
	Attempt  int // Zero-based
	State    State
	Kind     edit.FailureKind // FailureNone when the attempt committed
	Reason   string
	Strategy edit.Strategy
	Duration time.Duration
}

// AttemptRecorder receives a record for every finished attempt.
// Implementations must be safe for concurrent use.
type AttemptRecorder interface {
	RecordAttempt(rec AttemptRecord)
}
