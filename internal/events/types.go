package events

import (
	"time"

	"github.com/aristath/minions/internal/edit"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
	Topic() string
}

// Topic constants
const (
	TopicTask    = "task"
	TopicOutcome = "outcome" // TaskCommittedEvent and TaskFailedEvent only
	TopicRun     = "run"
)

// Event type constants
const (
	EventTypeTaskQueued     = "task.queued"
	EventTypeAttemptStarted = "task.attempt_started"
	EventTypeStateChanged   = "task.state_changed"
	EventTypeAttemptFailed  = "task.attempt_failed"
	EventTypeTaskCommitted  = "task.committed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeRunProgress    = "run.progress"
)

// TaskQueuedEvent is published when the scheduler accepts a task.
type TaskQueuedEvent struct {
	ID          string
	Path        string
	Instruction string
	Timestamp   time.Time
}

func (e TaskQueuedEvent) EventType() string { return EventTypeTaskQueued }
func (e TaskQueuedEvent) TaskID() string    { return e.ID }
func (e TaskQueuedEvent) Topic() string     { return TopicTask }

// AttemptStartedEvent is published when a generation attempt begins.
// Attempt is zero-based.
type AttemptStartedEvent struct {
	ID          string
	Path        string
	Attempt     int
	Instruction string // Instruction as sent, after degradation
	Timestamp   time.Time
}

func (e AttemptStartedEvent) EventType() string { return EventTypeAttemptStarted }
func (e AttemptStartedEvent) TaskID() string    { return e.ID }
func (e AttemptStartedEvent) Topic() string     { return TopicTask }

// StateChangedEvent is published on every pipeline state transition.
type StateChangedEvent struct {
	ID        string
	Attempt   int
	State     string
	Timestamp time.Time
}

func (e StateChangedEvent) EventType() string { return EventTypeStateChanged }
func (e StateChangedEvent) TaskID() string    { return e.ID }
func (e StateChangedEvent) Topic() string     { return TopicTask }

// AttemptFailedEvent is published when an attempt fails a gate, the
// reconciler, or the commit.
type AttemptFailedEvent struct {
	ID        string
	Attempt   int
	Kind      edit.FailureKind
	Reason    string
	Retrying  bool
	Timestamp time.Time
}

func (e AttemptFailedEvent) EventType() string { return EventTypeAttemptFailed }
func (e AttemptFailedEvent) TaskID() string    { return e.ID }
func (e AttemptFailedEvent) Topic() string     { return TopicTask }

// TaskCommittedEvent is published after the file has been written.
type TaskCommittedEvent struct {
	ID           string
	Path         string
	Strategy     edit.Strategy
	AttemptsUsed int
	LinesAdded   int
	LinesRemoved int
	Backup       string
	Duration     time.Duration
	Timestamp    time.Time
}

func (e TaskCommittedEvent) EventType() string { return EventTypeTaskCommitted }
func (e TaskCommittedEvent) TaskID() string    { return e.ID }
func (e TaskCommittedEvent) Topic() string     { return TopicOutcome }

// TaskFailedEvent is published when a task exhausts its retries.
type TaskFailedEvent struct {
	ID           string
	Path         string
	Kind         edit.FailureKind
	Reason       string
	AttemptsUsed int
	Duration     time.Duration
	Timestamp    time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }
func (e TaskFailedEvent) Topic() string     { return TopicOutcome }

// RunProgressEvent is published when the run's counters change.
type RunProgressEvent struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Running   int
	Pending   int
	Retries   int
	Done      bool
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }
func (e RunProgressEvent) Topic() string     { return TopicRun }
