// Package edit holds the data model shared by the reconciler, the gates,
// the task pipeline and the scheduler.
package edit

import (
	"fmt"
	"time"
)

// Task is one unit of work: apply Instruction to the file at TargetPath.
//
// A Task is owned by the scheduler until a worker picks it up. After that
// only Attempt changes, and only the pipeline increments it.
type Task struct {
	ID          string
	TargetPath  string // Relative to the workspace root
	Instruction string
	Original    string // File content as read at dispatch time
	MaxRetries  int    // Retries allowed after the first attempt
	Attempt     int    // Zero-based index of the attempt in progress
}

// Status is the terminal status of a task.
type Status int

const (
	StatusSucceeded      Status = iota // Committed to disk
	StatusFailedTerminal               // Retries exhausted
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailedTerminal:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TaskResult is the terminal record of a task. It never carries file content.
type TaskResult struct {
	TaskID       string
	TargetPath   string
	Status       Status
	AttemptsUsed int
	FinalReason  string   // Set when Status is StatusFailedTerminal
	FinalKind    FailureKind
	Strategy     Strategy // Set when Status is StatusSucceeded
	Duration     time.Duration
}

// Succeeded reports whether the task committed.
func (r TaskResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// RunStats aggregates the results of one scheduler run.
type RunStats struct {
	Total         int
	Completed     int // Tasks that committed
	Failed        int
	Retries       int // Attempts beyond the first, summed over tasks
	AttemptsTotal int
	Elapsed       time.Duration
}
