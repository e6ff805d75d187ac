package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/events"
)

func TestPublish_CountsEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.Publish(events.AttemptStartedEvent{ID: "t1", Attempt: 0})
	m.Publish(events.AttemptFailedEvent{ID: "t1", Attempt: 0, Kind: edit.FailureSyntax, Retrying: true})
	m.Publish(events.AttemptStartedEvent{ID: "t1", Attempt: 1})
	m.Publish(events.TaskCommittedEvent{ID: "t1", Strategy: edit.StrategyExact, AttemptsUsed: 2, LinesAdded: 3, LinesRemoved: 1, Duration: 2 * time.Second})
	m.Publish(events.AttemptStartedEvent{ID: "t2", Attempt: 0})
	m.Publish(events.AttemptFailedEvent{ID: "t2", Attempt: 0, Kind: edit.FailureReview})
	m.Publish(events.TaskFailedEvent{ID: "t2", Kind: edit.FailureReview, AttemptsUsed: 1, Duration: time.Second})
	m.Publish(events.RunProgressEvent{Total: 5, Running: 2, Pending: 1})

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"attempts", m.attempts, 3},
		{"syntax failures", m.failures.WithLabelValues("syntax"), 1},
		{"review failures", m.failures.WithLabelValues("review"), 1},
		{"succeeded", m.tasks.WithLabelValues("succeeded"), 1},
		{"failed", m.tasks.WithLabelValues("failed"), 1},
		{"exact commits", m.commits.WithLabelValues("exact"), 1},
		{"lines added", m.linesChanged.WithLabelValues("added"), 3},
		{"lines removed", m.linesChanged.WithLabelValues("removed"), 1},
		{"running", m.tasksRunning, 2},
		{"pending", m.tasksPending, 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}

	expected := `
# HELP minions_task_attempts_used Attempts a task consumed before its terminal state.
# TYPE minions_task_attempts_used histogram
minions_task_attempts_used_bucket{le="1"} 1
minions_task_attempts_used_bucket{le="2"} 2
minions_task_attempts_used_bucket{le="3"} 2
minions_task_attempts_used_bucket{le="4"} 2
minions_task_attempts_used_bucket{le="5"} 2
minions_task_attempts_used_bucket{le="8"} 2
minions_task_attempts_used_bucket{le="+Inf"} 2
minions_task_attempts_used_sum 3
minions_task_attempts_used_count 2
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "minions_task_attempts_used"); err != nil {
		t.Error(err)
	}
}

func TestPublish_NilSafe(t *testing.T) {
	var m *Metrics
	m.Publish(events.AttemptStartedEvent{})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(registry)
}
