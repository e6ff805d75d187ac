// Package metrics exposes Prometheus collectors fed by pipeline and
// scheduler events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/minions/internal/events"
)

const namespace = "minions"

// Metrics implements events.Publisher and turns events into Prometheus
// series.
type Metrics struct {
	attempts     prometheus.Counter
	failures     *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	commits      *prometheus.CounterVec
	linesChanged *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	attemptsUsed prometheus.Histogram
	tasksRunning prometheus.Gauge
	tasksPending prometheus.Gauge
}

// New constructs Metrics and registers them with reg. A nil reg uses the
// default registerer. Registration errors panic, like the promauto helpers.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Generation attempts started.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempt_failures_total",
			Help:      "Failed attempts by failure kind.",
		}, []string{"kind"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal state, by status.",
		}, []string{"status"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Committed edits by reconciliation strategy.",
		}, []string{"strategy"}),
		linesChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_changed_total",
			Help:      "Lines added and removed by committed edits.",
		}, []string{"direction"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from first attempt to terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		attemptsUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_attempts_used",
			Help:      "Attempts a task consumed before its terminal state.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_running",
			Help:      "Tasks currently held by a worker.",
		}),
		tasksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_pending",
			Help:      "Tasks waiting for a worker.",
		}),
	}

	reg.MustRegister(m.attempts, m.failures, m.tasks, m.commits, m.linesChanged,
		m.taskDuration, m.attemptsUsed, m.tasksRunning, m.tasksPending)
	return m
}

// Publish implements events.Publisher.
func (m *Metrics) Publish(event events.Event) {
	if m == nil {
		return
	}
	switch e := event.(type) {
	case events.AttemptStartedEvent:
		m.attempts.Inc()
	case events.AttemptFailedEvent:
		m.failures.WithLabelValues(e.Kind.String()).Inc()
	case events.TaskCommittedEvent:
		m.tasks.WithLabelValues("succeeded").Inc()
		m.commits.WithLabelValues(e.Strategy.String()).Inc()
		m.linesChanged.WithLabelValues("added").Add(float64(e.LinesAdded))
		m.linesChanged.WithLabelValues("removed").Add(float64(e.LinesRemoved))
		m.taskDuration.WithLabelValues("succeeded").Observe(e.Duration.Seconds())
		m.attemptsUsed.Observe(float64(e.AttemptsUsed))
	case events.TaskFailedEvent:
		m.tasks.WithLabelValues("failed").Inc()
		m.taskDuration.WithLabelValues("failed").Observe(e.Duration.Seconds())
		m.attemptsUsed.Observe(float64(e.AttemptsUsed))
	case events.RunProgressEvent:
		m.tasksRunning.Set(float64(e.Running))
		m.tasksPending.Set(float64(e.Pending))
	}
}
