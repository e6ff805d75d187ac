package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/minions/internal/config"
	"github.com/aristath/minions/internal/edit"
	"github.com/aristath/minions/internal/events"
)

func newTestModel(t *testing.T) (Model, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)
	dir := t.TempDir()
	m := New(bus, config.DefaultConfig(), filepath.Join(dir, "global.json"), filepath.Join(dir, "project.json"))
	return m, bus
}

// send feeds msgs through Update in order, as the program loop would.
func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestTaskLifecycle(t *testing.T) {
	m, _ := newTestModel(t)
	now := time.Now()

	m = send(t, m,
		tea.WindowSizeMsg{Width: 120, Height: 40},
		events.TaskQueuedEvent{ID: "t1", Path: "src/a.py", Instruction: "add docstrings", Timestamp: now},
		events.TaskQueuedEvent{ID: "t2", Path: "src/b.py", Instruction: "rename x", Timestamp: now},
		events.AttemptStartedEvent{ID: "t1", Attempt: 0, Instruction: "add docstrings", Timestamp: now},
		events.StateChangedEvent{ID: "t1", Attempt: 0, State: "SyntaxChecking", Timestamp: now},
		events.AttemptFailedEvent{ID: "t1", Attempt: 0, Kind: edit.FailureSyntax, Reason: "line 3: unexpected indent", Retrying: true, Timestamp: now},
	)

	task, ok := m.taskPane.Task("t1")
	if !ok {
		t.Fatal("task t1 not tracked")
	}
	if task.Status != statusRetrying || task.State != "SyntaxChecking" {
		t.Errorf("task = %+v", task)
	}
	if !strings.Contains(strings.Join(task.Log, "\n"), "unexpected indent") {
		t.Errorf("log missing failure reason: %v", task.Log)
	}

	m = send(t, m,
		events.AttemptStartedEvent{ID: "t1", Attempt: 1, Instruction: "add docstrings", Timestamp: now},
		events.TaskCommittedEvent{ID: "t1", Path: "src/a.py", Strategy: edit.StrategyExact, AttemptsUsed: 2, LinesAdded: 4, Timestamp: now},
		events.TaskFailedEvent{ID: "t2", Path: "src/b.py", Kind: edit.FailureReview, Reason: "renamed too much", AttemptsUsed: 3, Timestamp: now},
	)

	if task, _ := m.taskPane.Task("t1"); task.Status != statusCommitted || task.Attempt != 1 {
		t.Errorf("t1 = %+v", task)
	}
	if task, _ := m.taskPane.Task("t2"); task.Status != statusFailed {
		t.Errorf("t2 = %+v", task)
	}

	view := m.View()
	if !strings.Contains(view, "src/a.py") || !strings.Contains(view, "src/b.py") {
		t.Errorf("view missing task paths:\n%s", view)
	}
}

func TestEventsForUnknownTaskIgnored(t *testing.T) {
	m, _ := newTestModel(t)
	m = send(t, m, events.AttemptStartedEvent{ID: "ghost", Attempt: 0})
	if _, ok := m.taskPane.Task("ghost"); ok {
		t.Error("unknown task should not be created by a non-queue event")
	}
}

func TestRunProgress(t *testing.T) {
	m, _ := newTestModel(t)
	m = send(t, m,
		tea.WindowSizeMsg{Width: 120, Height: 40},
		events.RunProgressEvent{RunID: "0123456789", Total: 4, Succeeded: 1, Failed: 1, Running: 2},
	)

	if got := m.progressPane.Fraction(); got != 0.5 {
		t.Errorf("Fraction = %v, want 0.5", got)
	}
	if m.Done() {
		t.Error("run should not be done yet")
	}
	if !strings.Contains(m.View(), "01234567") {
		t.Error("view should show the short run id")
	}

	m = send(t, m, events.RunProgressEvent{RunID: "0123456789", Total: 4, Succeeded: 3, Failed: 1, Done: true})
	if !m.Done() {
		t.Error("run should be done")
	}
	if !strings.Contains(m.View(), "q: quit") {
		t.Error("help bar should offer quit once done")
	}
}

func TestWaitForEventBusClosed(t *testing.T) {
	m, bus := newTestModel(t)
	bus.Publish(events.TaskQueuedEvent{ID: "t1", Path: "a.go"})

	msg := m.Init()()
	if _, ok := msg.(events.TaskQueuedEvent); !ok {
		t.Fatalf("first message = %T, want TaskQueuedEvent", msg)
	}

	bus.Close()
	msg = waitForEvent(m.eventSub)()
	if _, ok := msg.(busClosedMsg); !ok {
		t.Fatalf("message after close = %T, want busClosedMsg", msg)
	}
	m = send(t, m, msg)
	if !m.Done() {
		t.Error("closed bus should mark the run done")
	}
}

func TestKeys(t *testing.T) {
	m, _ := newTestModel(t)
	m = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneProgress {
		t.Errorf("focus after tab = %v", m.focusedPane)
	}
	m = send(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.focusedPane != PaneTasks {
		t.Errorf("focus after shift+tab = %v", m.focusedPane)
	}

	m = send(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if !m.showSettings || !m.settingsPane.IsVisible() {
		t.Fatal("settings should open")
	}
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showSettings {
		t.Error("esc should close settings")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(Model).Quitting() || cmd == nil {
		t.Error("q should quit")
	}
}

func TestSettingsSave(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	projectPath := filepath.Join(dir, ".minions", "config.json")
	pane := NewSettingsPaneModel(cfg, filepath.Join(dir, "global.json"), projectPath)

	pane.generatorProvider = "claude"
	pane.generatorModel = "sonnet"
	pane.workers = "8"
	if err := pane.save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if cfg.Roles.Generator.Provider != "claude" || cfg.Swarm.Workers != 8 {
		t.Errorf("config not updated: %+v", cfg)
	}

	for _, k := range []string{"MINIONS_MODEL", "MINIONS_REVIEWER", "MINIONS_WORKERS", "MINIONS_MAX_RETRIES", "OLLAMA_BASE_URL"} {
		t.Setenv(k, "")
	}
	loaded, err := config.Load("", projectPath)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Roles.Generator.Model != "sonnet" || loaded.Swarm.Workers != 8 {
		t.Errorf("saved config = %+v", loaded)
	}

	pane.reviewerProvider = "missing"
	if err := pane.save(); err == nil {
		t.Error("invalid provider should not save")
	}
	if cfg.Roles.Reviewer.Provider == "missing" {
		t.Error("config changed despite failed validation")
	}
}
