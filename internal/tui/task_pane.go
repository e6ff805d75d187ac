package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/minions/internal/events"
)

// Task statuses shown in the list.
const (
	statusQueued    = "queued"
	statusRunning   = "running"
	statusRetrying  = "retrying"
	statusCommitted = "committed"
	statusFailed    = "failed"
)

// TaskState is the display state of one task.
type TaskState struct {
	TaskID  string
	Path    string
	Status  string
	State   string // Last pipeline state
	Attempt int
	Log     []string
}

// TaskPaneModel is the task list with a scrollable log of the selected task.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	order       []string              // queue order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // debounce
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg debounces viewport refreshes.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskQueuedEvent:
		if _, exists := m.tasks[msg.ID]; !exists {
			m.tasks[msg.ID] = &TaskState{
				TaskID: msg.ID,
				Path:   msg.Path,
				Status: statusQueued,
				Log:    []string{fmt.Sprintf("%s  %s", stamp(msg.Timestamp), msg.Instruction)},
			}
			m.order = append(m.order, msg.ID)
			if len(m.order) == 1 {
				m.selectedIdx = 0
				m.updateViewportContent()
			}
		}

	case events.AttemptStartedEvent:
		cmd = m.appendLog(msg.ID, msg.Timestamp, fmt.Sprintf("attempt %d: %s", msg.Attempt+1, msg.Instruction), func(t *TaskState) {
			t.Status = statusRunning
			t.Attempt = msg.Attempt
		})

	case events.StateChangedEvent:
		cmd = m.appendLog(msg.ID, msg.Timestamp, "  "+msg.State, func(t *TaskState) {
			t.State = msg.State
		})

	case events.AttemptFailedEvent:
		line := fmt.Sprintf("  %s failure: %s", msg.Kind, msg.Reason)
		cmd = m.appendLog(msg.ID, msg.Timestamp, line, func(t *TaskState) {
			if msg.Retrying {
				t.Status = statusRetrying
			}
		})

	case events.TaskCommittedEvent:
		line := fmt.Sprintf("[committed via %s after %d attempt(s), +%d -%d, %v]",
			msg.Strategy, msg.AttemptsUsed, msg.LinesAdded, msg.LinesRemoved, msg.Duration.Round(time.Millisecond))
		if msg.Backup != "" {
			line += "\n[backup: " + msg.Backup + "]"
		}
		m.appendLog(msg.ID, msg.Timestamp, line, func(t *TaskState) {
			t.Status = statusCommitted
		})
		if m.getSelectedTaskID() == msg.ID {
			m.updateViewportContent()
		}

	case events.TaskFailedEvent:
		line := fmt.Sprintf("[failed after %d attempt(s): %s]", msg.AttemptsUsed, msg.Reason)
		m.appendLog(msg.ID, msg.Timestamp, line, func(t *TaskState) {
			t.Status = statusFailed
		})
		if m.getSelectedTaskID() == msg.ID {
			m.updateViewportContent()
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// appendLog records a line for a known task and schedules a debounced
// refresh when that task is selected.
func (m *TaskPaneModel) appendLog(id string, ts time.Time, line string, apply func(*TaskState)) tea.Cmd {
	t, exists := m.tasks[id]
	if !exists {
		return nil
	}
	apply(t)
	t.Log = append(t.Log, fmt.Sprintf("%s  %s", stamp(ts), line))
	if m.getSelectedTaskID() != id {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

func stamp(ts time.Time) string {
	if ts.IsZero() {
		return "--:--:--"
	}
	return ts.Format("15:04:05")
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := m.listWidth()
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) listWidth() int {
	return max(20, min(40, m.width/3))
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		t := m.tasks[id]
		name := t.Path
		if len(name) > width-6 {
			name = "..." + name[len(name)-(width-9):]
		}
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case statusRunning:
		return StyleStatusRunning.Render("●")
	case statusRetrying:
		return StyleStatusRetrying.Render("↻")
	case statusCommitted:
		return StyleStatusComplete.Render("✓")
	case statusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns the display state of a task.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (m TaskPaneModel) getSelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	t, exists := m.tasks[m.getSelectedTaskID()]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}
	header := StyleTitle.Render(t.Path)
	if t.State != "" {
		header += StyleStatusPending.Render(fmt.Sprintf(" attempt %d, %s", t.Attempt+1, t.State))
	}
	m.viewport.SetContent(header + "\n\n" + strings.Join(t.Log, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(10, m.width-m.listWidth()-4)
	m.viewport.Height = max(5, m.height-4)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
