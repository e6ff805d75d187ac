package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/minions/internal/events"
)

// ProgressPaneModel shows run counters and a completion bar.
type ProgressPaneModel struct {
	runID     string
	total     int
	succeeded int
	failed    int
	running   int
	pending   int
	retries   int
	done      bool
	bar       progress.Model
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates an empty progress pane.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{
		bar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	if msg, ok := msg.(events.RunProgressEvent); ok {
		m.runID = msg.RunID
		m.total = msg.Total
		m.succeeded = msg.Succeeded
		m.failed = msg.Failed
		m.running = msg.Running
		m.pending = msg.Pending
		m.retries = msg.Retries
		m.done = msg.Done
	}
	return m, nil
}

// Fraction returns the share of tasks in a terminal state.
func (m ProgressPaneModel) Fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.succeeded+m.failed) / float64(m.total)
}

// Done reports whether the run has finished.
func (m ProgressPaneModel) Done() bool {
	return m.done
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := "Run"
	if m.runID != "" {
		title += " " + shortID(m.runID)
	}
	if m.done {
		title += " (finished)"
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total:     %d\n", m.total)
	fmt.Fprintf(&b, "Committed: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.succeeded)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(m.running)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.failed)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(m.pending)))
	fmt.Fprintf(&b, "Retries:   %s\n", StyleStatusRetrying.Render(fmt.Sprint(m.retries)))
	b.WriteString("\n")

	if m.total > 0 {
		bar := m.bar
		bar.Width = max(10, min(m.width-16, 60))
		fmt.Fprintf(&b, "%s  %d/%d\n", bar.ViewAs(m.Fraction()), m.succeeded+m.failed, m.total)
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(lipgloss.NewStyle().MaxWidth(m.width - 4).Render(b.String()))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
