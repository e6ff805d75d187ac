package tui

import (
	"fmt"
	"sort"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/minions/internal/config"
)

// SettingsPaneModel is the settings form overlay. Saved values apply to the
// next run.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings
	saveTarget        string
	generatorProvider string
	generatorModel    string
	reviewerProvider  string
	reviewerModel     string
	workers           string
	maxRetries        string
}

// NewSettingsPaneModel creates a settings pane editing cfg.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.resetFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) resetFields() {
	m.saveTarget = "project"
	m.generatorProvider = m.config.Roles.Generator.Provider
	m.generatorModel = m.config.Roles.Generator.Model
	m.reviewerProvider = m.config.Roles.Reviewer.Provider
	m.reviewerModel = m.config.Roles.Reviewer.Model
	m.workers = strconv.Itoa(m.config.Swarm.Workers)
	m.maxRetries = strconv.Itoa(m.config.Swarm.MaxRetries)
}

func (m *SettingsPaneModel) providerOptions() []huh.Option[string] {
	names := make([]string, 0, len(m.config.Providers))
	for name := range m.config.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	opts := make([]huh.Option[string], 0, len(names))
	for _, name := range names {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", name, m.config.Providers[name].Type), name))
	}
	return opts
}

func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project ("+m.projectPath+")", "project"),
					huh.NewOption("Global ("+m.globalPath+")", "global"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("generatorProvider").
				Title("Generator Provider").
				Options(m.providerOptions()...).
				Value(&m.generatorProvider),

			huh.NewInput().
				Key("generatorModel").
				Title("Generator Model").
				Value(&m.generatorModel).
				Placeholder("qwen2.5-coder:7b"),

			huh.NewSelect[string]().
				Key("reviewerProvider").
				Title("Reviewer Provider").
				Options(m.providerOptions()...).
				Value(&m.reviewerProvider),

			huh.NewInput().
				Key("reviewerModel").
				Title("Reviewer Model").
				Value(&m.reviewerModel).
				Placeholder("qwen2.5-coder:7b"),
		).Title("Roles"),

		huh.NewGroup(
			huh.NewInput().
				Key("workers").
				Title("Workers").
				Value(&m.workers).
				Validate(atLeast(1)),

			huh.NewInput().
				Key("maxRetries").
				Title("Max Retries").
				Value(&m.maxRetries).
				Validate(atLeast(0)),
		).Title("Swarm"),
	)
}

func atLeast(n int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not a number")
		}
		if v < n {
			return fmt.Errorf("must be at least %d", n)
		}
		return nil
	}
}

// Init initializes the form.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// save copies the form into the config, validates it and writes it.
func (m *SettingsPaneModel) save() error {
	next := *m.config
	next.Roles.Generator.Provider = m.generatorProvider
	next.Roles.Generator.Model = m.generatorModel
	next.Roles.Reviewer.Provider = m.reviewerProvider
	next.Roles.Reviewer.Model = m.reviewerModel
	next.Swarm.Workers, _ = strconv.Atoi(m.workers)
	next.Swarm.MaxRetries, _ = strconv.Atoi(m.maxRetries)

	if err := next.Validate(); err != nil {
		return err
	}

	target := m.projectPath
	if m.saveTarget == "global" {
		target = m.globalPath
	}
	if err := config.Save(&next, target); err != nil {
		return err
	}
	*m.config = next
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleError.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(max(0, m.width-4)).
		Height(max(0, m.height-4))

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings (applied to the next run)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(max(20, w-8)).WithHeight(max(10, h-8))
	}
}

// SetVisible shows or hides the settings pane. Showing it rebuilds the form
// from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.resetFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
