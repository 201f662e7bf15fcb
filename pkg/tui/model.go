// Package tui renders a live view of a run by tailing its trace file.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/orchestrator"
)

// StepState tracks the status of each step in the watch view.
type StepState struct {
	Index       int
	Description string
	Target      string
	Status      model.Status
	Attempts    int
	Duration    time.Duration
	Detail      string
}

// Model is the Bubble Tea model for veriplan watch.
type Model struct {
	caseID   string
	steps    []StepState
	selected int
	spin     spinner.Model
	tail     *traceTail
	status   string // "waiting", "running", "done"
	overall  model.RunStatus
	width    int
	height   int
	err      error
}

// NewModel creates a watch model over a plan, tailing the given trace file.
func NewModel(plan *model.Plan, tracePath string) Model {
	steps := make([]StepState, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, StepState{
			Index:       s.Index,
			Description: s.Description,
			Target:      string(s.Target),
			Status:      model.StatusPending,
		})
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	return Model{
		caseID: plan.TestCaseID,
		steps:  steps,
		spin:   sp,
		tail:   newTraceTail(tracePath),
		status: "waiting",
	}
}

// --- Messages ---

// traceResultsMsg delivers newly appended trace events.
type traceResultsMsg struct {
	Events []orchestrator.TraceEvent
	Err    error
}

type pollMsg struct{}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.pollCmd())
}

func (m Model) pollCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg { return pollMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.steps)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case pollMsg:
		events, err := m.tail.next()
		return m, tea.Batch(
			func() tea.Msg { return traceResultsMsg{Events: events, Err: err} },
			m.pollCmd(),
		)

	case traceResultsMsg:
		if msg.Err != nil {
			m.err = msg.Err
		}
		for _, evt := range msg.Events {
			m.applyEvent(evt)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// applyEvent folds one trace event into the step table.
func (m *Model) applyEvent(evt orchestrator.TraceEvent) {
	if evt.Type != "step_result" || evt.Result == nil {
		return
	}
	m.status = "running"
	for i := range m.steps {
		if m.steps[i].Index != evt.Result.StepIndex {
			continue
		}
		m.steps[i].Status = evt.Result.Status
		m.steps[i].Attempts = evt.Result.Attempts
		m.steps[i].Detail = evt.Result.ErrorDetail
		m.steps[i].Duration = evt.Result.EndedAt.Sub(evt.Result.StartedAt)
	}
	m.refreshOverall()
}

// refreshOverall derives run progress from step states once every step has a
// terminal status.
func (m *Model) refreshOverall() {
	done := 0
	overall := model.RunPassed
	for _, s := range m.steps {
		if !s.Status.Terminal() {
			return
		}
		done++
		switch s.Status {
		case model.StatusFailed, model.StatusError:
			if overall != model.RunAborted {
				overall = model.RunFailed
			}
		case model.StatusSkipped:
			overall = model.RunAborted
		}
	}
	if done == len(m.steps) {
		m.status = "done"
		m.overall = overall
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	b.WriteString(headerStyle.Render(fmt.Sprintf("  veriplan watch: %s", m.caseID)))
	b.WriteString("\n\n")

	for i, s := range m.steps {
		icon := stepIcon(s.Status)
		if s.Status == model.StatusRunning {
			icon = m.spin.View()
		}
		line := fmt.Sprintf("  %s %d. %s [%s]", icon, s.Index, s.Description, s.Target)
		if s.Attempts > 1 {
			line += fmt.Sprintf("  (%d attempts)", s.Attempts)
		}
		if s.Duration > 0 {
			line += fmt.Sprintf("  %s", s.Duration.Truncate(time.Millisecond))
		}

		if i == m.selected {
			selectedStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
			b.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	switch m.status {
	case "waiting":
		b.WriteString(statusStyle.Render("  Waiting for run..."))
	case "running":
		b.WriteString(statusStyle.Render("  Running..."))
	case "done":
		switch m.overall {
		case model.RunPassed:
			okStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("40"))
			b.WriteString(okStyle.Render("  ✓ passed"))
		case model.RunAborted:
			warnStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
			b.WriteString(warnStyle.Render("  ⊘ aborted"))
		default:
			failStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
			b.WriteString(failStyle.Render("  ✗ failed"))
		}
	}
	if m.err != nil {
		b.WriteString(statusStyle.Render(fmt.Sprintf("  (trace: %v)", m.err)))
	}

	if m.selected < len(m.steps) {
		if detail := m.steps[m.selected].Detail; detail != "" {
			b.WriteString("\n\n")
			b.WriteString(statusStyle.Render("  Detail:"))
			b.WriteString("\n  " + detail)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(statusStyle.Render("  q: quit  ↑/↓: navigate"))

	return b.String()
}

func stepIcon(status model.Status) string {
	switch status {
	case model.StatusPending:
		return "○"
	case model.StatusRunning:
		return "◉"
	case model.StatusPassed:
		return "✓"
	case model.StatusFailed:
		return "✗"
	case model.StatusError:
		return "!"
	case model.StatusSkipped:
		return "⊘"
	default:
		return "?"
	}
}
