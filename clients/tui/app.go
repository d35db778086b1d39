package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const refreshInterval = 2 * time.Second

// refreshMsg carries the result of one poll cycle.
type refreshMsg struct {
	status    StatusSnapshot
	approvals []Approval
	err       error
}

// resolvedMsg reports the outcome of an approve/reject action.
type resolvedMsg struct {
	notice string
	err    error
}

type tickMsg struct{}

// Model is the root bubbletea model for the approvals dashboard.
type Model struct {
	client *Client
	width  int

	status    StatusSnapshot
	approvals []Approval
	cursor    int
	notice    string
	err       error
}

// NewModel creates the dashboard model polling the given client.
func NewModel(client *Client) Model {
	return Model{client: client}
}

// Init starts the first poll.
func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		status, err := m.client.Status()
		if err != nil {
			return refreshMsg{err: err}
		}
		approvals, err := m.client.Approvals()
		if err != nil {
			return refreshMsg{err: err}
		}
		return refreshMsg{status: status, approvals: approvals}
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update processes all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, m.refresh()

	case refreshMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, scheduleTick()
		}
		m.err = nil
		m.status = msg.status
		m.approvals = msg.approvals
		if m.cursor >= len(m.approvals) {
			m.cursor = len(m.approvals) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, scheduleTick()

	case resolvedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = msg.notice
		}
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.approvals)-1 {
			m.cursor++
		}
		return m, nil

	case "a":
		return m.resolveSelected("approved", m.client.Approve)

	case "r":
		return m.resolveSelected("rejected", m.client.Reject)

	case "A":
		return m, func() tea.Msg {
			if err := m.client.ApproveAll(); err != nil {
				return resolvedMsg{err: err}
			}
			return resolvedMsg{notice: "approved all pending requests"}
		}

	case "R":
		return m, func() tea.Msg {
			if err := m.client.RejectAll(); err != nil {
				return resolvedMsg{err: err}
			}
			return resolvedMsg{notice: "rejected all pending requests"}
		}
	}

	return m, nil
}

func (m Model) resolveSelected(verb string, fn func(string) error) (tea.Model, tea.Cmd) {
	if len(m.approvals) == 0 {
		return m, nil
	}
	req := m.approvals[m.cursor]
	return m, func() tea.Msg {
		if err := fn(req.ID); err != nil {
			return resolvedMsg{err: err}
		}
		return resolvedMsg{notice: fmt.Sprintf("%s %s (%s)", verb, req.ID, req.Action.ActionType)}
	}
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Overseer — pending approvals"))
	b.WriteString("\n\n")

	if m.status.EmergencyStopped {
		b.WriteString(StoppedStyle.Render("EMERGENCY STOP ENGAGED"))
		b.WriteString("\n\n")
	}

	if len(m.approvals) == 0 {
		b.WriteString(MutedStyle.Render("Nothing waiting for approval."))
		b.WriteString("\n")
	}

	for i, req := range m.approvals {
		risk := RiskStyle(req.Action.RiskLevel).Render(fmt.Sprintf("%-8s", req.Action.RiskLevel))
		line := fmt.Sprintf("  %s %s  %-18s %s", risk, req.ID, req.Action.ActionType, req.Action.Description)
		if i == m.cursor {
			line = SelectedStyle.Render("> " + line[2:])
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(StoppedStyle.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(MutedStyle.Render(m.notice))
		b.WriteString("\n")
	}

	plan := m.status.CurrentPlanID
	if plan == "" {
		plan = "none"
	}
	bar := fmt.Sprintf("plan: %s | mode: %s | pending: %d | a/r resolve  A/R all  q quit",
		plan, m.status.SecurityMode, m.status.PendingApprovals)
	b.WriteString(StatusBarStyle.Render(bar))
	b.WriteString("\n")

	return b.String()
}

// Run starts the dashboard against a coordinator base URL.
func Run(serverURL string) error {
	p := tea.NewProgram(NewModel(NewClient(serverURL)), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
