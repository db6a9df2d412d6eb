// Package ui renders a live view of an upload run: one status row per
// adapter and a scrolling message log.
package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/motion-installer/internal/transfer"
)

const maxLogs = 12

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	rowStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Row is the latest known status of one adapter.
type Row struct {
	Adapter string
	State   string
	Sent    int
	Total   int
	Err     error
}

// Model is the bubbletea model for a run.
type Model struct {
	events   <-chan transfer.Event
	cancel   context.CancelFunc
	order    []string
	rows     map[string]*Row
	logs     []string
	width    int
	stopping bool
	done     bool
}

type eventMsg transfer.Event
type closedMsg struct{}

// New creates a model reading events until the channel is closed. cancel,
// if set, is called when the user asks to stop.
func New(events <-chan transfer.Event, adapters []string, cancel context.CancelFunc) Model {
	m := Model{events: events, cancel: cancel, rows: make(map[string]*Row)}
	for _, a := range adapters {
		m.row(a)
	}
	return m
}

func waitForEvent(events <-chan transfer.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.stopping && m.cancel != nil {
				m.stopping = true
				m.addLog("stopping...")
				m.cancel()
			}
		}
		return m, nil

	case eventMsg:
		m.apply(transfer.Event(msg))
		return m, waitForEvent(m.events)

	case closedMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// row returns the row for adapter, adding it in first-seen order.
func (m *Model) row(adapter string) *Row {
	r, ok := m.rows[adapter]
	if !ok {
		r = &Row{Adapter: adapter, State: "waiting"}
		m.rows[adapter] = r
		m.order = append(m.order, adapter)
	}
	return r
}

func (m *Model) apply(ev transfer.Event) {
	r := m.row(ev.Adapter)
	r.Total = ev.Total
	switch ev.Kind {
	case transfer.EventMessage:
		if ev.Err != nil {
			r.Err = ev.Err
			r.State = "error"
		}
		m.addLog(fmt.Sprintf("[%s] %s", ev.Adapter, ev.Message))
	case transfer.EventConnected:
		r.State = "connected"
		r.Sent = 0
		r.Err = nil
	case transfer.EventItemSent:
		r.State = "sending"
		r.Sent = ev.Sent
	case transfer.EventFinished:
		r.State = "finished"
		r.Sent = ev.Sent
	}
}

func (m *Model) addLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Rows returns adapter rows in the order adapters were first seen.
func (m Model) Rows() []Row {
	out := make([]Row, 0, len(m.order))
	for _, a := range m.order {
		out = append(out, *m.rows[a])
	}
	return out
}

// Done reports whether the event stream has closed.
func (m Model) Done() bool { return m.done }

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Motion Installer"))
	if m.stopping && !m.done {
		sb.WriteString(statusStyle.Render("  stopping"))
	}
	sb.WriteString("\n\n")

	var lines []string
	for _, r := range m.Rows() {
		lines = append(lines, renderRow(r))
	}
	if len(lines) == 0 {
		lines = append(lines, statusStyle.Render("no adapters"))
	}
	sb.WriteString(rowStyle.Render(strings.Join(lines, "\n")))
	sb.WriteString("\n")

	for _, l := range m.logs {
		sb.WriteString(statusStyle.Render(l))
		sb.WriteString("\n")
	}
	if !m.done {
		sb.WriteString(statusStyle.Render("Press 'q' to stop"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderRow(r Row) string {
	state := r.State
	switch r.State {
	case "finished":
		state = doneStyle.Render(state)
	case "error":
		state = errStyle.Render(state)
	}
	return fmt.Sprintf("%-16s %-10s %d/%d", r.Adapter, state, r.Sent, r.Total)
}

// Run shows the live view until events is closed.
func Run(events <-chan transfer.Event, adapters []string, cancel context.CancelFunc) error {
	p := tea.NewProgram(New(events, adapters, cancel))
	_, err := p.Run()
	return err
}
