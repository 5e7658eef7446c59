// Package watch is a terminal monitor for the gateway: it tails the admin
// API's live event feed and shows recent inbound messages and reply outcomes.
package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"instagate/internal/events"
)

const maxLogRows = 100

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	typeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Width(16)
	statusStyle = lipgloss.NewStyle().Width(12)
)

type logRow struct {
	at      time.Time
	feed    string // feed event type
	eventID string
	detail  string
}

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	connected bool
	health    healthMsg
	rows      []logRow
	lastError string

	spinner   spinner.Model
	hubEvents chan events.Event
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	return Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		rows:      make([]logRow, 0, maxLogRows),
		hubEvents: make(chan events.Event, 100),
		spinner:   sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		m.spinner.Tick,
		tea.Tick(5*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(
			func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
			tea.Tick(5*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case healthMsg:
		m.health = msg
		m.lastError = ""

	case eventMsg:
		m.connected = true
		m.lastError = ""
		m.rows = append([]logRow{newLogRow(events.Event(msg))}, m.rows...)
		if len(m.rows) > maxLogRows {
			m.rows = m.rows[:maxLogRows]
		}
		return m, receiveNextEvent(m.hubEvents)

	case sseDisconnectedMsg:
		m.connected = false
		return m, reconnectAfter(2 * time.Second)

	case reconnectMsg:
		return m, tea.Batch(
			subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
			receiveNextEvent(m.hubEvents),
		)

	case errMsg:
		m.lastError = msg.Error()
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	status := failStyle.Render("disconnected")
	if m.connected {
		status = okStyle.Render("live")
	}
	b.WriteString(fmt.Sprintf("%s %s  %s  %s\n\n",
		m.spinner.View(),
		titleStyle.Render("instagate watch"),
		status,
		dimStyle.Render(fmt.Sprintf("uptime %ds", m.health.UptimeSeconds)),
	))

	if m.lastError != "" {
		b.WriteString(failStyle.Render("error: "+m.lastError) + "\n\n")
	}

	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("waiting for events...") + "\n")
		return b.String()
	}

	visible := m.rows
	if max := m.height - 6; max > 0 && len(visible) > max {
		visible = visible[:max]
	}

	for _, row := range visible {
		style := statusStyle
		switch row.feed {
		case events.TypeReplyFailed:
			style = style.Inherit(failStyle)
		case events.TypeReplySent:
			style = style.Inherit(okStyle)
		}
		b.WriteString(fmt.Sprintf("%s %s %s %s\n",
			dimStyle.Render(row.at.Format("15:04:05")),
			typeStyle.Render(row.feed),
			style.Render(row.eventID),
			row.detail,
		))
	}

	return b.String()
}

func newLogRow(ev events.Event) logRow {
	row := logRow{at: ev.At, feed: ev.Type}

	var data map[string]any
	if err := json.Unmarshal(ev.Data, &data); err == nil {
		if v, ok := data["event_id"].(string); ok {
			row.eventID = v
		}
		if v, ok := data["sender_id"].(string); ok {
			row.detail = "from " + v
		}
		if v, ok := data["error_detail"].(string); ok && v != "" {
			row.detail = v
		}
	}
	return row
}
