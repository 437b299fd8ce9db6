package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/bxt-launcher/internal/events"
)

const (
	eventLogSize   = 50
	reconnectDelay = 2 * time.Second
	healthInterval = 5 * time.Second
)

type launchRow struct {
	id        string
	profile   string
	state     string
	module    string
	pid       uint32
	errorKind string
	firstSeen time.Time
	elapsed   time.Duration
}

// Watch follows every launch of a running `system serve` over its event stream.
type Watch struct {
	apiURL string
	apiKey string
	ctx    context.Context
	cancel context.CancelFunc

	width  int
	height int

	theme     Theme
	launches  map[string]*launchRow
	eventLog  []events.Event
	hubEvents chan events.Event
	table     table.Model
	health    healthMsg
	lastError string
}

func NewWatch(apiURL, apiKey string) *Watch {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Launch", Width: 10},
			{Title: "Profile", Width: 14},
			{Title: "State", Width: 16},
			{Title: "Module", Width: 18},
			{Title: "PID", Width: 8},
			{Title: "Elapsed", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	ctx, cancel := context.WithCancel(context.Background())
	return &Watch{
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		ctx:       ctx,
		cancel:    cancel,
		theme:     NewDefaultTheme(),
		launches:  make(map[string]*launchRow),
		hubEvents: make(chan events.Event, 100),
		table:     t,
	}
}

func (m *Watch) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.ctx, m.apiURL, m.apiKey, m.hubEvents),
		waitForEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
		tea.EnterAltScreen,
	)
}

func (m *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))

	case eventMsg:
		m.apply(events.Event(msg))
		m.refreshTable()
		return m, waitForEvent(m.hubEvents)

	case healthMsg:
		m.health = msg
		return m, tea.Tick(healthInterval, func(time.Time) tea.Msg { return fetchHealth(m.apiURL) })

	case reconnectMsg:
		m.lastError = "event stream disconnected, retrying"
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
			return subscribeToEvents(m.ctx, m.apiURL, m.apiKey, m.hubEvents)()
		})

	case errMsg:
		m.lastError = msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Watch) apply(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[:eventLogSize]
	}

	switch e.Type {
	case events.TypeTransition:
		var d events.TransitionData
		if err := e.Decode(&d); err != nil {
			return
		}
		row := m.row(d.LaunchID, e.At)
		row.state = d.To
		row.module = d.Module
		row.elapsed = time.Duration(d.ElapsedMS) * time.Millisecond
		if d.PID != 0 {
			row.pid = d.PID
		}
		row.errorKind = d.ErrorKind
	case events.TypeCompleted:
		var d events.CompletedData
		if err := e.Decode(&d); err != nil {
			return
		}
		row := m.row(d.LaunchID, e.At)
		row.profile = d.Profile
		row.state = d.Status
		row.module = ""
		row.errorKind = d.ErrorKind
		if d.PID != 0 {
			row.pid = d.PID
		}
	}
}

func (m *Watch) row(id string, at time.Time) *launchRow {
	r, ok := m.launches[id]
	if !ok {
		r = &launchRow{id: id, firstSeen: at}
		m.launches[id] = r
	}
	return r
}

func (m *Watch) refreshTable() {
	rows := make([]*launchRow, 0, len(m.launches))
	for _, r := range m.launches {
		rows = append(rows, r)
	}
	// Newest first.
	sort.Slice(rows, func(i, j int) bool { return rows[i].firstSeen.After(rows[j].firstSeen) })

	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		id := r.id
		if len(id) > 8 {
			id = id[:8]
		}
		state := r.state
		if r.errorKind != "" {
			state += " (" + r.errorKind + ")"
		}
		module := "-"
		if r.module != "" {
			module = filepath.Base(r.module)
		}
		pid := "-"
		if r.pid != 0 {
			pid = fmt.Sprint(r.pid)
		}
		out = append(out, table.Row{id, r.profile, state, module, pid, r.elapsed.Round(time.Millisecond).String()})
	}
	m.table.SetRows(out)
}

func (m *Watch) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	inner := m.width - 4

	status := m.theme.StatusOK.Render("CONNECTED")
	if m.health.Status != "ok" {
		status = m.theme.StatusFailed.Render("UNREACHABLE")
	}
	header := m.theme.Border.Width(inner).Render(fmt.Sprintf("Server: %s   %s   Uptime: %s",
		m.apiURL, status, (time.Duration(m.health.UptimeSeconds) * time.Second).String()))

	launches := m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("LAUNCHES"),
		m.table.View(),
	))

	eventsView := m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("EVENT STREAM"),
		m.renderEvents(),
	))

	footer := m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll")
	if m.lastError != "" {
		footer = m.theme.StatusFailed.Render(" "+m.lastError) + "\n" + footer
	}

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, launches, eventsView, footer),
	)
}

func (m *Watch) renderEvents() string {
	if len(m.eventLog) == 0 {
		return m.theme.Dim.Render("  Waiting for events...")
	}
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			m.theme.Dim.Render(e.At.Format("15:04:05")),
			m.theme.Highlight.Render(fmt.Sprintf("%-18s", e.Type)),
			describeEvent(e)))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func describeEvent(e events.Event) string {
	switch e.Type {
	case events.TypeTransition:
		var d events.TransitionData
		if e.Decode(&d) == nil {
			return fmt.Sprintf("[%.8s] %s -> %s", d.LaunchID, d.From, d.To)
		}
	case events.TypeCompleted:
		var d events.CompletedData
		if e.Decode(&d) == nil {
			return fmt.Sprintf("[%.8s] %s %s", d.LaunchID, d.Profile, d.Status)
		}
	}
	raw := string(e.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return raw
}
