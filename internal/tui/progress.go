package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/bxt-launcher/internal/events"
)

type eventMsg events.Event

type streamClosedMsg struct{}

// waitForEvent reads the next hub event from ch.
func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

type progressStep struct {
	state   string
	module  string
	elapsed time.Duration
}

// Progress follows one local launch through its states and exits when the
// launch completes. ctrl+c cancels the launch and waits for the rollback.
type Progress struct {
	launchID string
	profile  string
	ch       <-chan events.Event
	cancel   func()

	spinner   spinner.Model
	theme     Theme
	steps     []progressStep
	completed *events.CompletedData
	canceling bool
}

func NewProgress(launchID, profile string, ch <-chan events.Event, cancel func()) *Progress {
	s := spinner.New()
	s.Spinner = spinner.Dot
	theme := NewDefaultTheme()
	s.Style = theme.Highlight

	return &Progress{
		launchID: launchID,
		profile:  profile,
		ch:       ch,
		cancel:   cancel,
		spinner:  s,
		theme:    theme,
	}
}

func (m *Progress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.ch))
}

func (m *Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.canceling {
			m.canceling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case eventMsg:
		if m.apply(events.Event(msg)) {
			return m, tea.Quit
		}
		return m, waitForEvent(m.ch)

	case streamClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply records ev and reports whether the launch has completed.
func (m *Progress) apply(ev events.Event) bool {
	switch ev.Type {
	case events.TypeTransition:
		var d events.TransitionData
		if err := ev.Decode(&d); err != nil || d.LaunchID != m.launchID {
			return false
		}
		m.steps = append(m.steps, progressStep{
			state:   d.To,
			module:  d.Module,
			elapsed: time.Duration(d.ElapsedMS) * time.Millisecond,
		})
	case events.TypeCompleted:
		var d events.CompletedData
		if err := ev.Decode(&d); err != nil || d.LaunchID != m.launchID {
			return false
		}
		m.completed = &d
		return true
	}
	return false
}

// Completed returns the final outcome once the launch finished.
func (m *Progress) Completed() (events.CompletedData, bool) {
	if m.completed == nil {
		return events.CompletedData{}, false
	}
	return *m.completed, true
}

func (m *Progress) View() string {
	var b strings.Builder
	b.WriteString(m.theme.Title.Render(fmt.Sprintf("Launching %s", m.profile)))
	b.WriteString("\n\n")

	for _, s := range m.steps {
		line := fmt.Sprintf("  %-16s", s.state)
		if s.module != "" {
			line += " " + filepath.Base(s.module)
		}
		line = m.theme.stateStyle(s.state).Render(line)
		b.WriteString(line + m.theme.Dim.Render(fmt.Sprintf("  +%s", s.elapsed)) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.completed != nil && m.completed.Status == "succeeded":
		b.WriteString(m.theme.StatusOK.Render(fmt.Sprintf("  Game running (pid %d) after %s", m.completed.PID, m.completed.Duration)))
	case m.completed != nil:
		b.WriteString(m.theme.StatusFailed.Render(fmt.Sprintf("  Launch failed [%s]: %s", m.completed.ErrorKind, m.completed.Error)))
	case m.canceling:
		b.WriteString(fmt.Sprintf("  %s Cancelling...", m.spinner.View()))
	default:
		b.WriteString(fmt.Sprintf("  %s Waiting... %s", m.spinner.View(), m.theme.Dim.Render("[ctrl+c] cancel")))
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(b.String()) + "\n"
}
