package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/bxt-launcher/internal/config"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle  = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle        = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle    = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type profileItem struct {
	index   int
	profile config.Profile
	current bool
}

func (i profileItem) Title() string {
	mark := " "
	if i.current {
		mark = "*"
	}
	return fmt.Sprintf("%s %d. %s", mark, i.index, i.profile.Name)
}

func (i profileItem) Description() string {
	exe := i.profile.HLExe
	if exe == "" {
		exe = "(no hl.exe set)"
	}
	return fmt.Sprintf("%s  bxt:%s bxt-rs:%s", exe, onOff(i.profile.EnableBXT), onOff(i.profile.EnableBXTRS))
}

func (i profileItem) FilterValue() string { return i.profile.Name }

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Picker lets the user choose a profile. Enter selects, q cancels.
type Picker struct {
	list     list.Model
	chosen   int
	quitting bool
	done     bool

	// initial is selected once the list knows its size.
	initial int
	sized   bool
}

func NewPicker(cfg *config.Config) *Picker {
	items := make([]list.Item, 0, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		items = append(items, profileItem{index: i, profile: p, current: i == cfg.CurrentProfile})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select a profile (Enter to choose, q to cancel)"
	l.Styles.Title = pickerTitleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle
	initial := 0
	if cfg.CurrentProfile >= 0 && cfg.CurrentProfile < len(items) {
		initial = cfg.CurrentProfile
	}

	return &Picker{list: l, chosen: -1, initial: initial}
}

func (m *Picker) Init() tea.Cmd {
	return nil
}

func (m *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		if !m.sized {
			m.list.Select(m.initial)
			m.sized = true
		}
		return m, nil

	case tea.KeyMsg:
		// Let the filter input have q and enter while filtering.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if it, ok := m.list.SelectedItem().(profileItem); ok {
				m.chosen = it.index
				m.done = true
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Picker) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		return quitTextStyle.Render(fmt.Sprintf("Selected profile %d.", m.chosen))
	}
	return "\n" + m.list.View()
}

// Chosen returns the selected profile index, or false when cancelled.
func (m *Picker) Chosen() (int, bool) {
	return m.chosen, m.done
}
