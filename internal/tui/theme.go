// Package tui holds the terminal front ends: the profile picker, the local
// launch progress view and the remote launch watcher.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme keeps every colour used by the views in one place.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusPending lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Selected  lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Selected:  lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
	}
}

// stateStyle picks the colour for a launch state name.
func (t Theme) stateStyle(state string) lipgloss.Style {
	switch state {
	case "done", "succeeded":
		return t.StatusOK
	case "failed":
		return t.StatusFailed
	case "idle", "":
		return t.StatusPending
	default:
		return t.StatusRunning
	}
}
