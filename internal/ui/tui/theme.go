package tui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Card     lipgloss.Style
	FailCard lipgloss.Style

	OK      lipgloss.Style
	Fail    lipgloss.Style
	Pending lipgloss.Style
	Active  lipgloss.Style
}

func DefaultTheme() Theme {
	card := lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63"))

	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtitle: lipgloss.NewStyle().Faint(true),
		Help:     lipgloss.NewStyle().Faint(true),
		Card:     card,
		FailCard: card.BorderForeground(lipgloss.Color("160")),
		OK:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Fail:     lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true),
		Pending:  lipgloss.NewStyle().Faint(true),
		Active:   lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
	}
}
