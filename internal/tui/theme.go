package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	panel       lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
	timestamp   lipgloss.Style
	badgeUp     lipgloss.Style
	badgeDown   lipgloss.Style
	explanation lipgloss.Style
	senders     map[string]lipgloss.Style
}

func newTheme() theme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	yellow := lipgloss.Color("#ffd166")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		root: lipgloss.NewStyle().Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(text).
			Bold(true).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		footer:      lipgloss.NewStyle().Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		timestamp:   lipgloss.NewStyle().Foreground(muted),
		badgeUp:     lipgloss.NewStyle().Foreground(lipgloss.Color("#22062f")).Background(mint).Padding(0, 1),
		badgeDown:   lipgloss.NewStyle().Foreground(text).Background(lipgloss.Color("#5c2a4a")).Padding(0, 1),
		explanation: lipgloss.NewStyle().Foreground(yellow).Italic(true),
		senders: map[string]lipgloss.Style{
			"user":       lipgloss.NewStyle().Foreground(mint).Bold(true),
			"system":     lipgloss.NewStyle().Foreground(muted).Bold(true),
			"supervisor": lipgloss.NewStyle().Foreground(blue).Bold(true),
			"agent1":     lipgloss.NewStyle().Foreground(pink).Bold(true),
			"agent2":     lipgloss.NewStyle().Foreground(yellow).Bold(true),
		},
	}
}

func (t theme) sender(name string) lipgloss.Style {
	if s, ok := t.senders[name]; ok {
		return s
	}
	return lipgloss.NewStyle().Bold(true)
}
