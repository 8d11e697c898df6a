package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"agentbridge/instance"
)

var (
	dimColor       = lipgloss.Color("7")
	accentColor    = lipgloss.Color("12")
	successColor   = lipgloss.Color("10")
	warningColor   = lipgloss.Color("11")
	dangerColor    = lipgloss.Color("9")
	highlightColor = lipgloss.Color("13")

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	// Active meeting tab
	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Underline(true)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	CurrentStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	// User code in the auth panel
	CodeStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warningColor)
)

// statusBadge renders an instance status for the provider list.
func statusBadge(status instance.Status) string {
	switch status {
	case instance.StatusConnected:
		return lipgloss.NewStyle().Foreground(successColor).Render("● connected")
	case instance.StatusAuthenticating:
		return lipgloss.NewStyle().Foreground(warningColor).Render("◌ signing in")
	case instance.StatusError:
		return lipgloss.NewStyle().Foreground(dangerColor).Render("✕ error")
	case instance.StatusIdle:
		return DimStyle.Render("○ idle")
	default:
		return ""
	}
}

// truncate shortens s to width terminal cells, ending with "...".
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

// padRight fills s with spaces up to width terminal cells.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// FormatFooter formats a footer string with alternating keys and descriptions.
// Usage: FormatFooter("j/k", "Navigate", "Enter", "Select")
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i < len(parts); i += 2 {
		if i+1 < len(parts) {
			result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
		}
	}
	return strings.Join(result, "  ")
}
