package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// renderModal draws the borderless three-section modal: a centered title,
// the message between two rules and a footer line.
func renderModal(title string, titleColor lipgloss.Color, message, footerText string, width, height int) string {
	modalWidth := 60
	if width < modalWidth+10 {
		modalWidth = width - 10
	}

	// Centered by hand: lipgloss miscounts some emoji
	titleWidth := runewidth.StringWidth(title)
	leftPad := (modalWidth - titleWidth) / 2
	if leftPad < 0 {
		leftPad = 0
	}
	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		Render(padRight(strings.Repeat(" ", leftPad)+title, modalWidth))

	messageStyle := lipgloss.NewStyle().
		Width(modalWidth).
		Align(lipgloss.Center)

	lines := []string{strings.Repeat(" ", modalWidth)}
	for _, line := range strings.Split(message, "\n") {
		lines = append(lines, messageStyle.Render(line))
	}
	lines = append(lines, strings.Repeat(" ", modalWidth))

	messageSection := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(strings.Join(lines, "\n"))

	footerSection := lipgloss.NewStyle().
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Render(footerText)

	content := strings.Join([]string{titleSection, messageSection, footerSection}, "\n")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func tooSmall(width, height int) bool {
	return width < 20 || height < 10
}
