package ui

import (
	"fmt"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"agentbridge/config"
)

const GitHubURL = "github.com/agentbridge/agentbridge"

// aboutMarkdown describes the build as a markdown document.
func aboutMarkdown(info config.AppInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", info.Name)
	fmt.Fprintf(&sb, "%s\n\n", info.Description)
	fmt.Fprintf(&sb, "- **Version:** %s\n", info.Version)
	fmt.Fprintf(&sb, "- **Platform:** %s/%s\n", info.Platform, info.Arch)
	fmt.Fprintf(&sb, "- **Source:** %s\n", GitHubURL)
	return sb.String()
}

// renderMarkdown renders md for a terminal of the given width. Autolinks
// are off so the terminal can detect plain URLs itself.
func renderMarkdown(md string, width int) string {
	if width < 20 {
		width = 20
	}
	ext := markdown.Extensions() &^ parser.Autolink
	p := parser.NewWithExtensions(ext)
	doc := p.Parse([]byte(md))
	return strings.TrimRight(string(gomarkdown.Render(doc, markdown.NewRenderer(width, 0))), "\n")
}

func (a AppView) renderAbout() string {
	contentWidth := a.width - 10
	if contentWidth > 70 {
		contentWidth = 70
	}

	var sb strings.Builder
	sb.WriteString(renderMarkdown(aboutMarkdown(a.info), contentWidth))
	sb.WriteString("\n\n")
	sb.WriteString(HelpStyle.Render(fmt.Sprintf("Press %s to close", a.keys.CloseAbout.Help().Key)))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2)

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(sb.String()))
}
