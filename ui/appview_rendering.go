package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"agentbridge/auth"
	"agentbridge/instance"
	"agentbridge/provider"
)

const maxTabTitleWidth = 20

func (a AppView) renderTitleBar() string {
	left := TitleStyle.Render(a.info.Name)

	// Window controls only exist when the shell handle does
	var right string
	if a.shell.OK {
		maximize := "□"
		if a.shell.Handle.IsMaximized() {
			maximize = "❐"
		}
		right = HelpStyle.Render(fmt.Sprintf("%s ─  %s %s  %s ✕",
			a.keys.Minimize.Help().Key,
			a.keys.ToggleMaximize.Help().Key, maximize,
			a.keys.CloseWindow.Help().Key))
	}

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (a AppView) renderTabs() string {
	current := a.bridge.Current()

	var parts []string
	for _, tab := range a.bridge.Tabs.List() {
		label := " " + truncate(tab.Title, maxTabTitleWidth) + " "
		if tab.ID == current {
			parts = append(parts, ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, DimStyle.Render(label))
		}
	}

	line := strings.Join(parts, DimStyle.Render("│"))
	return lipgloss.NewStyle().
		MaxWidth(a.width).
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor).
		Width(a.width).
		Render(line)
}

func (a AppView) renderFooter() string {
	var status string
	if a.status != "" {
		style := HelpStyle
		if a.statusIsErr {
			style = ErrorStyle
		}
		status = style.Render(truncate(a.status, a.width))
	}

	var help string
	if a.filterMode {
		help = FormatFooter("Type", "to filter", "↑/↓", "Navigate", "Enter", "Select", "Esc", "Cancel")
	} else {
		help = footer(a.keys.Filter, a.keys.Select, a.keys.SetDefault, a.keys.NewMeeting,
			a.keys.NextMeeting, a.keys.CloseMeeting, a.keys.About)
	}

	return lipgloss.JoinVertical(lipgloss.Left, status, help)
}

// visibleProviders is the provider list after the filter.
func (a AppView) visibleProviders() []provider.Provider {
	return a.bridge.Registry.Filter(strings.TrimSpace(a.filterInput.Value()))
}

// activeIndex is the list position of the current meeting's provider.
func (a AppView) activeIndex() int {
	tab, ok := a.bridge.Tabs.Get(a.bridge.Current())
	if !ok {
		return 0
	}
	for i, p := range a.visibleProviders() {
		if p.ID == tab.ActiveProviderID {
			return i
		}
	}
	return 0
}

func (a AppView) renderProviderList(width, height int) string {
	all := a.bridge.Registry.Len()
	list := a.visibleProviders()
	tab, _ := a.bridge.Tabs.Get(a.bridge.Current())

	var header string
	switch {
	case a.filterMode:
		header = a.filterInput.View()
	case len(list) != all:
		header = fmt.Sprintf("Providers (%d of %d)", len(list), all)
	default:
		header = fmt.Sprintf("Providers (%d)", all)
	}

	lines := []string{
		lipgloss.NewStyle().
			Foreground(dimColor).
			Width(width).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(dimColor).
			Render(truncate(header, width)),
	}

	if len(list) == 0 {
		empty := "No providers configured"
		if a.filterInput.Value() != "" {
			empty = "No matches found"
		}
		lines = append(lines, lipgloss.NewStyle().Foreground(dimColor).Italic(true).Render(empty))
		return strings.Join(lines, "\n")
	}

	maxLines := height - 3
	if maxLines < 1 {
		maxLines = 1
	}
	start, end := 0, len(list)
	if len(list) > maxLines {
		switch {
		case a.cursor < maxLines/2:
			end = maxLines
		case a.cursor >= len(list)-maxLines/2:
			start = len(list) - maxLines
		default:
			start = a.cursor - maxLines/2
			end = start + maxLines
		}
	}

	defaultID := ""
	if p, ok := a.bridge.DefaultProvider(); ok {
		defaultID = p.ID
	}

	const badgeWidth = 13
	for i := start; i < end && i < len(list); i++ {
		p := list[i]

		indicator := "  "
		if i == a.cursor {
			indicator = "▶ "
		}
		marker := ""
		if p.ID == defaultID {
			marker = " ★"
		}

		nameWidth := width - runewidth.StringWidth(indicator) - runewidth.StringWidth(marker) - badgeWidth - 1
		name := padRight(truncate(p.DisplayName(), nameWidth)+marker, nameWidth+runewidth.StringWidth(marker))

		badge := ""
		if inst, ok := a.bridge.Instances.Get(tab.ID, p.ID); ok {
			badge = statusBadge(inst.Status)
		}

		style := lipgloss.NewStyle()
		switch {
		case i == a.cursor:
			style = SelectedStyle
		case p.ID == tab.ActiveProviderID:
			style = CurrentStyle
		}
		lines = append(lines, style.Render(indicator+name)+" "+badge)
	}

	return strings.Join(lines, "\n")
}

func (a AppView) renderAuthPanel(width int) string {
	meetingID := a.bridge.Current()
	tab, _ := a.bridge.Tabs.Get(meetingID)

	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(truncate(tab.Title, width)))
	sb.WriteString("\n\n")

	p, err := a.bridge.Binding.ActiveProvider(meetingID)
	if err != nil {
		sb.WriteString(DimStyle.Render("No provider selected."))
		sb.WriteString("\n")
		sb.WriteString(HelpStyle.Render(fmt.Sprintf("Pick one from the list and press %s.", a.keys.Select.Help().Key)))
		return sb.String()
	}

	field := func(label, value string) {
		if value == "" {
			return
		}
		sb.WriteString(DimStyle.Render(label + ": "))
		sb.WriteString(truncate(value, width-runewidth.StringWidth(label)-2))
		sb.WriteString("\n")
	}
	field("Provider", p.DisplayName())
	field("Type", string(p.Type()))
	field("Agent", tab.AgentName)
	field("Voice", a.bridge.Speech.Get(meetingID).VoiceName)
	sb.WriteString("\n")

	inst, _ := a.bridge.Instances.Get(meetingID, p.ID)

	if !p.RequiresAuth() {
		sb.WriteString(DimStyle.Render("No sign-in required."))
		sb.WriteString("\n\n")
		switch inst.Status {
		case instance.StatusConnected:
			sb.WriteString(SelectedStyle.Render("Connected"))
		case instance.StatusError:
			sb.WriteString(ErrorStyle.Render("Connection failed: " + inst.Reason))
		}
		sb.WriteString("\n\n")
		sb.WriteString(footer(a.keys.Connect))
		return sb.String()
	}

	session, ok := a.bridge.Binding.AuthSession(meetingID)
	state := auth.StateIdle
	if ok {
		state = session.State()
	}

	switch state {
	case auth.StateIdle:
		sb.WriteString("Not signed in.")
		sb.WriteString("\n\n")
		sb.WriteString(footer(a.keys.StartAuth))

	case auth.StateAuthenticating:
		if session.UserCode() == "" {
			sb.WriteString(a.spinner.View() + " Requesting a sign-in code...")
			sb.WriteString("\n\n")
			sb.WriteString(footer(a.keys.CancelAuth))
			break
		}
		sb.WriteString("To sign in, open\n")
		sb.WriteString(HighlightStyle.Render(session.VerificationURL()))
		sb.WriteString("\nand enter the code\n")
		sb.WriteString(CodeStyle.Render(session.UserCode()))
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "%s Waiting for sign-in, code expires in %s", a.spinner.View(), formatTimeLeft(session.TimeLeft()))
		sb.WriteString("\n\n")
		sb.WriteString(footer(a.keys.OpenURL, a.keys.CopyCode, a.keys.CancelAuth))

	case auth.StateAuthenticated:
		user := session.Username()
		if user == "" {
			user = "unknown user"
		}
		sb.WriteString(SelectedStyle.Render("Signed in as " + user))
		sb.WriteString("\n\n")
		sb.WriteString(footer(a.keys.SignOut))

	case auth.StateFailed:
		sb.WriteString(ErrorStyle.Render(failureText(session.Reason())))
		if err := session.Err(); err != nil && session.Reason() == auth.ReasonNetwork {
			sb.WriteString("\n")
			sb.WriteString(DimStyle.Render(truncate(err.Error(), width)))
		}
		sb.WriteString("\n\n")
		sb.WriteString(footer(a.keys.StartAuth))
	}

	return sb.String()
}

func failureText(reason auth.FailureReason) string {
	switch reason {
	case auth.ReasonExpired:
		return "The sign-in code expired. Start again for a new code."
	case auth.ReasonDenied:
		return "Sign-in was declined."
	case auth.ReasonNetwork:
		return "Sign-in failed: the identity service could not be reached."
	default:
		return "Sign-in failed."
	}
}

// formatTimeLeft renders a countdown as m:ss.
func formatTimeLeft(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
