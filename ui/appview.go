// Package ui is the terminal front end: meeting tabs, the provider
// selector and the sign-in panel.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentbridge/bridge"
	"agentbridge/config"
	"agentbridge/shell"
)

// clockTickMsg refreshes the device-code countdown.
type clockTickMsg time.Time

// shellResultMsg carries the outcome of a window operation.
type shellResultMsg struct {
	op  string
	err error
}

// defaultSetMsg reports a default provider change.
type defaultSetMsg struct {
	providerID string
	err        error
}

// actionResultMsg carries the outcome of a browser or clipboard action.
type actionResultMsg struct {
	action string
	err    error
}

type AppView struct {
	bridge *bridge.Bridge
	shell  shell.Option
	keys   keyMap
	info   config.AppInfo

	width  int
	height int

	cursor      int // provider list position
	filterMode  bool
	filterInput textinput.Model

	spinner   spinner.Model
	spinning  bool
	showAbout bool

	status      string
	statusIsErr bool
}

func NewAppView(b *bridge.Bridge, sh shell.Option, kb *config.KeyBindingsConfig, info config.AppInfo) AppView {
	ti := textinput.New()
	ti.Placeholder = "Filter providers..."
	ti.CharLimit = 64
	ti.Prompt = "/ "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(warningColor)

	a := AppView{
		bridge:      b,
		shell:       sh,
		keys:        newKeyMap(kb),
		info:        info,
		filterInput: ti,
		spinner:     sp,
	}
	a.cursor = a.activeIndex()

	if n := len(b.LoadErrors); n > 0 {
		a.setError(fmt.Sprintf("Skipped %d provider(s) with invalid settings, see config.toml", n))
	}
	return a
}

func (a AppView) Init() tea.Cmd {
	return clockTick()
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg(t)
	})
}

func (a AppView) View() string {
	if a.width == 0 {
		return "Loading..."
	}
	if tooSmall(a.width, a.height) {
		return "Terminal too small"
	}
	if a.showAbout {
		return a.renderAbout()
	}

	header := lipgloss.JoinVertical(lipgloss.Left, a.renderTitleBar(), a.renderTabs())
	footerLine := a.renderFooter()

	bodyHeight := a.height - lipgloss.Height(header) - lipgloss.Height(footerLine)
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	listWidth := a.width * 2 / 5
	if listWidth < 24 {
		listWidth = 24
	}
	if listWidth > a.width-20 {
		listWidth = a.width - 20
	}
	panelWidth := a.width - listWidth - 1

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listWidth).Height(bodyHeight).Render(a.renderProviderList(listWidth, bodyHeight)),
		lipgloss.NewStyle().
			Width(panelWidth).
			Height(bodyHeight).
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(dimColor).
			PaddingLeft(1).
			Render(a.renderAuthPanel(panelWidth-2)),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footerLine)
}
