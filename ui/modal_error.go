package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ErrorModal is a standalone program for errors that happen before the main
// view can start, such as an unreadable config file.
type ErrorModal struct {
	title   string
	message string
	width   int
	height  int
}

func NewErrorModal(title, message string) ErrorModal {
	return ErrorModal{
		title:   title,
		message: message,
	}
}

func (m ErrorModal) Init() tea.Cmd {
	return nil
}

func (m ErrorModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m ErrorModal) View() string {
	if tooSmall(m.width, m.height) {
		return "Terminal too small"
	}
	return renderModal(m.title, dangerColor, m.message, "Press Enter to quit", m.width, m.height)
}
