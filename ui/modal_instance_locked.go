package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// InstanceLockedModal is shown when another Agent Bridge holds the data
// directory lock. The user either exits or removes the stale lock.
type InstanceLockedModal struct {
	runningPID  int
	width       int
	height      int
	forceDelete bool
}

func NewInstanceLockedModal(runningPID int) InstanceLockedModal {
	return InstanceLockedModal{runningPID: runningPID}
}

func (m InstanceLockedModal) Init() tea.Cmd {
	return nil
}

func (m InstanceLockedModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "esc", "ctrl+c":
			return m, tea.Quit
		case "d", "D":
			m.forceDelete = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// ForceDelete reports whether the user chose to delete the lock file.
func (m InstanceLockedModal) ForceDelete() bool {
	return m.forceDelete
}

func (m InstanceLockedModal) View() string {
	if tooSmall(m.width, m.height) {
		return "Terminal too small"
	}

	message := fmt.Sprintf(
		"Another Agent Bridge is already running (PID %d).\n\n"+
			"Both would sign in and save meetings in the same\n"+
			"data directory. Close the other instance, or start\n"+
			"this one with --data-dir pointing somewhere else.\n\n"+
			"If the other instance crashed, press D to delete\n"+
			"the lock file and continue.",
		m.runningPID)

	return renderModal("⚠️  Agent Bridge Already Running  ⚠️", dangerColor, message,
		"Enter Exit │ D Force delete lock file", m.width, m.height)
}
