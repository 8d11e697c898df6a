package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"agentbridge/auth"
	"agentbridge/config"
	"agentbridge/meeting"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// Device-code flow messages belong to the binding
	if cmd := a.bridge.Binding.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.filterInput.Width = a.width/2 - 6

	case spinner.TickMsg:
		if !a.authenticating() {
			a.spinning = false
			break
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case clockTickMsg:
		cmds = append(cmds, clockTick())
		if a.authenticating() && !a.spinning {
			a.spinning = true
			cmds = append(cmds, a.spinner.Tick)
		}

	case meeting.ConnectedMsg:
		if msg.Err != nil {
			a.setError(fmt.Sprintf("Could not connect to %s: %v", msg.ProviderID, msg.Err))
		} else {
			a.setStatus("Connected to " + msg.ProviderID)
		}

	case shellResultMsg:
		// Window operations are best effort
		if msg.err != nil && config.Debug {
			config.DebugLog.Printf("[UI] Shell %s failed: %v", msg.op, msg.err)
		}

	case actionResultMsg:
		if msg.err != nil {
			a.setError(fmt.Sprintf("Could not %s: %v", msg.action, msg.err))
		}

	case defaultSetMsg:
		if msg.err != nil {
			a.setError(fmt.Sprintf("Could not save default provider: %v", msg.err))
			break
		}
		a.setStatus("Default provider for new meetings: " + msg.providerID)

	case tea.KeyMsg:
		var cmd tea.Cmd
		a, cmd = a.handleKey(msg)
		cmds = append(cmds, cmd)
	}

	a.bridge.Binding.Reconcile(a.bridge.Current())
	return a, tea.Batch(cmds...)
}

// authenticating reports whether the current meeting has a sign-in running.
func (a AppView) authenticating() bool {
	s, ok := a.bridge.Binding.AuthSession(a.bridge.Current())
	return ok && s.State() == auth.StateAuthenticating
}

func (a *AppView) setStatus(s string) {
	a.status = s
	a.statusIsErr = false
}

func (a *AppView) setError(s string) {
	a.status = s
	a.statusIsErr = true
	if config.Debug {
		config.DebugLog.Printf("[UI] %s", s)
	}
}

func (a AppView) handleKey(msg tea.KeyMsg) (AppView, tea.Cmd) {
	if key.Matches(msg, a.keys.Quit) {
		return a, tea.Quit
	}

	if a.showAbout {
		if key.Matches(msg, a.keys.CloseAbout, a.keys.About) {
			a.showAbout = false
		}
		return a, nil
	}

	if a.filterMode {
		return a.handleFilterKey(msg)
	}

	meetingID := a.bridge.Current()

	switch {
	case key.Matches(msg, a.keys.Minimize):
		return a, a.shellCmd("minimize")
	case key.Matches(msg, a.keys.ToggleMaximize):
		return a, a.shellCmd("toggle maximize")
	case key.Matches(msg, a.keys.CloseWindow):
		return a, a.shellCmd("close")

	case key.Matches(msg, a.keys.NewMeeting):
		tab := a.bridge.OpenMeeting("")
		if err := a.bridge.SetCurrent(tab.ID); err != nil {
			a.setError(err.Error())
			break
		}
		a.cursor = a.activeIndex()
		a.setStatus("Opened " + tab.Title)

	case key.Matches(msg, a.keys.NextMeeting):
		a.switchMeeting(1)

	case key.Matches(msg, a.keys.CloseMeeting):
		tab, _ := a.bridge.Tabs.Get(meetingID)
		if !a.bridge.CloseMeeting(meetingID) {
			a.setError("The last meeting cannot be closed")
			break
		}
		a.cursor = a.activeIndex()
		a.setStatus("Closed " + tab.Title)

	case key.Matches(msg, a.keys.Down):
		a.moveCursor(1)
	case key.Matches(msg, a.keys.Up):
		a.moveCursor(-1)

	case key.Matches(msg, a.keys.Filter):
		a.filterMode = true
		a.cursor = 0
		return a, a.filterInput.Focus()

	case key.Matches(msg, a.keys.Select):
		a.selectUnderCursor()

	case key.Matches(msg, a.keys.SetDefault):
		list := a.visibleProviders()
		if a.cursor >= len(list) {
			break
		}
		return a, a.setDefaultCmd(list[a.cursor].ID)

	case key.Matches(msg, a.keys.StartAuth):
		cmd := a.bridge.Binding.StartAuth(meetingID)
		if cmd == nil {
			if p, err := a.bridge.Binding.ActiveProvider(meetingID); err == nil && !p.RequiresAuth() {
				a.setStatus(p.DisplayName() + " needs no sign-in")
			}
			break
		}
		a.setStatus("")
		if a.spinning {
			return a, cmd
		}
		a.spinning = true
		return a, tea.Batch(cmd, a.spinner.Tick)

	case key.Matches(msg, a.keys.CancelAuth):
		if a.bridge.Binding.CancelAuth(meetingID) {
			a.setStatus("Sign-in cancelled")
		}

	case key.Matches(msg, a.keys.OpenURL):
		if s, ok := a.bridge.Binding.AuthSession(meetingID); ok {
			return a, actionCmd("open the sign-in page", s.OpenVerificationURL)
		}

	case key.Matches(msg, a.keys.CopyCode):
		if s, ok := a.bridge.Binding.AuthSession(meetingID); ok {
			a.setStatus("Code copied to clipboard")
			return a, actionCmd("copy the code", s.CopyUserCode)
		}

	case key.Matches(msg, a.keys.Connect):
		p, err := a.bridge.Binding.ActiveProvider(meetingID)
		if err != nil || p.RequiresAuth() {
			break
		}
		a.setStatus("Connecting to " + p.DisplayName() + "...")
		return a, a.bridge.Binding.ConnectCmd(meetingID)

	case key.Matches(msg, a.keys.SignOut):
		if a.bridge.Binding.SignOut(meetingID) {
			a.setStatus("Signed out")
		}

	case key.Matches(msg, a.keys.About):
		a.showAbout = true
	}

	return a, nil
}

func (a AppView) handleFilterKey(msg tea.KeyMsg) (AppView, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.clearFilter()
		return a, nil
	case tea.KeyEnter:
		a.selectUnderCursor()
		return a, nil
	case tea.KeyUp:
		a.moveCursor(-1)
		return a, nil
	case tea.KeyDown:
		a.moveCursor(1)
		return a, nil
	}

	var cmd tea.Cmd
	a.filterInput, cmd = a.filterInput.Update(msg)
	a.cursor = 0
	return a, cmd
}

func (a *AppView) clearFilter() {
	a.filterMode = false
	a.filterInput.Blur()
	a.filterInput.SetValue("")
	a.cursor = a.activeIndex()
}

func (a *AppView) moveCursor(delta int) {
	n := len(a.visibleProviders())
	if n == 0 {
		a.cursor = 0
		return
	}
	a.cursor = (a.cursor + delta + n) % n
}

func (a *AppView) switchMeeting(delta int) {
	tabs := a.bridge.Tabs.List()
	if len(tabs) < 2 {
		return
	}
	i := a.bridge.Tabs.Index(a.bridge.Current())
	next := tabs[(i+delta+len(tabs))%len(tabs)]
	if err := a.bridge.SetCurrent(next.ID); err != nil {
		a.setError(err.Error())
		return
	}
	a.cursor = a.activeIndex()
}

// selectUnderCursor binds the highlighted provider to the current meeting
// and picks up a sign-in saved by an earlier run.
func (a *AppView) selectUnderCursor() {
	list := a.visibleProviders()
	if a.cursor >= len(list) {
		return
	}
	p := list[a.cursor]
	meetingID := a.bridge.Current()

	if err := a.bridge.Binding.SelectProvider(meetingID, p.ID); err != nil {
		a.setError(err.Error())
		return
	}
	a.bridge.Binding.RestoreAuth(context.Background(), meetingID)

	if a.filterMode {
		a.clearFilter()
	}
	a.cursor = a.activeIndex()

	tab, _ := a.bridge.Tabs.Get(meetingID)
	a.setStatus(fmt.Sprintf("%s now answers as %q", p.DisplayName(), tab.AgentName))
}

// shellCmd runs a window operation off the update loop; the handle sends
// messages back to the program. Without a handle it does nothing.
func (a AppView) shellCmd(op string) tea.Cmd {
	if !a.shell.OK {
		return nil
	}
	h := a.shell.Handle
	return func() tea.Msg {
		var err error
		switch op {
		case "minimize":
			err = h.Minimize()
		case "toggle maximize":
			err = h.ToggleMaximize()
		case "close":
			err = h.Close()
		}
		return shellResultMsg{op: op, err: err}
	}
}

func actionCmd(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: action, err: fn()}
	}
}

func (a AppView) setDefaultCmd(providerID string) tea.Cmd {
	b := a.bridge
	return func() tea.Msg {
		return defaultSetMsg{providerID: providerID, err: b.SetDefaultProvider(providerID)}
	}
}
