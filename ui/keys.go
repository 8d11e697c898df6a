package ui

import (
	"github.com/charmbracelet/bubbles/key"

	"agentbridge/config"
)

// keyMap holds the bindings resolved from keybindings.toml.
type keyMap struct {
	Quit key.Binding

	Minimize       key.Binding
	ToggleMaximize key.Binding
	CloseWindow    key.Binding

	NewMeeting   key.Binding
	NextMeeting  key.Binding
	CloseMeeting key.Binding

	Down       key.Binding
	Up         key.Binding
	Select     key.Binding
	Filter     key.Binding
	SetDefault key.Binding

	StartAuth  key.Binding
	CancelAuth key.Binding
	OpenURL    key.Binding
	CopyCode   key.Binding
	Connect    key.Binding
	SignOut    key.Binding

	About      key.Binding
	CloseAbout key.Binding
}

func newKeyMap(kb *config.KeyBindingsConfig) keyMap {
	if kb == nil {
		kb = config.DefaultKeybindings()
	}

	bind := func(action, help string, extra ...string) key.Binding {
		return key.NewBinding(
			key.WithKeys(append([]string{kb.GetActionKey(action)}, extra...)...),
			key.WithHelp(kb.DisplayActionKey(action), help),
		)
	}

	return keyMap{
		Quit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("Ctrl+C", "quit")),

		Minimize:       bind("minimize", "minimize"),
		ToggleMaximize: bind("toggle_maximize", "maximize"),
		CloseWindow:    bind("close_window", "close"),

		NewMeeting:   bind("new_meeting", "new meeting"),
		NextMeeting:  bind("next_meeting", "next meeting"),
		CloseMeeting: bind("close_meeting", "close meeting"),

		Down:       bind("provider_down", "down", "down"),
		Up:         bind("provider_up", "up", "up"),
		Select:     bind("select_provider", "select"),
		Filter:     bind("filter_providers", "filter"),
		SetDefault: bind("set_default", "default"),

		StartAuth:  bind("start_auth", "sign in"),
		CancelAuth: bind("cancel_auth", "cancel"),
		OpenURL:    bind("open_url", "open link"),
		CopyCode:   bind("copy_code", "copy code"),
		Connect:    bind("connect", "connect"),
		SignOut:    bind("sign_out", "sign out"),

		About:      bind("about", "about"),
		CloseAbout: bind("close_about", "close"),
	}
}

// footer renders bindings as "Key description" pairs.
func footer(bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings)*2)
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key, h.Desc)
	}
	return FormatFooter(parts...)
}
