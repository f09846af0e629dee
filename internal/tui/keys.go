package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keybindings for the compose UI. Plain keys are typed
// into the message, so every action sits behind a modifier.
type keyMap struct {
	// Actions
	Send    key.Binding
	Layout  key.Binding
	Refresh key.Binding
	Preview key.Binding
	Clear   key.Binding
	Toggle  []key.Binding

	// General
	Help key.Binding
	Quit key.Binding
}

// defaultKeyMap returns the default keybindings.
func defaultKeyMap() keyMap {
	toggle := make([]key.Binding, 0, 9)
	for i := 1; i <= 9; i++ {
		k := "alt+" + string(rune('0'+i))
		toggle = append(toggle, key.NewBinding(
			key.WithKeys(k),
			key.WithHelp(k, "toggle target"),
		))
	}

	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "send to all"),
		),
		Layout: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "cycle layout"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "refresh readiness"),
		),
		Preview: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("ctrl+p", "preview markdown"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+k"),
			key.WithHelp("ctrl+k", "clear message"),
		),
		Toggle: toggle,
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// ShortHelp returns keybindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Layout, k.Help, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Clear, k.Preview},
		{k.Layout, k.Refresh},
		{k.Help, k.Quit},
	}
}

// toggleIndex returns the 0-based target slot for an alt+digit key, or -1.
func (k keyMap) toggleIndex(msg interface{ String() string }) int {
	s := msg.String()
	for i, b := range k.Toggle {
		for _, bk := range b.Keys() {
			if bk == s {
				return i
			}
		}
	}
	return -1
}
