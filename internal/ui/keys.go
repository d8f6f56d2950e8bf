// ABOUTME: Key bindings for the status view
// ABOUTME: Implements help.KeyMap so bindings render in the footer
package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	Pause      key.Binding
	Stop       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		VolumeUp:   key.NewBinding(key.WithKeys("up", "+", "k"), key.WithHelp("↑/+", "volume up")),
		VolumeDown: key.NewBinding(key.WithKeys("down", "-", "j"), key.WithHelp("↓/-", "volume down")),
		Mute:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		Pause:      key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "suspend/resume")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.VolumeUp, k.VolumeDown, k.Pause, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.VolumeUp, k.VolumeDown, k.Mute},
		{k.Pause, k.Stop},
		{k.Help, k.Quit},
	}
}
