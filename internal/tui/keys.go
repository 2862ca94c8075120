package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Next     key.Binding
	Prev     key.Binding
	Apply    key.Binding
	Dismiss  key.Binding
	ClearAll key.Binding
	Undo     key.Binding
	Redo     key.Binding
	Analyze  key.Binding
	Cancel   key.Binding
	Insert   key.Binding
	Normal   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Next: key.NewBinding(
		key.WithKeys("n", "tab"),
		key.WithHelp("n/tab", "next annotation"),
	),
	Prev: key.NewBinding(
		key.WithKeys("N", "shift+tab"),
		key.WithHelp("N/S-tab", "prev annotation"),
	),
	Apply: key.NewBinding(
		key.WithKeys("a", "enter"),
		key.WithHelp("a", "apply suggestion"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("d", "x"),
		key.WithHelp("d", "dismiss"),
	),
	ClearAll: key.NewBinding(
		key.WithKeys("C"),
		key.WithHelp("C", "dismiss all"),
	),
	Undo: key.NewBinding(
		key.WithKeys("u", "ctrl+z"),
		key.WithHelp("u", "undo"),
	),
	Redo: key.NewBinding(
		key.WithKeys("U", "ctrl+r"),
		key.WithHelp("U/C-r", "redo"),
	),
	Analyze: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "request critique"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("ctrl+g"),
		key.WithHelp("C-g", "cancel critique"),
	),
	Insert: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "insert mode"),
	),
	Normal: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "leave insert mode"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
