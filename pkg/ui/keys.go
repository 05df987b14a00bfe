package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Click      key.Binding
	Fullscreen key.Binding
	PrevLevel  key.Binding
	NextLevel  key.Binding
	CopyURL    key.Binding
	SaveFrame  key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Click: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "highlight"),
		),
		Fullscreen: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fullscreen"),
		),
		PrevLevel: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "prev level"),
		),
		NextLevel: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next level"),
		),
		CopyURL: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy url"),
		),
		SaveFrame: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "save frame"),
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
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.Fullscreen, k.PrevLevel, k.NextLevel, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Click},
		{k.Fullscreen, k.PrevLevel, k.NextLevel},
		{k.CopyURL, k.SaveFrame, k.Help, k.Quit},
	}
}
