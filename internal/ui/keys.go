package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Clip     key.Binding
	Chat     key.Binding
	Auth     key.Binding
	CopyID   key.Binding
	Shortcut key.Binding
	Clear    key.Binding
	Theme    key.Binding
	Refresh  key.Binding
	Lookup   key.Binding
	Focus    key.Binding
	Edit     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Clip: key.NewBinding(
			key.WithKeys("c", "ctrl+s"),
			key.WithHelp("c", "clip"),
		),
		Chat: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open chat"),
		),
		Auth: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "authenticate"),
		),
		CopyID: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy broadcast id"),
		),
		Shortcut: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "global shortcut on/off"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "clear history"),
		),
		Theme: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "light/dark"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "recheck live"),
		),
		Lookup: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "clip details"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "next field"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit channel"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clip, k.Edit, k.Chat, k.Auth, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Clip, k.Refresh, k.Lookup, k.Clear},
		{k.Edit, k.Focus, k.Auth, k.CopyID},
		{k.Chat, k.Shortcut, k.Theme, k.Help, k.Quit},
	}
}
