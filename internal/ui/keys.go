package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding

	// View switching
	ViewObjects key.Binding
	ViewNotices key.Binding

	// Object actions
	ToggleSelect key.Binding
	Move         key.Binding
	Enter        key.Binding
	Back         key.Binding
	Refresh      key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Input
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Cancel / back"),
		),

		ViewObjects: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "Objects view"),
		),
		ViewNotices: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Notices view"),
		),

		ToggleSelect: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("Space", "Select object"),
		),
		Move: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Move selected"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open container"),
		),
		Back: key.NewBinding(
			key.WithKeys("backspace", "u"),
			key.WithHelp("u", "Parent container"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh listing"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewObjects, k.ViewNotices, k.Escape},
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.ToggleSelect, k.Move, k.Enter, k.Back, k.Refresh},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
