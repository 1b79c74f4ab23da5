package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds all monitor key bindings.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	PgUp   key.Binding
	PgDown key.Binding
	Follow key.Binding
	RunLog key.Binding
	Search key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "browse up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "browse down"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Follow: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "follow current step"),
	),
	RunLog: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "run log / step log"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "stop / quit"),
	),
}

func matchKey(msg tea.KeyMsg, binding key.Binding) bool {
	return key.Matches(msg, binding)
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(running, stopping bool) string {
	quit := ":quit"
	if running {
		quit = ":stop"
	}
	if stopping {
		quit = ":stopping..."
	}
	return keyStyle.Render("↑↓") + keyDescStyle.Render(":browse") + "  " +
		keyStyle.Render("PgUp/Dn") + keyDescStyle.Render(":scroll") + "  " +
		keyStyle.Render("tab") + keyDescStyle.Render(":run log") + "  " +
		keyStyle.Render("f") + keyDescStyle.Render(":follow") + "  " +
		keyStyle.Render("/") + keyDescStyle.Render(":search") + "  " +
		keyStyle.Render("q") + keyDescStyle.Render(quit)
}
