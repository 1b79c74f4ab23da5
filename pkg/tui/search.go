package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// searchBar is an inline filter over the displayed log.
type searchBar struct {
	active bool
	input  textinput.Model
	query  string
}

func newSearchBar() searchBar {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 256
	ti.Width = 40
	ti.Prompt = "/ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	return searchBar{input: ti}
}

// Open activates the search bar and focuses the text input.
func (s *searchBar) Open() {
	s.active = true
	s.input.Reset()
	s.input.Focus()
	s.query = ""
}

// Close deactivates the search bar and drops the query.
func (s *searchBar) Close() {
	s.active = false
	s.input.Blur()
	s.query = ""
}

// Update handles keys while the bar is active. Esc closes, Enter commits
// the query and keeps it highlighted.
func (s *searchBar) Update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		s.Close()
		return nil
	case "enter":
		s.query = s.input.Value()
		s.active = false
		s.input.Blur()
		return nil
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	s.query = s.input.Value()
	return cmd
}

func (s *searchBar) Query() string  { return s.query }
func (s *searchBar) IsActive() bool { return s.active }
func (s *searchBar) HasQuery() bool { return s.query != "" }

// View renders the search bar with the match count of the displayed log.
func (s *searchBar) View(matches int) string {
	if !s.active && !s.HasQuery() {
		return ""
	}

	var result string
	if s.active {
		result = s.input.View()
	} else {
		result = keyDescStyle.Render("/" + s.query)
	}

	if s.HasQuery() {
		switch {
		case matches == 1:
			result += "  " + lipgloss.NewStyle().Foreground(colorGreen).Render("1 match")
		case matches > 1:
			result += "  " + lipgloss.NewStyle().Foreground(colorGreen).Render(fmt.Sprintf("%d matches", matches))
		case !s.active:
			result += "  " + lipgloss.NewStyle().Foreground(colorRed).Render("no matches")
		}
	}
	return result
}

// HighlightContent returns content with case-insensitive matches of query
// highlighted, and the number of matches.
func HighlightContent(content, query string) (string, int) {
	if query == "" {
		return content, 0
	}

	lower := strings.ToLower(content)
	lowerQuery := strings.ToLower(query)
	count := strings.Count(lower, lowerQuery)
	if count == 0 || len(lower) != len(content) {
		return content, count
	}

	var result strings.Builder
	remaining := content
	remainingLower := lower
	for {
		idx := strings.Index(remainingLower, lowerQuery)
		if idx < 0 {
			result.WriteString(remaining)
			break
		}
		result.WriteString(remaining[:idx])
		result.WriteString(highlightStyle.Render(remaining[idx : idx+len(lowerQuery)]))
		remaining = remaining[idx+len(lowerQuery):]
		remainingLower = remainingLower[idx+len(lowerQuery):]
	}
	return result.String(), count
}
