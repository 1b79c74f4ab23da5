// Package console renders run events and trigger tables for the terminal.
package console

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
)

// Glyphs carry status without relying on color alone.
const (
	GlyphPending = "○"
	GlyphCurrent = "▸"
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphWarn    = "!"
	GlyphSkipped = "⏭"
	GlyphInfo    = "·"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

// styles is the palette bound to one output's color profile.
type styles struct {
	header  lipgloss.Style
	current lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(colorCyan),
		current: r.NewStyle().Bold(true).Foreground(colorYellow),
		info:    r.NewStyle(),
		success: r.NewStyle().Foreground(colorGreen),
		warning: r.NewStyle().Foreground(colorYellow),
		failure: r.NewStyle().Foreground(colorRed).Bold(true),
		dim:     r.NewStyle().Foreground(colorDim),
	}
}

func (s styles) severity(sev engine.Severity) (string, lipgloss.Style) {
	switch sev {
	case engine.SeveritySuccess:
		return GlyphPassed, s.success
	case engine.SeverityWarning:
		return GlyphWarn, s.warning
	case engine.SeverityError:
		return GlyphFailed, s.failure
	default:
		return GlyphInfo, s.info
	}
}
