// Package tui renders a live terminal view of one script run: the step list
// on the left, the selected step's log on the right and a detail bar with
// the step's parameters and the run status underneath.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/rpaflow/pkg/console"
)

// Step status glyphs are shared with the line printer.
const (
	GlyphPending = console.GlyphPending
	GlyphCurrent = console.GlyphCurrent
	GlyphPassed  = console.GlyphPassed
	GlyphFailed  = console.GlyphFailed
	GlyphIgnored = console.GlyphWarn
	GlyphSkipped = console.GlyphSkipped
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

// --- Header styles ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var modeBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Step list styles ---

var (
	stepNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepPassed = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepIgnored = lipgloss.NewStyle().
			Foreground(colorYellow)

	stepFailed = lipgloss.NewStyle().
			Foreground(colorRed)

	stepSkipped = lipgloss.NewStyle().
			Faint(true)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)
)

// --- Detail bar styles ---

var (
	detailBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorWhite)

	statusPassedStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(colorYellow)
)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var warnStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)

var highlightStyle = lipgloss.NewStyle().
	Background(colorYellow).
	Foreground(lipgloss.Color("0")).
	Bold(true)
