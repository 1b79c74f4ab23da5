package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// stepStatus tracks the display state of each step.
type stepStatus int

const (
	statusPending stepStatus = iota
	statusCurrent
	statusPassed
	statusIgnored
	statusFailed
	statusSkipped
)

func statusFromTrace(s trace.StepStatus) stepStatus {
	switch s {
	case trace.StatusSuccess:
		return statusPassed
	case trace.StatusIgnored:
		return statusIgnored
	case trace.StatusSkipped:
		return statusSkipped
	default:
		return statusFailed
	}
}

// stepInfo holds the display state for a single step.
type stepInfo struct {
	ID       string
	Kind     model.ActionKind
	Params   map[string]any
	Mappings map[string]string
	Status   stepStatus
	Error    string
	Duration time.Duration
	Depth    int // sub-flow or compiled-step nesting
}

// stepsPanel renders the scrollable step list. Steps of sub-flows and
// compiled prompts are inserted below their parent as they start.
type stepsPanel struct {
	steps  []stepInfo
	cursor int
	width  int
	height int
	offset int
}

func newStepsPanel(steps []model.ActionStep) stepsPanel {
	p := stepsPanel{cursor: -1}
	for _, s := range steps {
		p.steps = append(p.steps, stepInfo{
			ID:       s.ID,
			Kind:     s.ActionType,
			Params:   s.Parameters,
			Mappings: s.ArgMappings,
		})
	}
	if len(p.steps) > 0 {
		p.cursor = 0
	}
	return p
}

// find returns the first pending step with the given id and depth, or -1.
func (p *stepsPanel) find(id string, depth int) int {
	for i, s := range p.steps {
		if s.ID == id && s.Depth == depth && s.Status == statusPending {
			return i
		}
	}
	return -1
}

// insertUnder adds a step after the last descendant of parent, or at the end
// when parent is -1, and returns its index.
func (p *stepsPanel) insertUnder(parent int, info stepInfo) int {
	at := len(p.steps)
	if parent >= 0 {
		at = parent + 1
		for at < len(p.steps) && p.steps[at].Depth > p.steps[parent].Depth {
			at++
		}
	}
	p.steps = append(p.steps, stepInfo{})
	copy(p.steps[at+1:], p.steps[at:])
	p.steps[at] = info
	if p.cursor >= at {
		p.cursor++
	}
	return at
}

// CursorUp moves the browsing cursor up.
func (p *stepsPanel) CursorUp() {
	if p.cursor > 0 {
		p.cursor--
		p.ensureVisible()
	}
}

// CursorDown moves the browsing cursor down.
func (p *stepsPanel) CursorDown() {
	if p.cursor < len(p.steps)-1 {
		p.cursor++
		p.ensureVisible()
	}
}

// Select moves the cursor to i.
func (p *stepsPanel) Select(i int) {
	if i >= 0 && i < len(p.steps) {
		p.cursor = i
		p.ensureVisible()
	}
}

// Selected returns the step at the cursor, or nil.
func (p *stepsPanel) Selected() *stepInfo {
	if p.cursor >= 0 && p.cursor < len(p.steps) {
		return &p.steps[p.cursor]
	}
	return nil
}

func (p *stepsPanel) ensureVisible() {
	visible := p.height - 3
	if visible < 1 {
		visible = 1
	}
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

func glyphFor(status stepStatus) (string, lipgloss.Style) {
	switch status {
	case statusCurrent:
		return GlyphCurrent, stepCurrent
	case statusPassed:
		return GlyphPassed, stepPassed
	case statusIgnored:
		return GlyphIgnored, stepIgnored
	case statusFailed:
		return GlyphFailed, stepFailed
	case statusSkipped:
		return GlyphSkipped, stepSkipped
	default:
		return GlyphPending, stepNormal
	}
}

// View renders the step list panel.
func (p *stepsPanel) View() string {
	if len(p.steps) == 0 {
		return panelBorder.Width(p.width).Height(p.height).Render("  No steps")
	}

	visible := p.height - 3
	if visible < 1 {
		visible = 1
	}
	end := p.offset + visible
	if end > len(p.steps) {
		end = len(p.steps)
	}

	var lines []string
	for i := p.offset; i < end; i++ {
		step := p.steps[i]
		glyph, style := glyphFor(step.Status)
		indent := strings.Repeat("  ", step.Depth)

		title := string(step.Kind)
		if title == "" {
			title = step.ID
		}
		maxTitle := p.width - 8 - len(indent)
		if maxTitle < 4 {
			maxTitle = 4
		}
		title = runewidth.Truncate(title, maxTitle, "…")

		line := fmt.Sprintf(" %s %s%s", glyph, indent, title)
		if i == p.cursor {
			line = style.Reverse(true).Render(line)
		} else {
			line = style.Render(line)
		}
		lines = append(lines, line)
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		panelTitle.Render("Steps") + "\n" + strings.Join(lines, "\n"),
	)
}

// Stats returns counts of steps by status.
func (p *stepsPanel) Stats() (total, passed, failed, skipped int) {
	total = len(p.steps)
	for _, s := range p.steps {
		switch s.Status {
		case statusPassed, statusIgnored:
			passed++
		case statusFailed:
			failed++
		case statusSkipped:
			skipped++
		}
	}
	return
}
