package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// runLog is the output key for lines not attributed to a step.
const runLog = -1

// outputPanel renders the log of one step, or of the whole run, in a
// scrollable viewport.
type outputPanel struct {
	viewport viewport.Model

	outputs map[int]string
	active  int

	highlightQuery string
	matches        int

	width  int
	height int
	ready  bool
}

func newOutputPanel() outputPanel {
	return outputPanel{outputs: make(map[int]string), active: runLog}
}

// SetSize updates the viewport dimensions.
func (p *outputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := width - 4
	contentH := height - 3
	if contentW < 1 {
		contentW = 1
	}
	if contentH < 1 {
		contentH = 1
	}

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.refreshContent()
}

// Append adds a line to key's buffer.
func (p *outputPanel) Append(key int, line string) {
	p.outputs[key] += line + "\n"
	if key == p.active {
		p.refreshContent()
		p.gotoBottom()
	}
}

// Shift renumbers step buffers at or after index at, following an insertion
// into the step list.
func (p *outputPanel) Shift(at int) {
	shifted := make(map[int]string, len(p.outputs))
	for k, v := range p.outputs {
		if k >= at {
			k++
		}
		shifted[k] = v
	}
	p.outputs = shifted
	if p.active >= at {
		p.active++
	}
}

// Show switches the displayed buffer.
func (p *outputPanel) Show(key int) {
	p.active = key
	p.refreshContent()
	p.gotoBottom()
}

func (p *outputPanel) gotoBottom() {
	if p.ready {
		p.viewport.GotoBottom()
	}
}

// Content returns the raw text of the displayed buffer.
func (p *outputPanel) Content() string {
	return p.outputs[p.active]
}

func (p *outputPanel) PageUp() {
	if p.ready {
		p.viewport.HalfViewUp()
	}
}

func (p *outputPanel) PageDown() {
	if p.ready {
		p.viewport.HalfViewDown()
	}
}

// SetHighlight sets the search query and re-renders output.
func (p *outputPanel) SetHighlight(query string) {
	p.highlightQuery = query
	p.refreshContent()
}

func (p *outputPanel) refreshContent() {
	content, n := HighlightContent(p.outputs[p.active], p.highlightQuery)
	p.matches = n
	if p.ready {
		p.viewport.SetContent(content)
	}
}

// View renders the output panel.
func (p *outputPanel) View(title string) string {
	var content string
	if p.ready {
		content = p.viewport.View()
	}

	header := panelTitle.Render(title)
	if p.ready && p.viewport.TotalLineCount() > p.viewport.VisibleLineCount() {
		scrollInfo := fmt.Sprintf(" %3.0f%%", p.viewport.ScrollPercent()*100)
		padding := p.width - 6 - len(title) - len(scrollInfo)
		if padding < 0 {
			padding = 0
		}
		header += strings.Repeat(" ", padding) + keyDescStyle.Render(scrollInfo)
	}

	return panelBorder.Width(p.width).Height(p.height).Render(header + "\n" + content)
}
