package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// maxParamLines caps the parameter table in the detail bar.
const maxParamLines = 6

// renderDetail shows the selected step, the run outcome once known and the
// key hints.
func (m Model) renderDetail() string {
	var lines []string

	if step := m.steps.Selected(); step != nil {
		parts := []string{detailLabelStyle.Render("Step: ") + detailValueStyle.Render(step.ID)}
		if step.Kind != "" {
			parts = append(parts, detailLabelStyle.Render("│ ")+detailValueStyle.Render(string(step.Kind)))
		}
		if s := statusText(step); s != "" {
			parts = append(parts, detailLabelStyle.Render("│ ")+s)
		}
		lines = append(lines, strings.Join(parts, " "))

		if step.Error != "" {
			lines = append(lines, errorStyle.Render("Error: "+step.Error))
		}
		if md := paramsMarkdown(step.Params, step.Mappings); md != "" {
			table := strings.Split(renderMarkdown(md), "\n")
			if len(table) > maxParamLines {
				table = append(table[:maxParamLines], keyDescStyle.Render("  …"))
			}
			lines = append(lines, table...)
		}
	}

	if m.result != nil {
		lines = append(lines, "", m.resultLine())
		if m.traceDir != "" {
			lines = append(lines, keyDescStyle.Render("trace: "+trace.FilePath(m.traceDir, m.result.RunID)))
		}
	}

	lines = append(lines, "", keyBarStyle.Render(keyBarText(m.running, m.stopping)))

	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return detailBarStyle.Width(w).Render(strings.Join(lines, "\n"))
}

func statusText(step *stepInfo) string {
	d := ""
	if step.Duration > 0 {
		d = " " + keyDescStyle.Render(step.Duration.Round(time.Millisecond).String())
	}
	switch step.Status {
	case statusCurrent:
		return statusRunningStyle.Render("⏳ executing...")
	case statusPassed:
		return statusPassedStyle.Render(GlyphPassed+" passed") + d
	case statusIgnored:
		return warnStyle.Render(GlyphIgnored+" failed, ignored") + d
	case statusFailed:
		return statusFailedStyle.Render(GlyphFailed+" failed") + d
	case statusSkipped:
		return stepSkipped.Render(GlyphSkipped + " disabled")
	}
	return ""
}

func (m Model) resultLine() string {
	r := m.result
	d := r.Duration.Round(time.Millisecond)
	switch r.Status {
	case engine.StatusCompleted:
		return statusPassedStyle.Render(fmt.Sprintf("%s Run completed in %s (%d steps)", GlyphPassed, d, len(r.Executed)))
	case engine.StatusCancelled:
		return warnStyle.Render(fmt.Sprintf("%s Run stopped after %s", GlyphIgnored, d))
	default:
		msg := fmt.Sprintf("%s Run failed after %s", GlyphFailed, d)
		if r.Error != nil {
			msg += ": " + r.Error.Error()
		}
		return statusFailedStyle.Render(msg)
	}
}
