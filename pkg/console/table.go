package console

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// TriggerTable renders triggers as aligned columns. Widths are measured in
// terminal cells so CJK names line up.
func TriggerTable(w io.Writer, triggers []model.Trigger) {
	st := newStyles(w)
	header := []string{"ID", "NAME", "TYPE", "WHEN", "ENABLED", "SCRIPT"}
	rows := make([][]string, 0, len(triggers))
	for _, t := range triggers {
		when := t.Time()
		if t.Type == model.TriggerHotkey {
			when = t.Key()
		}
		enabled := GlyphPassed
		if !t.Enabled {
			enabled = GlyphPending
		}
		rows = append(rows, []string{shortID(t.ID), t.Name, string(t.Type), when, enabled, t.ScriptPath})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if cw := runewidth.StringWidth(c); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	fmt.Fprintln(w, st.header.Render(formatRow(header, widths)))
	for _, r := range rows {
		fmt.Fprintln(w, formatRow(r, widths))
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, st.dim.Render("(no triggers)"))
	}
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		if i == len(cells)-1 {
			parts[i] = c
			continue
		}
		parts[i] = runewidth.FillRight(c, widths[i])
	}
	return strings.Join(parts, "  ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StepTree renders a script's steps with their nesting. Disabled steps and
// non-executed children are marked.
func StepTree(w io.Writer, s *model.AutomationScript) {
	st := newStyles(w)
	fmt.Fprintln(w, st.header.Render(s.Name))
	writeSteps(w, st, s.Steps, 1)
}

func writeSteps(w io.Writer, st styles, steps []model.ActionStep, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, step := range steps {
		glyph := GlyphPending
		style := st.info
		if !step.Enabled {
			glyph, style = GlyphSkipped, st.dim
		}
		label := fmt.Sprintf("%s%s %s %s", indent, glyph, step.ActionType, step.ID)
		if target, ok := step.Parameters["target"]; ok {
			label += " " + fmt.Sprint(target)
		} else if p, ok := step.Parameters["sub_path"]; ok {
			label += " → " + fmt.Sprint(p)
		}
		fmt.Fprintln(w, style.Render(runewidth.Truncate(label, 120, "…")))
		if len(step.Children) > 0 {
			writeSteps(w, st, step.Children, depth+1)
		}
	}
}

// TraceSummary renders a summarized trace: one line per step, indented by
// nesting, then the run outcome.
func TraceSummary(w io.Writer, s *trace.Summary) {
	st := newStyles(w)
	title := s.Script
	if title == "" {
		title = model.DefaultScriptName
	}
	header := fmt.Sprintf("%s  run %s", title, s.RunID)
	if !s.Started.IsZero() {
		header += "  " + s.Started.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Fprintln(w, st.header.Render(header))

	for _, r := range s.Steps {
		glyph, style := GlyphCurrent, st.current
		switch r.Status {
		case trace.StatusSuccess:
			glyph, style = GlyphPassed, st.success
		case trace.StatusIgnored:
			glyph, style = GlyphWarn, st.warning
		case trace.StatusFailed:
			glyph, style = GlyphFailed, st.failure
		case trace.StatusSkipped:
			glyph, style = GlyphSkipped, st.dim
		}
		kind := r.Kind
		if kind == "" {
			kind = "(disabled)"
		}
		line := fmt.Sprintf("%s%s %s %s", strings.Repeat("  ", r.Depth+1), glyph, runewidth.FillRight(kind, 16), shortID(r.StepID))
		if r.Duration > 0 {
			line += "  " + r.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintln(w, style.Render(line))
		if r.Error != "" {
			fmt.Fprintln(w, st.dim.Render(strings.Repeat("  ", r.Depth+2)+r.Error))
		}
	}

	switch s.Status {
	case "":
		fmt.Fprintln(w, st.warning.Render(GlyphWarn+" run did not complete"))
	case engine.StatusCompleted:
		fmt.Fprintln(w, st.success.Render(fmt.Sprintf("%s %s in %s", GlyphPassed, s.Status, s.Duration.Round(time.Millisecond))))
	case engine.StatusCancelled:
		fmt.Fprintln(w, st.warning.Render(fmt.Sprintf("%s %s after %s", GlyphWarn, s.Status, s.Duration.Round(time.Millisecond))))
	default:
		msg := fmt.Sprintf("%s %s after %s", GlyphFailed, s.Status, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			msg += ": " + s.Error
		}
		fmt.Fprintln(w, st.failure.Render(msg))
	}
}
