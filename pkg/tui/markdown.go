package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/rpaflow/pkg/eval"
)

// renderer is shared; word wrap is left to the detail bar.
var renderer *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err == nil {
		renderer = r
	}
}

// renderMarkdown converts markdown to styled terminal output, falling back
// to the raw input when rendering is unavailable.
func renderMarkdown(md string) string {
	if renderer == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

// paramsMarkdown formats step parameters as a two-column table, sorted by
// name. Values are shown unresolved.
func paramsMarkdown(params map[string]any, argMappings map[string]string) string {
	if len(params) == 0 && len(argMappings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| parameter | value |\n|---|---|\n")
	for _, k := range sortedKeys(params) {
		fmt.Fprintf(&b, "| %s | `%s` |\n", k, mdCell(eval.Stringify(params[k])))
	}
	names := make([]string, 0, len(argMappings))
	for k := range argMappings {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "| %s ⇄ | `%s` |\n", k, mdCell(argMappings[k]))
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mdCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "`", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
