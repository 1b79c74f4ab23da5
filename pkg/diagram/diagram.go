// Package diagram renders automation scripts as Mermaid flowcharts or ASCII
// boxes. Sub-flows and intent steps can be expanded inline.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/eval"
	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Options controls expansion. The zero value draws only the top-level steps.
type Options struct {
	// Loader expands call_subprocess steps with a literal sub_path.
	Loader engine.ScriptLoader
	// Compiler expands ai_smart_step prompts into the steps they compile to.
	Compiler engine.Compiler
	// MaxDepth bounds sub-flow expansion; 0 means 3.
	MaxDepth int
}

// Generate produces a diagram string from a script.
func Generate(s *model.AutomationScript, format Format, opts Options) (string, error) {
	if s == nil {
		return "", fmt.Errorf("nil script")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}
	b := &builder{opts: opts}
	steps := b.flatten(s.Steps, 0, nil)

	switch format {
	case FormatMermaid:
		return generateMermaid(steps), nil
	case FormatASCII:
		return generateASCII(s.Name, steps), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- flattening ---

type diagramStep struct {
	node     string // unique mermaid node id
	id       string
	kind     model.ActionKind
	detail   string
	disabled bool
	ignore   bool
	expand   *expansion
}

// expansion is the inline body of a sub-flow or compiled intent step.
type expansion struct {
	label string
	steps []diagramStep
	note  string // shown instead of steps, e.g. a load error
}

type builder struct {
	opts Options
	next int
}

func (b *builder) nodeID() string {
	b.next++
	return fmt.Sprintf("n%d", b.next)
}

func (b *builder) flatten(steps []model.ActionStep, depth int, stack []string) []diagramStep {
	out := make([]diagramStep, 0, len(steps))
	for _, st := range steps {
		ds := diagramStep{
			node:     b.nodeID(),
			id:       st.ID,
			kind:     st.ActionType,
			detail:   stepDetail(st),
			disabled: !st.Enabled,
			ignore:   eval.Truthy(st.Parameters["ignore_error"]),
		}
		switch st.ActionType {
		case model.KindCallSubprocess:
			ds.expand = b.expandSubflow(st, depth, stack)
		case model.KindAISmartStep:
			if b.opts.Compiler != nil {
				prompt := eval.Stringify(st.Parameters["prompt"])
				compiled := b.opts.Compiler.Compile(prompt)
				exp := &expansion{label: "compiled", steps: b.flatten(compiled, depth, stack)}
				if len(compiled) == 0 {
					exp.note = "no steps"
				}
				ds.expand = exp
			}
		}
		out = append(out, ds)
	}
	return out
}

func (b *builder) expandSubflow(st model.ActionStep, depth int, stack []string) *expansion {
	if b.opts.Loader == nil {
		return nil
	}
	path := strings.TrimSpace(eval.Stringify(st.Parameters["sub_path"]))
	if path == "" || strings.Contains(path, "{{") {
		return nil
	}
	for _, p := range stack {
		if p == path {
			return &expansion{label: path, note: "recursive call"}
		}
	}
	if depth+1 > b.opts.MaxDepth {
		return &expansion{label: path, note: "not expanded"}
	}
	child, err := b.opts.Loader.Load(path)
	if err != nil {
		return &expansion{label: path, note: "not found"}
	}
	stack = append(append([]string{}, stack...), path)
	return &expansion{label: child.Name, steps: b.flatten(child.Steps, depth+1, stack)}
}

// stepDetail is the most telling parameter of a step.
func stepDetail(st model.ActionStep) string {
	p := st.Parameters
	var v any
	switch st.ActionType {
	case model.KindOpenURL:
		v = p["url"]
	case model.KindGetText:
		return eval.Stringify(p["target"]) + " → " + eval.Stringify(orDefault(p["var"], "temp"))
	case model.KindListInit:
		v = orDefault(p["var"], "my_list")
	case model.KindListAppend:
		return eval.Stringify(orDefault(p["list_var"], "my_list")) + " += " + eval.Stringify(p["item_val"])
	case model.KindCallSubprocess:
		v = p["sub_path"]
	case model.KindAISmartStep:
		v = p["prompt"]
	default:
		v = p["target"]
	}
	return eval.Stringify(v)
}

func orDefault(v any, def string) any {
	if v == nil {
		return def
	}
	return v
}

// --- Mermaid flowchart ---

func generateMermaid(steps []diagramStep) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if len(steps) == 0 {
		return b.String()
	}

	b.WriteString("    START([Start]) --> " + steps[0].node + "\n")
	writeMermaidSteps(&b, steps, "    ")
	b.WriteString("    " + steps[len(steps)-1].node + " --> END([End])\n")

	for _, s := range allSteps(steps) {
		if s.disabled {
			b.WriteString(fmt.Sprintf("    style %s stroke-dasharray: 5 5,color:#888\n", s.node))
		}
	}
	return b.String()
}

func writeMermaidSteps(b *strings.Builder, steps []diagramStep, indent string) {
	for i, s := range steps {
		b.WriteString(indent + nodeDefinition(s) + "\n")

		if s.expand != nil {
			sub := s.node + "_body"
			b.WriteString(fmt.Sprintf("%ssubgraph %s[%q]\n", indent, sub, escMermaid(s.expand.label)))
			if len(s.expand.steps) > 0 {
				writeMermaidSteps(b, s.expand.steps, indent+"    ")
			} else {
				b.WriteString(fmt.Sprintf("%s    %s_note[%q]\n", indent, s.node, escMermaid(s.expand.note)))
			}
			b.WriteString(indent + "end\n")
			b.WriteString(fmt.Sprintf("%s%s -.-> %s\n", indent, s.node, sub))
		}

		if i < len(steps)-1 {
			if s.ignore {
				b.WriteString(fmt.Sprintf("%s%s -->|\"ignore_error\"| %s\n", indent, s.node, steps[i+1].node))
			} else {
				b.WriteString(fmt.Sprintf("%s%s --> %s\n", indent, s.node, steps[i+1].node))
			}
		}
	}
}

func allSteps(steps []diagramStep) []diagramStep {
	var out []diagramStep
	for _, s := range steps {
		out = append(out, s)
		if s.expand != nil {
			out = append(out, allSteps(s.expand.steps)...)
		}
	}
	return out
}

func nodeDefinition(s diagramStep) string {
	label := fmt.Sprintf("%s %s", stepIcon(s.kind), s.kind)
	if s.detail != "" {
		label += "<br/>" + truncate(s.detail, 40)
	}
	label = escMermaid(label)

	switch s.kind {
	case model.KindOpenURL:
		return fmt.Sprintf(`%s[/"%s"/]`, s.node, label)
	case model.KindCallSubprocess:
		return fmt.Sprintf(`%s[["%s"]]`, s.node, label)
	case model.KindAISmartStep:
		return fmt.Sprintf(`%s{{"%s"}}`, s.node, label)
	case model.KindListInit, model.KindListAppend:
		return fmt.Sprintf(`%s[("%s")]`, s.node, label)
	default:
		return fmt.Sprintf(`%s["%s"]`, s.node, label)
	}
}

// --- ASCII ---

func generateASCII(name string, steps []diagramStep) string {
	var b strings.Builder
	if name == "" {
		name = model.DefaultScriptName
	}
	if len(steps) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	const indent = 8
	boxWidth := computeUniformBoxWidth(steps, name)
	connCol := indent + 1 + boxWidth/2
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	headerText := centerPad(name, boxWidth)
	mid := boxWidth / 2
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + headerText + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")
	b.WriteString(connPad + "│\n")

	for i, s := range steps {
		writeASCIIStep(&b, s, indent, boxWidth)

		if s.expand != nil {
			b.WriteString(connPad + "┆\n")
			writeASCIIExpansion(&b, s.expand, connCol)
		}

		if i < len(steps)-1 {
			if s.ignore {
				b.WriteString(connPad + "┆ ignore_error\n")
			} else {
				b.WriteString(connPad + "│\n")
			}
		}
	}
	return b.String()
}

// writeASCIIExpansion draws a sub-flow or compiled body as one framed list
// centered on the main connector.
func writeASCIIExpansion(b *strings.Builder, exp *expansion, connCol int) {
	lines := []string{" " + exp.label + " "}
	if len(exp.steps) == 0 {
		lines = append(lines, "  ("+exp.note+") ")
	}
	for _, s := range allSteps(exp.steps) {
		lines = append(lines, "  "+stepIcon(s.kind)+" "+stepLabel(s)+" ")
	}

	width := 9
	for _, l := range lines {
		if w := runewidth.StringWidth(l); w > width {
			width = w
		}
	}
	if width%2 == 0 {
		width++
	}
	half := width / 2

	left := connCol - half - 1
	if left < 0 {
		left = 0
	}
	p := strings.Repeat(" ", left)
	b.WriteString(p + "┌" + strings.Repeat("─", half) + "◇" + strings.Repeat("─", half) + "┐\n")
	for _, l := range lines {
		b.WriteString(p + "│" + l + strings.Repeat(" ", width-runewidth.StringWidth(l)) + "│\n")
	}
	b.WriteString(p + "└" + strings.Repeat("─", half) + "┬" + strings.Repeat("─", half) + "┘\n")
}

// computeUniformBoxWidth returns the widest interior width needed
// across all steps and the header name.
func computeUniformBoxWidth(steps []diagramStep, name string) int {
	w := 22
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, s := range steps {
		if sw := stepContentWidth(s); sw > w {
			w = sw
		}
	}
	return w
}

func stepContentWidth(s diagramStep) int {
	w := runewidth.StringWidth(fmt.Sprintf(" %s %s ", stepIcon(s.kind), stepLabel(s)))
	if s.detail != "" {
		if dw := runewidth.StringWidth(" → " + truncate(s.detail, 40) + " "); dw > w {
			w = dw
		}
	}
	return w
}

func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

func writeASCIIStep(b *strings.Builder, s diagramStep, indent, boxWidth int) {
	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	content := fmt.Sprintf(" %s %s ", stepIcon(s.kind), stepLabel(s))
	b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
	b.WriteString(pad + "│" + content + strings.Repeat(" ", boxWidth-runewidth.StringWidth(content)) + "│\n")
	if s.detail != "" {
		line := " → " + truncate(s.detail, 40) + " "
		b.WriteString(pad + "│" + line + strings.Repeat(" ", boxWidth-runewidth.StringWidth(line)) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

func stepLabel(s diagramStep) string {
	label := string(s.kind)
	if s.disabled {
		label += " (disabled)"
	}
	return label
}

func stepIcon(kind model.ActionKind) string {
	switch kind {
	case model.KindOpenURL:
		return "🌐"
	case model.KindClick:
		return "👆"
	case model.KindInput, model.KindSetDatetime:
		return "⌨"
	case model.KindGetText:
		return "📄"
	case model.KindListInit, model.KindListAppend:
		return "≡"
	case model.KindCallSubprocess:
		return "📎"
	case model.KindAISmartStep:
		return "✨"
	default:
		return "○"
	}
}

// --- string helpers ---

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

// truncate shortens s to max display columns.
func truncate(s string, max int) string {
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}
