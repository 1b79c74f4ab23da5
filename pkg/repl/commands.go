package repl

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/rpaflow/pkg/console"
	"github.com/ormasoftchile/rpaflow/pkg/eval"
	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// handleInstruction compiles free text into pending steps.
func (s *Session) handleInstruction(ctx context.Context, line string) {
	steps := s.compiler.Compile(line)
	if len(steps) == 0 {
		fmt.Fprintf(s.output, "No steps matched that instruction.\n")
		return
	}
	s.pending = steps
	s.showSteps("compiled", steps)
	if s.auto {
		s.handleRun(ctx)
	}
}

// handleRun executes the pending steps.
func (s *Session) handleRun(ctx context.Context) {
	if len(s.pending) == 0 {
		fmt.Fprintf(s.output, "Nothing to run. Type an instruction first.\n")
		return
	}
	steps := s.pending
	if err := s.engine.Exec(ctx, steps); err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	s.history = append(s.history, steps...)
	s.pending = nil
	fmt.Fprintf(s.output, "%s %d steps done.\n", console.GlyphPassed, len(steps))
}

// handleOpen navigates directly: open <url>.
func (s *Session) handleOpen(ctx context.Context, parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(s.output, "Usage: open <url>\n")
		return
	}
	step := model.NewStep(model.KindOpenURL, map[string]any{"url": parts[1]})
	if err := s.engine.Exec(ctx, []model.ActionStep{step}); err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	s.history = append(s.history, step)
}

// handleVars prints the live environment.
func (s *Session) handleVars() {
	env := s.engine.Env()
	names := env.Names()
	if len(names) == 0 {
		fmt.Fprintf(s.output, "No variables defined.\n")
		return
	}
	for _, name := range names {
		v, _ := env.Get(name)
		fmt.Fprintf(s.output, "  %s = %s\n", name, eval.Stringify(v))
	}
}

// handleSave writes the executed steps as a script: save <path> [name].
func (s *Session) handleSave(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(s.output, "Usage: save <path> [name]\n")
		return
	}
	if len(s.history) == 0 {
		fmt.Fprintf(s.output, "No steps executed yet.\n")
		return
	}
	name := "repl"
	if len(parts) > 2 {
		name = parts[2]
	}
	script := model.NewScript(name)
	script.Steps = append(script.Steps, s.history...)
	if err := model.SaveScriptFile(parts[1], script); err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "Saved %d steps to %s\n", len(script.Steps), parts[1])
}

func (s *Session) handleAuto(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(s.output, "auto is %s\n", onOff(s.auto))
		return
	}
	switch parts[1] {
	case "on":
		s.auto = true
	case "off":
		s.auto = false
	default:
		fmt.Fprintf(s.output, "Usage: auto on|off\n")
		return
	}
	fmt.Fprintf(s.output, "auto is %s\n", onOff(s.auto))
}

func (s *Session) showSteps(title string, steps []model.ActionStep) {
	if len(steps) == 0 {
		fmt.Fprintf(s.output, "No %s steps.\n", title)
		return
	}
	view := &model.AutomationScript{Name: title, Steps: steps}
	console.StepTree(s.output, view)
}

// handleHelp displays available commands.
func (s *Session) handleHelp() {
	fmt.Fprintln(s.output, "Available commands:")
	fmt.Fprintln(s.output, "  <instruction>    Compile an instruction into steps")
	fmt.Fprintln(s.output, "  run (r)          Execute the compiled steps")
	fmt.Fprintln(s.output, "  open <url>       Navigate directly")
	fmt.Fprintln(s.output, "  vars (v)         Show current variables")
	fmt.Fprintln(s.output, "  steps            Show compiled steps")
	fmt.Fprintln(s.output, "  history          Show executed steps")
	fmt.Fprintln(s.output, "  save <path>      Save executed steps as a script")
	fmt.Fprintln(s.output, "  auto on|off      Execute instructions as soon as they compile")
	fmt.Fprintln(s.output, "  help (?)         Show this help")
	fmt.Fprintln(s.output, "  quit (q)         Exit")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
