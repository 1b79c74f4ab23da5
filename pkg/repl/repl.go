// Package repl implements the interactive prompt loop: instructions are
// compiled into steps, shown, and executed against one live environment.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/intent"
	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// Session is one REPL over a single engine. Variables and the provider
// session persist across lines.
type Session struct {
	engine   *engine.Engine
	compiler engine.Compiler
	output   io.Writer
	auto     bool

	pending []model.ActionStep // last compiled, not yet executed
	history []model.ActionStep // executed successfully, in order
}

// New creates a session. A nil compiler uses the default intent rules.
func New(eng *engine.Engine, compiler engine.Compiler) *Session {
	if compiler == nil {
		compiler = intent.New(nil)
	}
	return &Session{
		engine:   eng,
		compiler: compiler,
		output:   os.Stdout,
	}
}

// SetOutput redirects command output.
func (s *Session) SetOutput(w io.Writer) { s.output = w }

// SetAuto makes compiled steps execute immediately.
func (s *Session) SetAuto(on bool) { s.auto = on }

// Run starts the interactive loop. It returns on quit, EOF or interrupt.
func (s *Session) Run(ctx context.Context) error {
	commands := []string{"run", "open", "vars", "steps", "history", "save",
		"auto on", "auto off", "help", "quit"}

	var completer = readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children,
			readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(s.output, "rpaflow repl, run %s\n", s.engine.RunID())
	fmt.Fprintf(s.output, "Type an instruction to compile it, 'run' to execute, 'help' for commands.\n\n")

	for {
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}
		if s.Handle(ctx, line) {
			return nil
		}
	}
}

// Handle processes one input line and reports whether the session should
// end. Unrecognised input is treated as an instruction to compile.
func (s *Session) Handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	parts := strings.Fields(line)

	switch parts[0] {
	case "run", "r":
		s.handleRun(ctx)
	case "open":
		s.handleOpen(ctx, parts)
	case "vars", "v":
		s.handleVars()
	case "steps":
		s.showSteps("pending", s.pending)
	case "history":
		s.showSteps("history", s.history)
	case "save":
		s.handleSave(parts)
	case "auto":
		s.handleAuto(parts)
	case "help", "?":
		s.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintf(s.output, "Bye.\n")
		return true
	default:
		s.handleInstruction(ctx, line)
	}
	return false
}

func (s *Session) prompt() string {
	if len(s.pending) > 0 {
		return fmt.Sprintf("rpaflow[%d pending]> ", len(s.pending))
	}
	return "rpaflow> "
}
