package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// Printer writes a run's events as styled lines. It is safe for concurrent
// use, so several runs may share one terminal.
type Printer struct {
	mu      *sync.Mutex
	w       io.Writer
	st      styles
	prefix  string
	verbose bool
}

// NewPrinter returns a Printer for w. Colors follow w's capabilities.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{mu: &sync.Mutex{}, w: w, st: newStyles(w)}
}

// WithPrefix returns a printer sharing w that tags every line, e.g. with a
// short run id.
func (p *Printer) WithPrefix(prefix string) *Printer {
	return &Printer{mu: p.mu, w: p.w, st: p.st, prefix: prefix, verbose: p.verbose}
}

// SetVerbose enables per-step completion lines.
func (p *Printer) SetVerbose(v bool) { p.verbose = v }

func (p *Printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prefix != "" {
		s = p.st.dim.Render("["+p.prefix+"]") + " " + s
	}
	fmt.Fprintln(p.w, s)
}

func (p *Printer) Log(message string, severity engine.Severity) {
	glyph, style := p.st.severity(severity)
	p.line(style.Render(glyph + " " + message))
}

func (p *Printer) StepStarted(stepID string) {
	p.line(p.st.current.Render(GlyphCurrent) + " " + stepID)
}

func (p *Printer) StepFinished(o engine.StepOutcome) {
	if !p.verbose {
		return
	}
	var glyph string
	style := p.st.dim
	switch o.Status {
	case trace.StatusSuccess:
		glyph, style = GlyphPassed, p.st.success
	case trace.StatusIgnored:
		glyph, style = GlyphWarn, p.st.warning
	case trace.StatusSkipped:
		glyph = GlyphSkipped
	default:
		glyph, style = GlyphFailed, p.st.failure
	}
	p.line(style.Render(fmt.Sprintf("  %s %s %s (%s)", glyph, o.StepID, o.Kind, o.Duration.Round(time.Millisecond))))
}

func (p *Printer) Finished(success bool) {
	if success {
		p.line(p.st.success.Render(GlyphPassed + " run finished"))
		return
	}
	p.line(p.st.failure.Render(GlyphFailed + " run failed"))
}

// Result prints the summary line of a run result.
func (p *Printer) Result(res *engine.RunResult) {
	msg := fmt.Sprintf("%s in %s, %d steps", res.Status, res.Duration.Round(time.Millisecond), len(res.Executed))
	style := p.st.success
	if !res.Success {
		style = p.st.failure
		if res.Error != nil {
			msg += ": " + res.Error.Error()
		}
	}
	p.line(p.st.header.Render("run "+res.RunID) + " " + style.Render(msg))
}

var (
	_ engine.Listener     = (*Printer)(nil)
	_ engine.StepObserver = (*Printer)(nil)
)
