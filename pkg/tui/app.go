package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// --- Tea messages ---

type logMsg struct {
	text     string
	severity engine.Severity
}

type stepStartedMsg struct{ id string }

type stepFinishedMsg struct{ outcome engine.StepOutcome }

type runFinishedMsg struct{ result *engine.RunResult }

// listener turns engine events into program messages.
type listener struct {
	send func(tea.Msg)
}

func (l listener) Log(message string, severity engine.Severity) {
	l.send(logMsg{text: message, severity: severity})
}
func (l listener) StepStarted(stepID string)         { l.send(stepStartedMsg{id: stepID}) }
func (l listener) StepFinished(o engine.StepOutcome) { l.send(stepFinishedMsg{outcome: o}) }
func (l listener) Finished(bool)                     {}

// Runner is a started run.
type Runner interface {
	Wait() *engine.RunResult
}

// Config holds what the monitor needs to start and stop one run.
type Config struct {
	Script   *model.AutomationScript
	Mode     string
	TraceDir string // shown with the result; empty hides the trace path
	// Start launches the run, reporting to l.
	Start func(l engine.Listener) (Runner, error)
	// Stop requests cancellation of the run.
	Stop func()
}

// Model is the Bubble Tea model of the run monitor.
type Model struct {
	steps   stepsPanel
	output  outputPanel
	search  searchBar
	spinner spinner.Model

	name     string
	mode     string
	traceDir string
	stop     func()

	running  bool
	stopping bool
	result   *engine.RunResult
	stack    []int // indices of started, unfinished steps
	follow   bool
	showRun  bool

	width  int
	height int
}

// NewModel returns a monitor for script in the running state.
func NewModel(cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	name := model.DefaultScriptName
	var steps []model.ActionStep
	if cfg.Script != nil {
		name = cfg.Script.Name
		steps = cfg.Script.Steps
	}
	return Model{
		steps:    newStepsPanel(steps),
		output:   newOutputPanel(),
		search:   newSearchBar(),
		spinner:  sp,
		name:     name,
		mode:     cfg.Mode,
		traceDir: cfg.TraceDir,
		stop:     cfg.Stop,
		running:  true,
		follow:   true,
		showRun:  true,
	}
}

// Run shows the monitor until the user quits and returns the run's result.
// Quitting while the run is active stops it first.
func Run(cfg Config) (*engine.RunResult, error) {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen())

	run, err := cfg.Start(listener{send: p.Send})
	if err != nil {
		return nil, err
	}
	go func() {
		p.Send(runFinishedMsg{result: run.Wait()})
	}()

	final, err := p.Run()
	if fm, ok := final.(Model); ok && fm.result != nil {
		return fm.result, err
	}
	// The program ended before the run did.
	if cfg.Stop != nil {
		cfg.Stop()
	}
	return run.Wait(), err
}

// Result returns the run result once the run has finished.
func (m Model) Result() *engine.RunResult { return m.result }

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case logMsg:
		m.handleLog(msg)

	case stepStartedMsg:
		m.handleStepStarted(msg.id)

	case stepFinishedMsg:
		m.handleStepFinished(msg.outcome)

	case runFinishedMsg:
		m.running = false
		m.result = msg.result
		m.stack = nil
		m.output.Append(runLog, m.resultLine())
		if m.stopping {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) handleLog(msg logMsg) {
	line := formatLog(msg)
	m.output.Append(runLog, line)
	if n := len(m.stack); n > 0 {
		m.output.Append(m.stack[n-1], line)
	}
}

func formatLog(msg logMsg) string {
	switch msg.severity {
	case engine.SeveritySuccess:
		return stepPassed.Render(GlyphPassed + " " + msg.text)
	case engine.SeverityWarning:
		return warnStyle.Render(GlyphIgnored + " " + msg.text)
	case engine.SeverityError:
		return errorStyle.Render(GlyphFailed + " " + msg.text)
	default:
		return "· " + msg.text
	}
}

// locate finds the list entry for a step event at the current nesting
// depth, inserting one under the innermost running step when the step was
// not listed up front.
func (m *Model) locate(id string) int {
	depth := len(m.stack)
	if i := m.steps.find(id, depth); i >= 0 {
		return i
	}
	parent := -1
	if depth > 0 {
		parent = m.stack[depth-1]
	}
	i := m.steps.insertUnder(parent, stepInfo{ID: id, Depth: depth})
	m.output.Shift(i)
	return i
}

func (m *Model) handleStepStarted(id string) {
	i := m.locate(id)
	m.steps.steps[i].Status = statusCurrent
	m.stack = append(m.stack, i)
	if m.follow {
		m.steps.Select(i)
		if !m.showRun {
			m.output.Show(i)
		}
	}
}

func (m *Model) handleStepFinished(o engine.StepOutcome) {
	var i int
	if n := len(m.stack); n > 0 && m.steps.steps[m.stack[n-1]].ID == o.StepID {
		i = m.stack[n-1]
		m.stack = m.stack[:n-1]
	} else {
		// Disabled steps finish without starting.
		i = m.locate(o.StepID)
	}

	s := &m.steps.steps[i]
	s.Kind = o.Kind
	s.Status = statusFromTrace(o.Status)
	s.Duration = o.Duration
	if o.Err != nil {
		s.Error = o.Err.Error()
	}
	if s.Status == statusSkipped {
		m.output.Append(i, stepSkipped.Render(GlyphSkipped+" disabled, not run"))
	}
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.search.IsActive() {
		cmd := m.search.Update(msg)
		m.output.SetHighlight(m.search.Query())
		return m, cmd
	}

	switch {
	case matchKey(msg, keys.Quit):
		if !m.running {
			return m, tea.Quit
		}
		if !m.stopping {
			m.stopping = true
			if m.stop != nil {
				m.stop()
			}
		}

	case msg.String() == "esc":
		if m.search.HasQuery() {
			m.search.Close()
			m.output.SetHighlight("")
		}

	case matchKey(msg, keys.Up):
		m.follow = false
		m.steps.CursorUp()
		m.showSelected()

	case matchKey(msg, keys.Down):
		m.follow = false
		m.steps.CursorDown()
		m.showSelected()

	case matchKey(msg, keys.PgUp):
		m.output.PageUp()

	case matchKey(msg, keys.PgDown):
		m.output.PageDown()

	case matchKey(msg, keys.Follow):
		m.follow = true
		if n := len(m.stack); n > 0 {
			m.steps.Select(m.stack[n-1])
		}
		m.showSelected()

	case matchKey(msg, keys.RunLog):
		m.showRun = !m.showRun
		m.showSelected()

	case matchKey(msg, keys.Search):
		m.search.Open()
	}
	return m, nil
}

func (m *Model) showSelected() {
	if m.showRun {
		m.output.Show(runLog)
		return
	}
	m.output.Show(m.steps.cursor)
}

// layoutPanels recalculates panel dimensions based on terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}

	headerH := 1
	detailH := maxParamLines + 8
	mainH := m.height - headerH - detailH
	if mainH < 5 {
		mainH = 5
	}

	stepsW := m.width * 30 / 100
	if stepsW < 24 {
		stepsW = 24
	}
	if stepsW > 45 {
		stepsW = 45
	}
	m.steps.width = stepsW
	m.steps.height = mainH
	m.output.SetSize(m.width-stepsW, mainH)
}

// View renders the complete monitor.
func (m Model) View() string {
	var main string
	if m.width > 0 {
		title := "Run log"
		if !m.showRun {
			if s := m.steps.Selected(); s != nil {
				title = "Step " + s.ID
			}
		}
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.steps.View(), m.output.View(title))
	}

	result := m.renderHeader() + "\n" + main
	if sv := m.search.View(m.output.matches); sv != "" {
		result += "\n" + sv
	}
	return result + "\n" + m.renderDetail()
}

// renderHeader builds the top header line.
func (m Model) renderHeader() string {
	left := headerStyle.Render("rpaflow")
	if m.mode != "" {
		left += " " + modeBadgeStyle.Render(m.mode)
	}
	left += "  " + detailValueStyle.Render(m.name)

	var status string
	switch {
	case m.stopping && m.running:
		status = m.spinner.View() + " stopping"
	case m.running:
		status = m.spinner.View() + " running"
	default:
		total, passed, failed, skipped := m.steps.Stats()
		status = fmt.Sprintf("%s %s %s /%d",
			statusPassedStyle.Render(fmt.Sprintf("%s%d", GlyphPassed, passed)),
			statusFailedStyle.Render(fmt.Sprintf("%s%d", GlyphFailed, failed)),
			stepSkipped.Render(fmt.Sprintf("%s%d", GlyphSkipped, skipped)),
			total)
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(status) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + status
}
