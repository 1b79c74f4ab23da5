// Package engine implements the step interpreter: it walks a script's steps
// in order, resolves templated parameters, dispatches each step to its action
// handler and recurses into sub-flows with isolated variable scopes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ormasoftchile/rpaflow/pkg/eval"
	"github.com/ormasoftchile/rpaflow/pkg/intent"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// DefaultMaxDepth bounds sub-flow nesting.
const DefaultMaxDepth = 16

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	// ErrRecursionLimit aborts a run whose sub-flows nest beyond MaxDepth.
	// It is not subject to ignore_error.
	ErrRecursionLimit = errors.New("sub-flow depth limit exceeded")
	// ErrCancelled is returned once Stop was called or the context ended.
	ErrCancelled = errors.New("run cancelled")
	// ErrElementNotFound reports a selector that matched nothing.
	ErrElementNotFound = errors.New("element not found")
	// ErrMissingParam reports a required parameter that is absent or empty.
	ErrMissingParam = errors.New("missing parameter")
	// ErrUnknownAction reports a step whose action_type has no handler.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrInternal wraps a recovered panic.
	ErrInternal = errors.New("internal error")
	// ErrAlreadyStarted is returned by a second call to Run.
	ErrAlreadyStarted = errors.New("run already started")
)

// StepError is the failure of one step.
type StepError struct {
	StepID string
	Kind   model.ActionKind
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.StepID, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Compiler turns a prompt into steps for ai_smart_step.
type Compiler interface {
	Compile(prompt string) []model.ActionStep
}

// RunConfig configures a run.
type RunConfig struct {
	RunID    string
	Provider provider.Provider // nil uses a dry-run provider
	Loader   ScriptLoader      // nil uses FileLoader{}
	Listener Listener
	Trace    *trace.Writer
	Compiler Compiler // nil uses the default intent rules
	MaxDepth int
	Logger   *slog.Logger
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID    string
	Status   string // completed, failed, cancelled
	Success  bool
	Duration time.Duration
	Error    error
	Executed []string
}

// runState is shared by an interpreter and every sub-flow interpreter of the
// same run.
type runState struct {
	cancelled   atomic.Bool
	traceFailed atomic.Bool

	mu       sync.Mutex
	executed []string
}

func (s *runState) record(id string) {
	s.mu.Lock()
	s.executed = append(s.executed, id)
	s.mu.Unlock()
}

// Engine interprets one script. The zero value is not usable; call New.
type Engine struct {
	cfg      RunConfig
	script   *model.AutomationScript
	env      *eval.Env
	provider provider.Provider
	loader   ScriptLoader
	listener Listener
	compiler Compiler
	logger   *slog.Logger
	depth    int
	state    *runState
	started  atomic.Bool
}

// New creates an interpreter with a fresh environment cloned from the
// script's variables. The script itself is never mutated.
func New(script *model.AutomationScript, cfg RunConfig) *Engine {
	if cfg.RunID == "" {
		cfg.RunID = model.NewID()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "engine", "run_id", cfg.RunID)

	p := cfg.Provider
	if p == nil {
		p = provider.NewDryRun(logger)
	}
	var loader ScriptLoader = FileLoader{}
	if cfg.Loader != nil {
		loader = cfg.Loader
	}
	var listener Listener = nopListener{}
	if cfg.Listener != nil {
		listener = cfg.Listener
	}
	var compiler Compiler = intent.New(nil)
	if cfg.Compiler != nil {
		compiler = cfg.Compiler
	}

	return &Engine{
		cfg:      cfg,
		script:   script,
		env:      eval.NewEnv(script.Variables),
		provider: p,
		loader:   loader,
		listener: listener,
		compiler: compiler,
		logger:   logger,
		state:    &runState{},
	}
}

// RunID returns the run identifier.
func (e *Engine) RunID() string { return e.cfg.RunID }

// Env returns the live environment. It must not be read while a run is in
// progress on another goroutine.
func (e *Engine) Env() *eval.Env { return e.env }

// Executed returns the ids of executed steps in order, sub-flow steps
// included.
func (e *Engine) Executed() []string {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	out := make([]string, len(e.state.executed))
	copy(out, e.state.executed)
	return out
}

// Stop requests cancellation. It is observed before the next step starts;
// the current step is not interrupted and nothing is rolled back.
func (e *Engine) Stop() {
	e.state.cancelled.Store(true)
}

// Run executes the script's top-level steps, stops the provider and reports
// Finished exactly once. Panics raised while executing are recovered and
// reported as a failed run.
func (e *Engine) Run(ctx context.Context) (res *RunResult) {
	if !e.started.CompareAndSwap(false, true) {
		return &RunResult{RunID: e.cfg.RunID, Status: StatusFailed, Error: ErrAlreadyStarted}
	}

	start := time.Now()
	res = &RunResult{RunID: e.cfg.RunID}
	e.traced(e.cfg.Trace.EmitRunStart(e.script.Name, e.script.ID, e.env.Snapshot()))
	e.logger.Info("run started", "script", e.script.Name, "steps", len(e.script.Steps))
	e.log(fmt.Sprintf("run started: %s", e.script.Name), SeverityInfo)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			e.log(fmt.Sprintf("run aborted: %v", r), SeverityError)
			res.Status = StatusFailed
			res.Success = false
			res.Error = fmt.Errorf("%w: %v", ErrInternal, r)
		}
		if err := e.provider.Stop(); err != nil {
			e.logger.Warn("provider stop failed", "error", err)
		}
		res.Duration = time.Since(start)
		res.Executed = e.Executed()

		errMsg := ""
		if res.Error != nil {
			errMsg = res.Error.Error()
		}
		e.traced(e.cfg.Trace.EmitRunComplete(res.Status, res.Duration, len(res.Executed), errMsg))
		e.logger.Info("run finished", "status", res.Status, "duration", res.Duration)
		e.listener.Finished(res.Success)
	}()

	err := e.execute(ctx, e.script.Steps)
	switch {
	case err == nil:
		res.Status = StatusCompleted
		res.Success = true
	case errors.Is(err, ErrCancelled):
		res.Status = StatusCancelled
		res.Success = true
		res.Error = err
	default:
		res.Status = StatusFailed
		res.Error = err
		e.log(fmt.Sprintf("run failed: %v", err), SeverityError)
	}
	return res
}

// Exec runs an ad-hoc step list against the live environment under the same
// failure policy as Run. It neither stops the provider nor reports Finished.
func (e *Engine) Exec(ctx context.Context, steps []model.ActionStep) error {
	return e.execute(ctx, steps)
}

func (e *Engine) stopped(ctx context.Context) bool {
	return e.state.cancelled.Load() || ctx.Err() != nil
}

// execute runs steps in order. The first unignored failure ends the sequence
// and is returned to the caller, which aborts every enclosing sequence.
func (e *Engine) execute(ctx context.Context, steps []model.ActionStep) error {
	for i := range steps {
		if e.stopped(ctx) {
			e.log("run stopped", SeverityWarning)
			return ErrCancelled
		}
		step := &steps[i]
		if !step.Enabled {
			e.traced(e.cfg.Trace.EmitStepComplete(step.ID, trace.StatusSkipped, 0, ""))
			e.observe(step, trace.StatusSkipped, 0, nil)
			continue
		}
		if err := e.executeStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeStep(ctx context.Context, step *model.ActionStep) error {
	start := time.Now()
	e.listener.StepStarted(step.ID)
	e.state.record(step.ID)

	params := eval.ResolveMap(step.Parameters, e.env.Vars())
	e.traced(e.cfg.Trace.EmitStepStart(step.ID, string(step.ActionType), e.depth, params))

	err := e.dispatch(ctx, step, params)
	if err == nil {
		e.traced(e.cfg.Trace.EmitStepComplete(step.ID, trace.StatusSuccess, time.Since(start), ""))
		e.observe(step, trace.StatusSuccess, time.Since(start), nil)
		return nil
	}

	d := time.Since(start)
	fatal := errors.Is(err, ErrRecursionLimit) || errors.Is(err, ErrCancelled)
	if !fatal && eval.Truthy(params["ignore_error"]) {
		e.log(fmt.Sprintf("step %s (%s) failed, continuing: %v", step.ID, step.ActionType, err), SeverityWarning)
		e.traced(e.cfg.Trace.EmitStepComplete(step.ID, trace.StatusIgnored, d, err.Error()))
		e.observe(step, trace.StatusIgnored, d, err)
		return nil
	}

	if !errors.Is(err, ErrCancelled) {
		e.log(fmt.Sprintf("step %s (%s) failed: %v", step.ID, step.ActionType, err), SeverityError)
	}
	e.traced(e.cfg.Trace.EmitStepComplete(step.ID, trace.StatusFailed, d, err.Error()))
	e.observe(step, trace.StatusFailed, d, err)

	var se *StepError
	if errors.As(err, &se) {
		// Nested failure already carries the innermost step.
		return fmt.Errorf("step %s: %w", step.ID, err)
	}
	return &StepError{StepID: step.ID, Kind: step.ActionType, Err: err}
}

func (e *Engine) dispatch(ctx context.Context, step *model.ActionStep, params map[string]any) error {
	h, ok := handlers[step.ActionType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, step.ActionType)
	}
	return h(ctx, e, step, params)
}

func (e *Engine) log(message string, severity Severity) {
	e.listener.Log(message, severity)
	e.traced(e.cfg.Trace.EmitLog(message, string(severity)))
}

// traced logs the first trace write failure of a run. Later failures are
// dropped; the run itself is not affected.
func (e *Engine) traced(err error) {
	if err == nil || !e.state.traceFailed.CompareAndSwap(false, true) {
		return
	}
	e.logger.Warn("trace write failed, the trace will be incomplete", "error", err)
}

func (e *Engine) observe(step *model.ActionStep, status trace.StepStatus, d time.Duration, err error) {
	obs, ok := e.listener.(StepObserver)
	if !ok {
		return
	}
	obs.StepFinished(StepOutcome{
		RunID:    e.cfg.RunID,
		StepID:   step.ID,
		Kind:     step.ActionType,
		Status:   status,
		Depth:    e.depth,
		Duration: d,
		Err:      err,
	})
}

// child returns the interpreter for a sub-flow. It shares the provider,
// loader, compiler and cancel flag of the run, and sees only vars.
func (e *Engine) child(script *model.AutomationScript, vars map[string]any) *Engine {
	c := &Engine{
		cfg:      e.cfg,
		script:   script,
		env:      eval.NewEnv(vars),
		provider: e.provider,
		loader:   e.loader,
		listener: childListener{parent: e.listener},
		compiler: e.compiler,
		logger:   e.logger,
		depth:    e.depth + 1,
		state:    e.state,
	}
	c.started.Store(true)
	return c
}
