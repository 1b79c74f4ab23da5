package engine

import (
	"time"

	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// Severity classifies a log line.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Listener receives the event stream of a run. Calls arrive on the run's
// goroutine, in order.
type Listener interface {
	Log(message string, severity Severity)
	// StepStarted is not called for disabled steps; they are reported only
	// through StepObserver with status skipped.
	StepStarted(stepID string)
	Finished(success bool)
}

// StepOutcome describes a step once it has been handled.
type StepOutcome struct {
	RunID    string
	StepID   string
	Kind     model.ActionKind
	Status   trace.StepStatus
	Depth    int
	Duration time.Duration
	Err      error
}

// StepObserver is an optional Listener extension notified after each step.
type StepObserver interface {
	StepFinished(StepOutcome)
}

// ListenerFuncs adapts closures to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnLog          func(message string, severity Severity)
	OnStepStarted  func(stepID string)
	OnFinished     func(success bool)
	OnStepFinished func(StepOutcome)
}

func (f ListenerFuncs) Log(message string, severity Severity) {
	if f.OnLog != nil {
		f.OnLog(message, severity)
	}
}

func (f ListenerFuncs) StepStarted(stepID string) {
	if f.OnStepStarted != nil {
		f.OnStepStarted(stepID)
	}
}

func (f ListenerFuncs) Finished(success bool) {
	if f.OnFinished != nil {
		f.OnFinished(success)
	}
}

func (f ListenerFuncs) StepFinished(o StepOutcome) {
	if f.OnStepFinished != nil {
		f.OnStepFinished(o)
	}
}

// Listeners fans every event out to each member in order.
type Listeners []Listener

func (ls Listeners) Log(message string, severity Severity) {
	for _, l := range ls {
		l.Log(message, severity)
	}
}

func (ls Listeners) StepStarted(stepID string) {
	for _, l := range ls {
		l.StepStarted(stepID)
	}
}

func (ls Listeners) Finished(success bool) {
	for _, l := range ls {
		l.Finished(success)
	}
}

func (ls Listeners) StepFinished(o StepOutcome) {
	for _, l := range ls {
		if obs, ok := l.(StepObserver); ok {
			obs.StepFinished(o)
		}
	}
}

type nopListener struct{}

func (nopListener) Log(string, Severity) {}
func (nopListener) StepStarted(string)   {}
func (nopListener) Finished(bool)        {}

// childListener forwards a sub-flow's events to the parent's listener.
// Only the top-level run reports Finished.
type childListener struct {
	parent Listener
}

func (c childListener) Log(message string, severity Severity) { c.parent.Log(message, severity) }
func (c childListener) StepStarted(stepID string)             { c.parent.StepStarted(stepID) }
func (c childListener) Finished(bool)                         {}

func (c childListener) StepFinished(o StepOutcome) {
	if obs, ok := c.parent.(StepObserver); ok {
		obs.StepFinished(o)
	}
}
