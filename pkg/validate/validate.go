// Package validate checks automation scripts and trigger files in three
// phases: structural (decode), semantic (JSON Schema) and domain rules.
package validate

import (
	"fmt"
	"path/filepath"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// Phase names.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"
)

// Severity values.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError is a single finding with location context.
type ValidationError struct {
	Phase    string `json:"phase"`
	Path     string `json:"path"` // JSON-path-like location, e.g. "steps[2].parameters.url"
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

func errorf(phase, path, format string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityError,
	}
}

func warningf(phase, path, format string, args ...any) *ValidationError {
	return &ValidationError{
		Phase:    phase,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: SeverityWarning,
	}
}

// ValidateScriptFile runs the full pipeline on a script file. Sub-flow paths
// are checked relative to the file's directory.
func ValidateScriptFile(path string) (*model.AutomationScript, []*ValidationError) {
	s, err := model.LoadScriptFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", "%v", err)}
	}
	return s, validateScript(s, filepath.Dir(path), path)
}

// ValidateScript runs the semantic and domain phases on an in-memory script.
// baseDir resolves relative sub-flow paths; empty skips the existence check.
func ValidateScript(s *model.AutomationScript, baseDir string) []*ValidationError {
	return validateScript(s, baseDir, "")
}

func validateScript(s *model.AutomationScript, baseDir, self string) []*ValidationError {
	errs := validateSemantic(s, scriptSchema)
	demoteSemantic(s, errs)
	if hasErrors(errs) {
		return errs
	}
	return append(errs, validateScriptDomain(s, baseDir, self)...)
}

// ValidateTriggersFile runs the pipeline on a persisted trigger collection.
func ValidateTriggersFile(path string) ([]model.Trigger, []*ValidationError) {
	triggers, err := model.LoadTriggersFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf(PhaseStructural, "", "%v", err)}
	}
	return triggers, ValidateTriggers(triggers)
}

// ValidateTriggers runs the semantic and domain phases on a trigger list.
func ValidateTriggers(triggers []model.Trigger) []*ValidationError {
	if triggers == nil {
		triggers = []model.Trigger{}
	}
	errs := validateSemantic(triggers, triggerSchema)
	if hasErrors(errs) {
		return errs
	}
	return append(errs, validateTriggerDomain(triggers)...)
}

// Errors filters out warnings.
func Errors(all []*ValidationError) []*ValidationError {
	var out []*ValidationError
	for _, e := range all {
		if e.Severity == SeverityError {
			out = append(out, e)
		}
	}
	return out
}

func hasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}
