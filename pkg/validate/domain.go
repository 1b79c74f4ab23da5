package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/eval"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

// requiredParams lists the parameters a kind cannot run without.
var requiredParams = map[model.ActionKind][]string{
	model.KindOpenURL:        {"url"},
	model.KindClick:          {"target"},
	model.KindInput:          {"target"},
	model.KindSetDatetime:    {"target"},
	model.KindGetText:        {"target"},
	model.KindCallSubprocess: {"sub_path"},
	model.KindAISmartStep:    {"prompt"},
}

func validateScriptDomain(s *model.AutomationScript, baseDir, self string) []*ValidationError {
	var errs []*ValidationError

	if len(s.Steps) == 0 {
		errs = append(errs, warningf(PhaseDomain, "steps", "script has no steps"))
	}

	seen := make(map[string]string)
	s.WalkSteps(func(path string, step *model.ActionStep) {
		if first, dup := seen[step.ID]; dup {
			errs = append(errs, warningf(PhaseDomain, path+".id", "duplicate step ID %q (first at %s)", step.ID, first))
		} else {
			seen[step.ID] = path
		}

		report := errorf
		if !blocksRun(path, step) {
			report = warningf
		}

		if !step.ActionType.Valid() {
			errs = append(errs, report(PhaseDomain, path+".action_type", "unknown action type %q", step.ActionType))
			return
		}

		for _, key := range requiredParams[step.ActionType] {
			if strings.TrimSpace(eval.Stringify(step.Parameters[key])) == "" {
				errs = append(errs, report(PhaseDomain, path+".parameters."+key, "%s step requires '%s' parameter", step.ActionType, key))
			}
		}

		for key, v := range step.Parameters {
			str, ok := v.(string)
			if !ok {
				continue
			}
			for _, code := range eval.Expressions(str) {
				if err := eval.Check(code); err != nil {
					errs = append(errs, warningf(PhaseDomain, path+".parameters."+key, "expression %q will be left unresolved: %v", code, err))
				}
			}
		}

		if len(step.ArgMappings) > 0 && step.ActionType != model.KindCallSubprocess {
			errs = append(errs, warningf(PhaseDomain, path+".arg_mappings", "arg_mappings only apply to call_subprocess steps"))
		}
		if len(step.Children) > 0 {
			errs = append(errs, warningf(PhaseDomain, path+".children", "nested children are persisted but not executed"))
		}

		if step.ActionType == model.KindCallSubprocess {
			errs = append(errs, checkSubPath(path, step, baseDir, self)...)
		}
	})

	return errs
}

// blocksRun reports whether a problem with step would stop a run. Nested
// children never execute, disabled steps are skipped and steps with
// ignore_error set (or templated) only fail themselves.
func blocksRun(path string, step *model.ActionStep) bool {
	if strings.Contains(path, ".children") {
		return false
	}
	return step.Enabled && !eval.Truthy(step.Parameters["ignore_error"])
}

// demoteSemantic turns schema errors on steps that cannot stop a run into
// warnings.
func demoteSemantic(s *model.AutomationScript, errs []*ValidationError) {
	for _, e := range errs {
		if e.Severity != SeverityError {
			continue
		}
		var i int
		if _, err := fmt.Sscanf(e.Path, "steps[%d]", &i); err != nil || i < 0 || i >= len(s.Steps) {
			continue
		}
		if !blocksRun(e.Path, &s.Steps[i]) {
			e.Severity = SeverityWarning
		}
	}
}

// checkSubPath verifies a literal sub_path exists. Templated paths are only
// known at run time and are skipped.
func checkSubPath(path string, step *model.ActionStep, baseDir, self string) []*ValidationError {
	sub := strings.TrimSpace(eval.Stringify(step.Parameters["sub_path"]))
	if sub == "" || baseDir == "" || strings.Contains(sub, "{{") {
		return nil
	}
	full := engine.FileLoader{BaseDir: baseDir}.Resolve(sub)
	if _, err := os.Stat(full); err != nil {
		return []*ValidationError{warningf(PhaseDomain, path+".parameters.sub_path", "sub-flow %q not found", sub)}
	}
	if self != "" && sameFile(full, self) {
		return []*ValidationError{warningf(PhaseDomain, path+".parameters.sub_path", "script calls itself; the run will stop at the depth limit")}
	}
	return nil
}

func sameFile(a, b string) bool {
	fa, err := os.Stat(a)
	if err != nil {
		return false
	}
	fb, err := os.Stat(b)
	if err != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return os.SameFile(fa, fb)
}

func validateTriggerDomain(triggers []model.Trigger) []*ValidationError {
	var errs []*ValidationError
	ids := make(map[string]int)
	combos := make(map[string]int)

	for i, t := range triggers {
		path := fmt.Sprintf("[%d]", i)
		if first, dup := ids[t.ID]; dup {
			errs = append(errs, errorf(PhaseDomain, path+".id", "duplicate trigger ID %q (first at [%d])", t.ID, first))
		} else {
			ids[t.ID] = i
		}

		if err := trigger.Validate(t); err != nil {
			errs = append(errs, errorf(PhaseDomain, path, "%v", err))
			continue
		}

		if t.Type == model.TriggerHotkey && t.Enabled {
			keys, _ := trigger.ParseCombo(t.Key())
			combo := strings.Join(keys, "+")
			if first, dup := combos[combo]; dup {
				errs = append(errs, warningf(PhaseDomain, path+".config.key", "hotkey %q also bound at [%d]; the later trigger wins", combo, first))
			}
			combos[combo] = i
		}
	}
	return errs
}
