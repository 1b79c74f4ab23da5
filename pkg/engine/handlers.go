package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/rpaflow/pkg/eval"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
)

// handler performs one action kind with already-resolved parameters.
type handler func(ctx context.Context, e *Engine, step *model.ActionStep, params map[string]any) error

// handlers is the dispatch table. It is filled in init because several
// handlers re-enter the interpreter.
var handlers map[model.ActionKind]handler

func init() {
	handlers = map[model.ActionKind]handler{
		model.KindOpenURL:        openURL,
		model.KindClick:          click,
		model.KindInput:          inputText,
		model.KindSetDatetime:    setDatetime,
		model.KindGetText:        getText,
		model.KindListInit:       listInit,
		model.KindListAppend:     listAppend,
		model.KindCallSubprocess: callSubprocess,
		model.KindAISmartStep:    aiSmartStep,
	}
}

// param returns the stringified value of key, or def when it is absent.
func param(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	return eval.Stringify(v)
}

func required(params map[string]any, key string) (string, error) {
	s := strings.TrimSpace(param(params, key, ""))
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return s, nil
}

func openURL(ctx context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	url, err := required(params, "url")
	if err != nil {
		return err
	}
	if err := e.provider.OpenURL(ctx, url); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	e.log(fmt.Sprintf("opened %s", url), SeverityInfo)
	return nil
}

func click(ctx context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	target, err := required(params, "target")
	if err != nil {
		return err
	}
	found, err := e.provider.Click(ctx, target)
	if err != nil {
		return fmt.Errorf("click %s: %w", target, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrElementNotFound, target)
	}
	return nil
}

func inputText(ctx context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	target, err := required(params, "target")
	if err != nil {
		return err
	}
	found, err := e.provider.InputText(ctx, target, param(params, "text", ""))
	if err != nil {
		return fmt.Errorf("input %s: %w", target, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrElementNotFound, target)
	}
	return nil
}

// datetimeScript sets a field's value and dispatches its change event. The
// selector and value are substituted as JSON string literals.
const datetimeScript = `(() => { const el = document.querySelector(%s); if (!el) return false; el.value = %s; el.dispatchEvent(new Event('change', { bubbles: true })); return true; })()`

func setDatetime(ctx context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	target, err := required(params, "target")
	if err != nil {
		return err
	}
	value := param(params, "value", "")

	var found bool
	if ds, ok := e.provider.(provider.DatetimeSetter); ok {
		found, err = ds.SetDatetime(ctx, target, value)
	} else {
		sel, _ := json.Marshal(target)
		val, _ := json.Marshal(value)
		var out any
		out, err = e.provider.Evaluate(ctx, fmt.Sprintf(datetimeScript, sel, val))
		found = eval.Truthy(out)
	}
	if err != nil {
		return fmt.Errorf("set datetime %s: %w", target, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrElementNotFound, target)
	}
	return nil
}

func getText(ctx context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	target, err := required(params, "target")
	if err != nil {
		return err
	}
	name := param(params, "var", "temp")

	text, found, err := e.provider.GetText(ctx, target)
	if err != nil || !found {
		e.env.Set(name, nil)
		if err != nil {
			return fmt.Errorf("get text %s: %w", target, err)
		}
		return fmt.Errorf("%w: %s", ErrElementNotFound, target)
	}
	e.env.Set(name, text)
	e.log(fmt.Sprintf("extracted %s = %q", name, text), SeverityInfo)
	return nil
}

func listInit(_ context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	e.env.Set(param(params, "var", "my_list"), []any{})
	return nil
}

func listAppend(_ context.Context, e *Engine, _ *model.ActionStep, params map[string]any) error {
	name := param(params, "list_var", "my_list")
	item, ok := params["item_val"]
	if !ok {
		item = ""
	}

	cur, ok := e.env.Get(name)
	if !ok {
		return fmt.Errorf("list %s is not defined", name)
	}
	list, ok := cur.([]any)
	if !ok {
		return fmt.Errorf("variable %s is %T, not a list", name, cur)
	}
	e.env.Set(name, append(list, item))
	e.log(fmt.Sprintf("appended to %s: %s", name, eval.Stringify(item)), SeveritySuccess)
	return nil
}

func callSubprocess(ctx context.Context, e *Engine, step *model.ActionStep, params map[string]any) error {
	path, err := required(params, "sub_path")
	if err != nil {
		return err
	}
	if e.depth+1 > e.cfg.MaxDepth {
		return fmt.Errorf("%w: %s at depth %d", ErrRecursionLimit, path, e.depth+1)
	}
	script, err := e.loader.Load(path)
	if err != nil {
		return err
	}

	// Each mapping passes the parent's value, or the name itself as a
	// literal when the parent has no such variable.
	names := make([]string, 0, len(step.ArgMappings))
	for childName := range step.ArgMappings {
		names = append(names, childName)
	}
	sort.Strings(names)

	inputs := make(map[string]any, len(names))
	for _, childName := range names {
		parentName := step.ArgMappings[childName]
		if v, ok := e.env.Get(parentName); ok {
			inputs[childName] = eval.Clone(v)
		} else {
			inputs[childName] = parentName
		}
	}

	e.traced(e.cfg.Trace.EmitSubflowEnter(step.ID, path, e.depth+1, inputs))
	e.log(fmt.Sprintf("entering sub-flow %s", script.Name), SeverityInfo)

	sub := e.child(script, inputs)
	if err := sub.execute(ctx, script.Steps); err != nil {
		e.traced(e.cfg.Trace.EmitSubflowExit(step.ID, false, nil))
		return fmt.Errorf("sub-flow %s: %w", path, err)
	}

	var copied []string
	for _, childName := range names {
		if v, ok := sub.env.Get(childName); ok {
			parentName := step.ArgMappings[childName]
			e.env.Set(parentName, eval.Clone(v))
			copied = append(copied, parentName)
		}
	}
	e.traced(e.cfg.Trace.EmitSubflowExit(step.ID, true, copied))
	e.log(fmt.Sprintf("sub-flow %s finished", script.Name), SeveritySuccess)
	return nil
}

func aiSmartStep(ctx context.Context, e *Engine, step *model.ActionStep, params map[string]any) error {
	prompt, err := required(params, "prompt")
	if err != nil {
		return err
	}
	steps := e.compiler.Compile(prompt)

	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	e.traced(e.cfg.Trace.EmitIntentCompiled(step.ID, prompt, ids))
	if len(steps) == 0 {
		e.log(fmt.Sprintf("prompt %q produced no steps", prompt), SeverityWarning)
		return nil
	}
	e.log(fmt.Sprintf("prompt %q compiled to %d steps", prompt, len(steps)), SeverityInfo)
	return e.execute(ctx, steps)
}
