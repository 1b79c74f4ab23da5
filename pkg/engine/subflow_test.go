package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

func callStep(id, path string, mappings map[string]string) model.ActionStep {
	s := step(id, model.KindCallSubprocess, map[string]any{"sub_path": path})
	s.ArgMappings = mappings
	return s
}

func TestSubflow_MappingsBothWays(t *testing.T) {
	child := script(
		step("c1", model.KindListAppend, map[string]any{"list_var": "items", "item_val": "{{ label }}"}),
		step("c2", model.KindListInit, map[string]any{"var": "scratch"}),
	)
	parent := script(callStep("call", "child.json", map[string]string{
		"items": "collected",
		"label": "title",
	}))
	parent.Variables = map[string]any{
		"collected": []any{"first"},
		"title":     "T",
		"secret":    "s",
	}

	var buf bytes.Buffer
	eng := New(parent, RunConfig{
		Provider: newFake(),
		Loader:   MapLoader{"child.json": child},
		Trace:    trace.NewWriter(&buf, "r"),
	})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}

	got, _ := eng.Env().Get("collected")
	if list := got.([]any); len(list) != 2 || list[1] != "T" {
		t.Errorf("collected = %v", got)
	}
	names := strings.Join(eng.Env().Names(), ",")
	if names != "collected,secret,title" {
		t.Errorf("parent names = %s; only mapped parent names may be written", names)
	}
	if len(child.Variables) != 0 {
		t.Error("child script was mutated")
	}
	events, _ := trace.Read(&buf)
	var enter, exit bool
	for _, e := range events {
		enter = enter || e.Type == trace.EventSubflowEnter
		exit = exit || e.Type == trace.EventSubflowExit
	}
	if !enter || !exit {
		t.Error("trace missing subflow events")
	}
}

func TestSubflow_ChildSeesOnlyMappedNames(t *testing.T) {
	// The child fails if it can resolve a name the parent did not pass.
	child := script(step("c", model.KindListAppend, map[string]any{"list_var": "secret"}))
	parent := script(callStep("call", "child.json", map[string]string{"x": "title"}))
	parent.Variables = map[string]any{"title": "T", "secret": []any{}}

	res := New(parent, RunConfig{Provider: newFake(), Loader: MapLoader{"child.json": child}}).Run(context.Background())
	if res.Success {
		t.Error("child resolved an unmapped parent variable")
	}
}

func TestSubflow_LiteralFallback(t *testing.T) {
	child := script(step("c", model.KindInput, map[string]any{"target": "#q", "text": "{{ query }}"}))
	parent := script(callStep("call", "child.json", map[string]string{"query": "laptops"}))

	p := newFake("#q")
	eng := New(parent, RunConfig{Provider: p, Loader: MapLoader{"child.json": child}})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	if p.calls[0] != "input #q=laptops" {
		t.Errorf("calls = %v", p.calls)
	}
	// query existed in the child, so it is copied back under the literal.
	if v, _ := eng.Env().Get("laptops"); v != "laptops" {
		t.Errorf("laptops = %v", v)
	}
}

func TestSubflow_ValuesDeepCopied(t *testing.T) {
	child := script(step("c", model.KindListAppend, map[string]any{"list_var": "xs", "item_val": "child"}))
	child2 := script(step("c", model.KindListAppend, map[string]any{"list_var": "xs", "item_val": "bad"}), step("boom", model.KindClick, map[string]any{"target": "#none"}))
	parent := script(
		callStep("ok", "child.json", map[string]string{"xs": "list"}),
		callStep("fail", "child2.json", map[string]string{"xs": "list"}),
	)
	parent.Steps[1].Parameters["ignore_error"] = true
	parent.Variables = map[string]any{"list": []any{}}

	eng := New(parent, RunConfig{Provider: newFake(), Loader: MapLoader{"child.json": child, "child2.json": child2}})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	got, _ := eng.Env().Get("list")
	if l := got.([]any); len(l) != 1 || l[0] != "child" {
		t.Errorf("list = %v; a failed child must copy nothing back", got)
	}
}

func TestSubflow_FailurePropagates(t *testing.T) {
	child := script(step("c", model.KindClick, map[string]any{"target": "#none"}))
	parent := script(
		callStep("call", "child.json", nil),
		step("after", model.KindListInit, nil),
	)
	rec := &recorder{}
	res := New(parent, RunConfig{Provider: newFake(), Loader: MapLoader{"child.json": child}, Listener: rec}).Run(context.Background())
	if res.Success {
		t.Fatal("expected failure")
	}
	if strings.Join(rec.started, ",") != "call,c" {
		t.Errorf("started = %v", rec.started)
	}
	var se *StepError
	if !errors.As(res.Error, &se) || se.StepID != "c" {
		t.Errorf("innermost step error = %v", res.Error)
	}
	if len(rec.finished) != 1 {
		t.Errorf("finished reported %d times", len(rec.finished))
	}
}

func TestSubflow_MissingPath(t *testing.T) {
	parent := script(callStep("call", "nowhere.json", nil))
	res := New(parent, RunConfig{Provider: newFake(), Loader: MapLoader{}}).Run(context.Background())
	if res.Success {
		t.Error("missing sub_path must fail")
	}
}

func TestSubflow_RecursionLimitIsFatal(t *testing.T) {
	loop := script()
	loop.Steps = []model.ActionStep{callStep("again", "loop.json", nil)}
	loop.Steps[0].Parameters["ignore_error"] = true
	loader := MapLoader{"loop.json": loop}

	parent := script(callStep("start", "loop.json", nil), step("after", model.KindListInit, nil))
	parent.Steps[0].Parameters["ignore_error"] = true

	eng := New(parent, RunConfig{Provider: newFake(), Loader: loader, MaxDepth: 4})
	res := eng.Run(context.Background())
	if res.Success || !errors.Is(res.Error, ErrRecursionLimit) {
		t.Fatalf("result = %v %v", res.Status, res.Error)
	}
	for _, id := range res.Executed {
		if id == "after" {
			t.Error("step after a recursion failure ran")
		}
	}
	if n := len(res.Executed); n != 5 {
		t.Errorf("executed %d call steps, want 5", n)
	}
}

func TestSubflow_CancelSharedWithChild(t *testing.T) {
	child := script(
		step("c1", model.KindClick, map[string]any{"target": "#a"}),
		step("c2", model.KindClick, map[string]any{"target": "#a"}),
	)
	parent := script(callStep("call", "child.json", nil), step("after", model.KindListInit, nil))
	p := newFake("#a")
	eng := New(parent, RunConfig{Provider: p, Loader: MapLoader{"child.json": child}})
	p.onClick = eng.Stop

	res := eng.Run(context.Background())
	if res.Status != StatusCancelled {
		t.Errorf("status = %q err = %v", res.Status, res.Error)
	}
	if got := strings.Join(res.Executed, ","); got != "call,c1" {
		t.Errorf("executed = %s", got)
	}
}
