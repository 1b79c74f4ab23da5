package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/intent"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
)

func newSession(t *testing.T, compiler engine.Compiler) (*Session, *provider.DryRun, *bytes.Buffer) {
	t.Helper()
	p := provider.NewDryRun(nil)
	eng := engine.New(model.NewScript("repl"), engine.RunConfig{Provider: p})
	var buf bytes.Buffer
	s := New(eng, compiler)
	s.SetOutput(&buf)
	return s, p, &buf
}

func TestHandle_CompileThenRun(t *testing.T) {
	s, p, out := newSession(t, nil)
	ctx := context.Background()

	s.Handle(ctx, "获取价格")
	if len(s.pending) != 1 || s.pending[0].ActionType != model.KindGetText {
		t.Fatalf("expected one pending get_text, got %v", s.pending)
	}
	if !strings.Contains(out.String(), ".price-tag") {
		t.Errorf("compiled steps not shown: %s", out)
	}
	if len(p.Calls()) != 0 {
		t.Fatal("compiling must not touch the provider")
	}

	s.Handle(ctx, "run")
	if len(s.pending) != 0 || len(s.history) != 1 {
		t.Errorf("pending=%d history=%d", len(s.pending), len(s.history))
	}
	if calls := p.Calls(); len(calls) != 1 || calls[0].Target != ".price-tag" {
		t.Errorf("unexpected provider calls %v", calls)
	}
	if !s.engine.Env().Has("current_price") {
		t.Error("expected current_price in the environment")
	}
}

func TestHandle_FailedRunKeepsPending(t *testing.T) {
	s, _, out := newSession(t, nil)
	ctx := context.Background()

	s.Handle(ctx, "写入列表")
	s.Handle(ctx, "run")
	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("expected an error line, got %s", out)
	}
	if len(s.pending) != 1 {
		t.Errorf("failed steps should stay pending, got %d", len(s.pending))
	}
	if len(s.history) != 0 {
		t.Errorf("history should be empty, got %d", len(s.history))
	}
}

func TestHandle_NoMatch(t *testing.T) {
	s, _, out := newSession(t, nil)
	s.Handle(context.Background(), "hello there")
	if !strings.Contains(out.String(), "No steps matched") {
		t.Errorf("got %s", out)
	}
	if len(s.pending) != 0 {
		t.Error("expected nothing pending")
	}
}

func TestHandle_AutoAndSave(t *testing.T) {
	compiler := intent.New([]intent.Rule{
		{Name: "init", Keywords: []string{"new list"}, Kind: model.KindListInit, Params: map[string]any{"var": "result_list"}},
		{Name: "add", Keywords: []string{"add"}, Kind: model.KindListAppend, Params: map[string]any{"list_var": "result_list", "item_val": "{{ item }}"}},
	})
	s, _, out := newSession(t, compiler)
	ctx := context.Background()

	s.Handle(ctx, "auto on")
	s.engine.Env().Set("item", "lamp")
	s.Handle(ctx, "new list and add")

	v, _ := s.engine.Env().Get("result_list")
	list, ok := v.([]any)
	if !ok || len(list) != 1 || list[0] != "lamp" {
		t.Fatalf("result_list = %#v", v)
	}

	s.Handle(ctx, "vars")
	if !strings.Contains(out.String(), `result_list = ["lamp"]`) {
		t.Errorf("vars output: %s", out)
	}

	path := filepath.Join(t.TempDir(), "saved.json")
	s.Handle(ctx, "save "+path+" shopping")
	saved, err := model.LoadScriptFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "shopping" || len(saved.Steps) != 2 {
		t.Errorf("saved script = %s with %d steps", saved.Name, len(saved.Steps))
	}
}

func TestHandle_Open(t *testing.T) {
	s, p, _ := newSession(t, nil)
	s.Handle(context.Background(), "open https://shop.example")
	calls := p.Calls()
	if len(calls) != 1 || calls[0].Op != "open_url" || calls[0].Target != "https://shop.example" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestHandle_Usage(t *testing.T) {
	s, _, out := newSession(t, nil)
	ctx := context.Background()
	for _, line := range []string{"open", "save", "run", "vars", "auto maybe"} {
		s.Handle(ctx, line)
	}
	for _, want := range []string{"Usage: open", "Usage: save", "Nothing to run", "No variables defined", "Usage: auto"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestHandle_Quit(t *testing.T) {
	s, _, _ := newSession(t, nil)
	if !s.Handle(context.Background(), "quit") {
		t.Error("quit should end the session")
	}
	if s.Handle(context.Background(), "   ") {
		t.Error("blank line should not end the session")
	}
}

func TestHandleHelp(t *testing.T) {
	s, _, out := newSession(t, nil)
	s.handleHelp()
	for _, cmd := range []string{"run", "open", "vars", "steps", "history", "save", "auto", "help", "quit"} {
		if !strings.Contains(out.String(), cmd) {
			t.Errorf("help output missing command %q", cmd)
		}
	}
}

func TestPrompt(t *testing.T) {
	s, _, _ := newSession(t, nil)
	if got := s.prompt(); got != "rpaflow> " {
		t.Errorf("got %q", got)
	}
	s.Handle(context.Background(), "获取价格")
	if got := s.prompt(); got != "rpaflow[1 pending]> " {
		t.Errorf("got %q", got)
	}
}
