package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
)

// fakeProvider serves texts by selector; selectors absent from found are
// reported as missing.
type fakeProvider struct {
	mu      sync.Mutex
	found   map[string]bool
	texts   map[string]string
	calls   []string
	stopped int
	openErr error
	onClick func()
}

func newFake(selectors ...string) *fakeProvider {
	p := &fakeProvider{found: map[string]bool{}, texts: map[string]string{}}
	for _, s := range selectors {
		p.found[s] = true
	}
	return p
}

func (p *fakeProvider) call(s string) {
	p.mu.Lock()
	p.calls = append(p.calls, s)
	p.mu.Unlock()
}

func (p *fakeProvider) OpenURL(_ context.Context, url string) error {
	p.call("open " + url)
	return p.openErr
}

func (p *fakeProvider) Click(_ context.Context, sel string) (bool, error) {
	p.call("click " + sel)
	if p.onClick != nil {
		p.onClick()
	}
	return p.found[sel], nil
}

func (p *fakeProvider) InputText(_ context.Context, sel, text string) (bool, error) {
	p.call("input " + sel + "=" + text)
	return p.found[sel], nil
}

func (p *fakeProvider) GetText(_ context.Context, sel string) (string, bool, error) {
	p.call("get " + sel)
	return p.texts[sel], p.found[sel], nil
}

func (p *fakeProvider) Evaluate(_ context.Context, script string) (any, error) {
	p.call("eval " + script)
	return true, nil
}

func (p *fakeProvider) Stop() error {
	p.stopped++
	return nil
}

// recorder captures listener events.
type recorder struct {
	logs     []string
	sev      []Severity
	started  []string
	finished []bool
	outcomes []StepOutcome
}

func (r *recorder) Log(m string, s Severity)   { r.logs = append(r.logs, m); r.sev = append(r.sev, s) }
func (r *recorder) StepStarted(id string)      { r.started = append(r.started, id) }
func (r *recorder) Finished(ok bool)           { r.finished = append(r.finished, ok) }
func (r *recorder) StepFinished(o StepOutcome) { r.outcomes = append(r.outcomes, o) }

func step(id string, kind model.ActionKind, params map[string]any) model.ActionStep {
	s := model.NewStep(kind, params)
	s.ID = id
	return s
}

func script(steps ...model.ActionStep) *model.AutomationScript {
	s := model.NewScript("test")
	s.Steps = steps
	return s
}

func TestEngine_IgnoreErrorContinues(t *testing.T) {
	p := newFake()
	rec := &recorder{}
	sc := script(
		step("a", model.KindClick, map[string]any{"target": "#missing", "ignore_error": true}),
		step("b", model.KindListInit, map[string]any{"var": "out"}),
	)

	res := New(sc, RunConfig{Provider: p, Listener: rec}).Run(context.Background())
	if !res.Success || res.Status != StatusCompleted {
		t.Fatalf("status = %q, err = %v", res.Status, res.Error)
	}
	if strings.Join(res.Executed, ",") != "a,b" {
		t.Errorf("executed = %v", res.Executed)
	}
	if len(rec.finished) != 1 || !rec.finished[0] {
		t.Errorf("finished = %v", rec.finished)
	}
	var warned bool
	for _, s := range rec.sev {
		if s == SeverityWarning {
			warned = true
		}
	}
	if !warned {
		t.Error("ignored failure was not logged as a warning")
	}
}

func TestEngine_FailureAborts(t *testing.T) {
	p := newFake()
	rec := &recorder{}
	sc := script(
		step("a", model.KindClick, map[string]any{"target": "#missing"}),
		step("b", model.KindListInit, nil),
	)

	res := New(sc, RunConfig{Provider: p, Listener: rec}).Run(context.Background())
	if res.Success || res.Status != StatusFailed {
		t.Fatalf("status = %q", res.Status)
	}
	if strings.Join(rec.started, ",") != "a" {
		t.Errorf("started = %v, b must never run", rec.started)
	}
	var se *StepError
	if !errors.As(res.Error, &se) || se.StepID != "a" {
		t.Errorf("error = %v, want StepError for a", res.Error)
	}
	if !errors.Is(res.Error, ErrElementNotFound) {
		t.Errorf("error = %v, want ErrElementNotFound", res.Error)
	}
	if len(rec.finished) != 1 || rec.finished[0] {
		t.Errorf("finished = %v", rec.finished)
	}
	if p.stopped != 1 {
		t.Errorf("provider stopped %d times", p.stopped)
	}
}

func TestEngine_IgnoreErrorResolvedFromTemplate(t *testing.T) {
	sc := script(
		step("a", model.KindClick, map[string]any{"target": "#x", "ignore_error": "{{ lenient }}"}),
		step("b", model.KindListInit, nil),
	)
	sc.Variables = map[string]any{"lenient": true}

	res := New(sc, RunConfig{Provider: newFake()}).Run(context.Background())
	if !res.Success {
		t.Errorf("err = %v", res.Error)
	}
}

func TestEngine_DisabledSkipped(t *testing.T) {
	p := newFake()
	rec := &recorder{}
	disabled := step("a", model.KindOpenURL, map[string]any{"url": "{{ broken"})
	disabled.Enabled = false
	sc := script(disabled, step("b", model.KindListInit, nil))

	res := New(sc, RunConfig{Provider: p, Listener: rec}).Run(context.Background())
	if !res.Success {
		t.Fatal(res.Error)
	}
	if strings.Join(rec.started, ",") != "b" {
		t.Errorf("started = %v", rec.started)
	}
	if len(p.calls) != 0 {
		t.Errorf("disabled step reached the provider: %v", p.calls)
	}
	if rec.outcomes[0].Status != trace.StatusSkipped {
		t.Errorf("outcome = %v", rec.outcomes[0].Status)
	}
}

func TestEngine_ChildrenNotExecuted(t *testing.T) {
	p := newFake()
	rec := &recorder{}
	parent := step("parent", model.KindListInit, map[string]any{"var": "rows"})
	parent.Children = []model.ActionStep{
		step("child-click", model.KindClick, map[string]any{"target": "#missing"}),
		step("child-open", model.KindOpenURL, map[string]any{"url": "https://example.com"}),
	}

	eng := New(script(parent), RunConfig{Provider: p, Listener: rec})
	res := eng.Run(context.Background())
	if !res.Success {
		t.Fatalf("failing child should not fail the run: %v", res.Error)
	}
	if len(p.calls) != 0 {
		t.Errorf("children reached the provider: %v", p.calls)
	}
	if strings.Join(rec.started, ",") != "parent" {
		t.Errorf("started = %v", rec.started)
	}
	if strings.Join(eng.Executed(), ",") != "parent" {
		t.Errorf("executed = %v", eng.Executed())
	}
	for _, o := range rec.outcomes {
		if o.StepID != "parent" {
			t.Errorf("unexpected outcome for %s", o.StepID)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestEngine_TraceWriteFailureLoggedOnce(t *testing.T) {
	var logs bytes.Buffer
	sc := script(
		step("a", model.KindListInit, map[string]any{"var": "xs"}),
		step("b", model.KindListAppend, map[string]any{"list_var": "xs", "item_val": "v"}),
	)
	res := New(sc, RunConfig{
		Provider: newFake(),
		Trace:    trace.NewWriter(failingWriter{}, "r1"),
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	}).Run(context.Background())

	if !res.Success {
		t.Fatalf("trace failure should not fail the run: %v", res.Error)
	}
	if n := strings.Count(logs.String(), "trace write failed"); n != 1 {
		t.Errorf("trace failure logged %d times:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "no space left on device") {
		t.Errorf("cause missing from log:\n%s", logs.String())
	}
}

func TestEngine_VariablesIsolatedFromScript(t *testing.T) {
	sc := script(step("a", model.KindListAppend, map[string]any{"list_var": "xs", "item_val": "v"}))
	sc.Variables = map[string]any{"xs": []any{}}

	eng := New(sc, RunConfig{Provider: newFake()})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	got, _ := eng.Env().Get("xs")
	if len(got.([]any)) != 1 {
		t.Errorf("env xs = %v", got)
	}
	if len(sc.Variables["xs"].([]any)) != 0 {
		t.Error("run mutated the stored script variables")
	}
}

func TestEngine_GetTextAndTemplates(t *testing.T) {
	p := newFake(".price", "#q")
	p.texts[".price"] = "12"
	sc := script(
		step("init", model.KindListInit, map[string]any{"var": "prices"}),
		step("get", model.KindGetText, map[string]any{"target": ".price", "var": "price"}),
		step("add", model.KindListAppend, map[string]any{"list_var": "prices", "item_val": "{{ price }}"}),
		step("type", model.KindInput, map[string]any{"target": "#q", "text": "p={{price}}"}),
	)

	eng := New(sc, RunConfig{Provider: p})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	prices, _ := eng.Env().Get("prices")
	if list := prices.([]any); len(list) != 1 || list[0] != "12" {
		t.Errorf("prices = %v", prices)
	}
	if p.calls[len(p.calls)-1] != "input #q=p=12" {
		t.Errorf("calls = %v", p.calls)
	}
}

func TestEngine_GetTextDefaultsAndNotFound(t *testing.T) {
	p := newFake(".t")
	p.texts[".t"] = "hello"
	eng := New(script(step("a", model.KindGetText, map[string]any{"target": ".t"})), RunConfig{Provider: p})
	eng.Run(context.Background())
	if v, _ := eng.Env().Get("temp"); v != "hello" {
		t.Errorf("temp = %v", v)
	}

	sc := script(step("a", model.KindGetText, map[string]any{"target": ".gone", "var": "x"}))
	sc.Variables = map[string]any{"x": "old"}
	eng = New(sc, RunConfig{Provider: newFake()})
	res := eng.Run(context.Background())
	if res.Success {
		t.Error("missing element must fail")
	}
	if v, ok := eng.Env().Get("x"); !ok || v != nil {
		t.Errorf("x = %v, %v; want bound to nil", v, ok)
	}
}

func TestEngine_ListAppendFailures(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]any
	}{
		{"absent", map[string]any{}},
		{"not a list", map[string]any{"my_list": "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := script(step("a", model.KindListAppend, map[string]any{"item_val": "x"}))
			sc.Variables = tt.vars
			eng := New(sc, RunConfig{Provider: newFake()})
			res := eng.Run(context.Background())
			if res.Success {
				t.Fatal("expected failure")
			}
			if eng.Env().Len() != len(tt.vars) {
				t.Errorf("env changed: %v", eng.Env().Names())
			}
			if v, _ := eng.Env().Get("my_list"); tt.vars["my_list"] != v {
				t.Errorf("my_list = %v", v)
			}
		})
	}
}

func TestEngine_ListInitDefault(t *testing.T) {
	eng := New(script(step("a", model.KindListInit, nil), step("b", model.KindListAppend, nil)), RunConfig{Provider: newFake()})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	v, _ := eng.Env().Get("my_list")
	if list := v.([]any); len(list) != 1 || list[0] != "" {
		t.Errorf("my_list = %#v", v)
	}
}

func TestEngine_UnknownKindFails(t *testing.T) {
	res := New(script(step("a", model.ActionKind("teleport"), nil)), RunConfig{Provider: newFake()}).Run(context.Background())
	if !errors.Is(res.Error, ErrUnknownAction) {
		t.Errorf("error = %v", res.Error)
	}
}

func TestEngine_MissingParam(t *testing.T) {
	res := New(script(step("a", model.KindOpenURL, nil)), RunConfig{Provider: newFake()}).Run(context.Background())
	if !errors.Is(res.Error, ErrMissingParam) {
		t.Errorf("error = %v", res.Error)
	}
}

func TestEngine_ProviderErrorFails(t *testing.T) {
	p := newFake()
	p.openErr = errors.New("connection refused")
	res := New(script(step("a", model.KindOpenURL, map[string]any{"url": "http://x"})), RunConfig{Provider: p}).Run(context.Background())
	if res.Success || !strings.Contains(res.Error.Error(), "connection refused") {
		t.Errorf("error = %v", res.Error)
	}
}

func TestEngine_SetDatetime(t *testing.T) {
	p := newFake("#d")
	sc := script(step("a", model.KindSetDatetime, map[string]any{"target": "#d", "value": "2025-01-18"}))
	if res := New(sc, RunConfig{Provider: p}).Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	call := p.calls[0]
	if !strings.HasPrefix(call, "eval ") || !strings.Contains(call, `"#d"`) || !strings.Contains(call, `"2025-01-18"`) {
		t.Errorf("call = %q", call)
	}

	dry := provider.NewDryRun(nil)
	if res := New(sc, RunConfig{Provider: dry}).Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	if calls := dry.Calls(); calls[0].Op != "set_datetime" || calls[0].Value != "2025-01-18" {
		t.Errorf("dry-run calls = %+v", calls)
	}
}

func TestEngine_Stop(t *testing.T) {
	p := newFake("#a")
	sc := script(
		step("a", model.KindClick, map[string]any{"target": "#a"}),
		step("b", model.KindClick, map[string]any{"target": "#a"}),
	)
	eng := New(sc, RunConfig{Provider: p})
	p.onClick = eng.Stop

	res := eng.Run(context.Background())
	if res.Status != StatusCancelled || !res.Success {
		t.Errorf("status = %q success = %v", res.Status, res.Success)
	}
	if strings.Join(res.Executed, ",") != "a" {
		t.Errorf("executed = %v", res.Executed)
	}
}

func TestEngine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(script(step("a", model.KindListInit, nil)), RunConfig{Provider: newFake()}).Run(ctx)
	if res.Status != StatusCancelled || len(res.Executed) != 0 {
		t.Errorf("status = %q executed = %v", res.Status, res.Executed)
	}
}

func TestEngine_RunOnce(t *testing.T) {
	rec := &recorder{}
	eng := New(script(), RunConfig{Provider: newFake(), Listener: rec})
	eng.Run(context.Background())
	res := eng.Run(context.Background())
	if !errors.Is(res.Error, ErrAlreadyStarted) {
		t.Errorf("error = %v", res.Error)
	}
	if len(rec.finished) != 1 {
		t.Errorf("finished = %v", rec.finished)
	}
}

type panicProvider struct{ *fakeProvider }

func (panicProvider) OpenURL(context.Context, string) error { panic("driver crashed") }

func TestEngine_PanicRecovered(t *testing.T) {
	rec := &recorder{}
	inner := newFake()
	res := New(script(step("a", model.KindOpenURL, map[string]any{"url": "http://x"})), RunConfig{
		Provider: panicProvider{inner},
		Listener: rec,
	}).Run(context.Background())
	if res.Success || !errors.Is(res.Error, ErrInternal) {
		t.Errorf("result = %+v", res)
	}
	if len(rec.finished) != 1 || rec.finished[0] {
		t.Errorf("finished = %v", rec.finished)
	}
	if inner.stopped != 1 {
		t.Error("provider not stopped after panic")
	}
}

func TestEngine_AISmartStep(t *testing.T) {
	p := newFake("#date_picker", ".price-tag")
	p.texts[".price-tag"] = "9.99"
	sc := script(
		step("init", model.KindListInit, map[string]any{"var": "result_list"}),
		step("ai", model.KindAISmartStep, map[string]any{"prompt": "时间设置为2025-01-18 后获取价格 写入列表"}),
	)
	var buf bytes.Buffer
	eng := New(sc, RunConfig{Provider: p, Trace: trace.NewWriter(&buf, "r")})
	if res := eng.Run(context.Background()); !res.Success {
		t.Fatal(res.Error)
	}
	want := "init,ai,intent-1-set_datetime,intent-2-get_text,intent-3-list_append"
	if got := strings.Join(eng.Executed(), ","); got != want {
		t.Errorf("executed = %s", got)
	}
	list, _ := eng.Env().Get("result_list")
	if l := list.([]any); len(l) != 1 || l[0] != "9.99" {
		t.Errorf("result_list = %v", list)
	}
	if !strings.Contains(buf.String(), `"intent_compiled"`) {
		t.Error("trace missing intent_compiled")
	}
}

func TestEngine_AISmartStepNestedFailure(t *testing.T) {
	sc := script(step("ai", model.KindAISmartStep, map[string]any{"prompt": "获取"}))
	res := New(sc, RunConfig{Provider: newFake()}).Run(context.Background())
	if res.Success {
		t.Error("compiled step failure must fail the run")
	}
}

func TestEngine_Exec(t *testing.T) {
	eng := New(script(), RunConfig{Provider: newFake()})
	if err := eng.Exec(context.Background(), []model.ActionStep{step("x", model.KindListInit, map[string]any{"var": "l"})}); err != nil {
		t.Fatal(err)
	}
	if !eng.Env().Has("l") {
		t.Error("Exec did not run against the live environment")
	}
	err := eng.Exec(context.Background(), []model.ActionStep{step("y", model.KindListAppend, map[string]any{"list_var": "nope"})})
	if err == nil {
		t.Error("expected failure")
	}
}

func TestHandlers_CoverEveryKind(t *testing.T) {
	for _, k := range model.Kinds() {
		if _, ok := handlers[k]; !ok {
			t.Errorf("no handler for %q", k)
		}
	}
	if len(handlers) != len(model.Kinds()) {
		t.Errorf("handlers = %d, kinds = %d", len(handlers), len(model.Kinds()))
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	sc := model.NewScript("child")
	if err := model.SaveScriptFile(filepath.Join(dir, "child.json"), sc); err != nil {
		t.Fatal(err)
	}
	l := FileLoader{BaseDir: dir}
	got, err := l.Load("child.json")
	if err != nil || got.Name != "child" {
		t.Errorf("Load = %v, %v", got, err)
	}
	if _, err := l.Load("missing.json"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing err = %v", err)
	}
}
