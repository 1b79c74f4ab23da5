package host

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/metrics"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

// gate blocks clicks until released and signals each blocked click.
type gate struct {
	*provider.DryRun
	release chan struct{}
	entered chan struct{}
}

func newGate(release chan struct{}) gate {
	return gate{DryRun: provider.NewDryRun(nil), release: release, entered: make(chan struct{}, 8)}
}

func (g gate) Click(ctx context.Context, sel string) (bool, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.DryRun.Click(ctx, sel)
}

func listScript(name string) *model.AutomationScript {
	s := model.NewScript(name)
	s.Steps = []model.ActionStep{
		model.NewStep(model.KindListInit, map[string]any{"var": "xs"}),
		model.NewStep(model.KindListAppend, map[string]any{"list_var": "xs", "item_val": name}),
	}
	return s
}

func TestStart_RunsAndTraces(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()
	h := New(Config{
		Loader:   engine.MapLoader{"a.json": listScript("a")},
		TraceDir: dir,
		Metrics:  m,
	})

	run, err := h.Start(context.Background(), "a.json", SourceManual)
	if err != nil {
		t.Fatal(err)
	}
	res := run.Wait()
	if !res.Success || len(res.Executed) != 2 {
		t.Errorf("result = %+v", res)
	}

	events, err := trace.ReadFile(filepath.Join(dir, run.ID+".jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if events[0].Type != trace.EventRunStart || events[len(events)-1].Type != trace.EventRunComplete {
		t.Errorf("trace bounds = %s..%s", events[0].Type, events[len(events)-1].Type)
	}
	if len(h.Active()) != 0 {
		t.Error("finished run still active")
	}
}

func TestStart_LoadFailure(t *testing.T) {
	h := New(Config{Loader: engine.MapLoader{}})
	if _, err := h.Start(context.Background(), "missing.json", SourceManual); err == nil {
		t.Error("expected load error")
	}
}

func TestStart_ConcurrentRunsIsolated(t *testing.T) {
	release := make(chan struct{})
	blocking := model.NewScript("blocking")
	blocking.Steps = []model.ActionStep{
		model.NewStep(model.KindListInit, map[string]any{"var": "xs"}),
		model.NewStep(model.KindClick, map[string]any{"target": "#go"}),
	}
	h := New(Config{
		Loader:    engine.MapLoader{"block.json": blocking, "a.json": listScript("a")},
		Providers: func() provider.Provider { return newGate(release) },
	})

	slow, err := h.Start(context.Background(), "block.json", SourceManual)
	if err != nil {
		t.Fatal(err)
	}
	fast, err := h.Start(context.Background(), "a.json", SourceManual)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-fast.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("second run was serialized behind the first")
	}
	if len(h.Active()) != 1 || h.Active()[0].ID != slow.ID {
		t.Errorf("active = %v", h.Active())
	}
	close(release)
	if res := slow.Wait(); !res.Success {
		t.Errorf("slow run = %+v", res)
	}
}

func TestStopAll(t *testing.T) {
	release := make(chan struct{})
	s := model.NewScript("two clicks")
	s.Steps = []model.ActionStep{
		model.NewStep(model.KindClick, map[string]any{"target": "#a"}),
		model.NewStep(model.KindClick, map[string]any{"target": "#b"}),
	}
	g := newGate(release)
	h := New(Config{
		Loader:    engine.MapLoader{"s.json": s},
		Providers: func() provider.Provider { return g },
	})
	run, _ := h.Start(context.Background(), "s.json", SourceManual)
	<-g.entered
	h.StopAll()
	close(release)
	h.Wait()

	res := run.Wait()
	if res.Status != engine.StatusCancelled || len(res.Executed) != 1 {
		t.Errorf("result = %+v", res)
	}
	if err := h.Stop(run.ID); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("Stop after finish = %v", err)
	}
}

func TestServe_TriggerStartsRun(t *testing.T) {
	dir := t.TempDir()
	sched := trigger.New(filepath.Join(dir, "triggers.json"),
		trigger.WithClock(trigger.ClockFunc(func() time.Time { return time.Date(2025, 1, 18, 9, 0, 0, 0, time.Local) })))
	if _, err := sched.Add(model.NewTimeTrigger("morning", "a.json", "09:00")); err != nil {
		t.Fatal(err)
	}

	finished := make(chan bool, 4)
	h := New(Config{
		Scheduler: sched,
		Loader:    engine.MapLoader{"a.json": listScript("a")},
		Listener: func(string) engine.Listener {
			return engine.ListenerFuncs{OnFinished: func(ok bool) { finished <- ok }}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- h.Serve(ctx) }()

	select {
	case ok := <-finished:
		if !ok {
			t.Error("triggered run failed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("start-time poll did not start a run")
	}

	cancel()
	if err := <-served; err != nil {
		t.Errorf("Serve = %v", err)
	}
}

func TestServe_ReloadsTriggerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triggers.json")
	sched := trigger.New(path)
	h := New(Config{Scheduler: sched})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Serve(ctx)

	// Give the watcher time to register before the external write.
	time.Sleep(200 * time.Millisecond)
	if err := model.SaveTriggersFile(path, []model.Trigger{model.NewTimeTrigger("ext", "x.json", "23:59")}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if ts := sched.Triggers(); len(ts) == 1 && ts[0].Name == "ext" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scheduler did not pick up the external change")
}
