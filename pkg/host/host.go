// Package host connects trigger fires and manual requests to interpreter
// runs. Every run gets its own goroutine, provider and environment; nothing
// serializes runs against each other.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/metrics"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

// Sources of a run request.
const (
	SourceManual = "manual"
	SourceTime   = "time"
	SourceHotkey = "hotkey"
)

// ErrUnknownRun is returned for a run id that is not active.
var ErrUnknownRun = errors.New("unknown run")

// Config wires a Host.
type Config struct {
	Scheduler     *trigger.Scheduler // optional
	Loader        engine.ScriptLoader
	Providers     provider.Factory
	Listener      func(runID string) engine.Listener // optional, per run
	Compiler      engine.Compiler
	TraceDir      string // empty disables trace files
	MaxDepth      int
	Metrics       *metrics.Metrics // optional
	MetricsListen string           // empty disables the endpoint
	Logger        *slog.Logger
}

// Run is one started interpreter run.
type Run struct {
	ID         string
	ScriptPath string
	Source     string
	Started    time.Time

	eng    *engine.Engine
	done   chan struct{}
	result *engine.RunResult
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its result.
func (r *Run) Wait() *engine.RunResult {
	<-r.done
	return r.result
}

// Host owns the active runs.
type Host struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run
	wg   sync.WaitGroup
}

// New creates a host.
func New(cfg Config) *Host {
	if cfg.Loader == nil {
		cfg.Loader = engine.FileLoader{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Providers == nil {
		cfg.Providers = func() provider.Provider { return provider.NewDryRun(logger) }
	}
	return &Host{
		cfg:    cfg,
		logger: logger.With("component", "host"),
		runs:   make(map[string]*Run),
	}
}

// Start loads the script at path and runs it in a new goroutine. Load
// failures are returned; run failures are reported through the run.
func (h *Host) Start(ctx context.Context, path, source string) (*Run, error) {
	script, err := h.cfg.Loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	return h.StartScript(ctx, script, path, source)
}

// StartScript runs an already loaded script.
func (h *Host) StartScript(ctx context.Context, script *model.AutomationScript, path, source string) (*Run, error) {
	runID := model.NewID()
	rcfg := engine.RunConfig{
		RunID:    runID,
		Provider: h.cfg.Providers(),
		Loader:   h.cfg.Loader,
		Compiler: h.cfg.Compiler,
		MaxDepth: h.cfg.MaxDepth,
		Logger:   h.logger,
	}

	var listeners engine.Listeners
	if h.cfg.Listener != nil {
		if l := h.cfg.Listener(runID); l != nil {
			listeners = append(listeners, l)
		}
	}
	if h.cfg.Metrics != nil {
		listeners = append(listeners, h.cfg.Metrics.Listener())
	}
	rcfg.Listener = listeners

	if h.cfg.TraceDir != "" {
		tw, err := trace.NewFileWriter(h.cfg.TraceDir, runID)
		if err != nil {
			return nil, err
		}
		rcfg.Trace = tw
	}

	run := &Run{
		ID:         runID,
		ScriptPath: path,
		Source:     source,
		Started:    time.Now(),
		eng:        engine.New(script, rcfg),
		done:       make(chan struct{}),
	}

	h.mu.Lock()
	h.runs[runID] = run
	h.mu.Unlock()
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RunStarted()
	}
	h.logger.Info("run starting", "run_id", runID, "script", path, "source", source)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res := run.eng.Run(ctx)
		if rcfg.Trace != nil {
			if err := rcfg.Trace.Close(); err != nil {
				h.logger.Warn("close trace", "run_id", runID, "error", err)
			}
		}
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.RunFinished(res)
		}
		h.logger.Info("run done", "run_id", runID, "status", res.Status, "duration", res.Duration)

		h.mu.Lock()
		delete(h.runs, runID)
		h.mu.Unlock()
		run.result = res
		close(run.done)
	}()
	return run, nil
}

// Active returns the running runs ordered by start time.
func (h *Host) Active() []*Run {
	h.mu.Lock()
	out := make([]*Run, 0, len(h.runs))
	for _, r := range h.runs {
		out = append(out, r)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Stop requests cancellation of one run.
func (h *Host) Stop(runID string) error {
	h.mu.Lock()
	r, ok := h.runs[runID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	r.eng.Stop()
	return nil
}

// StopAll requests cancellation of every active run.
func (h *Host) StopAll() {
	for _, r := range h.Active() {
		r.eng.Stop()
	}
}

// Wait blocks until every started run has finished.
func (h *Host) Wait() { h.wg.Wait() }

// Serve runs the scheduler, the fire loop, the trigger file watcher and the
// metrics endpoint until ctx is done. Active runs are stopped and awaited
// before it returns.
func (h *Host) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s := h.cfg.Scheduler; s != nil {
		if err := s.Start(ctx); err != nil {
			return err
		}
		defer s.Stop()

		g.Go(func() error { return h.fireLoop(ctx, s) })
		g.Go(func() error { return h.watch(ctx, s) })
	}

	if h.cfg.Metrics != nil && h.cfg.MetricsListen != "" {
		g.Go(func() error { return h.serveMetrics(ctx) })
	}

	err := g.Wait()
	h.StopAll()
	h.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Host) fireLoop(ctx context.Context, s *trigger.Scheduler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-s.Fired():
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.Fired(f)
			}
			if _, err := h.Start(ctx, f.ScriptPath, string(f.Source)); err != nil {
				h.logger.Error("start triggered run", "trigger", f.TriggerID, "script", f.ScriptPath, "error", err)
			}
		}
	}
}

func (h *Host) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.cfg.Metrics.Handler())
	srv := &http.Server{
		Addr:              h.cfg.MetricsListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", h.cfg.MetricsListen)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	h.logger.Info("metrics listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
