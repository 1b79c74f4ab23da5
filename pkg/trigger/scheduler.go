// Package trigger owns the persisted trigger list and turns wall-clock
// matches and global hotkeys into run requests.
//
// The scheduler only notifies: every match is delivered on Fired() and it is
// up to the host to load and run the script.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// PollSpec is the cron schedule of the time poller.
const PollSpec = "@every 1m"

// ErrNotFound is returned for an unknown trigger id.
var ErrNotFound = errors.New("trigger not found")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Binding is one registered hotkey.
type Binding struct {
	Combo string
	Keys  []string
	Fire  func()
}

// HotkeyListener is a running set of bindings.
type HotkeyListener interface {
	Stop() error
}

// Registrar starts a listener for a complete set of bindings.
type Registrar interface {
	Listen(bindings []Binding) (HotkeyListener, error)
}

// Fire is a run request produced by a trigger.
type Fire struct {
	TriggerID  string
	Name       string
	ScriptPath string
	Source     model.TriggerType
	At         time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithRegistrar sets the hotkey backend. Without one, hotkey triggers are
// kept but never fire.
func WithRegistrar(r Registrar) Option { return func(s *Scheduler) { s.registrar = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// WithBuffer sets the capacity of the Fired channel.
func WithBuffer(n int) Option { return func(s *Scheduler) { s.buffer = n } }

// Scheduler manages the trigger file, the time poller and the hotkey
// listener.
type Scheduler struct {
	path      string
	clock     Clock
	registrar Registrar
	logger    *slog.Logger
	buffer    int
	fired     chan Fire

	mu       sync.Mutex
	triggers []model.Trigger
	listener HotkeyListener
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	rebuilds int
}

// New creates a scheduler for the trigger file at path. Call Load to read it.
func New(path string, opts ...Option) *Scheduler {
	s := &Scheduler{
		path:   path,
		clock:  ClockFunc(time.Now),
		buffer: 16,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("component", "trigger")
	s.fired = make(chan Fire, s.buffer)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.triggers = []model.Trigger{}
	return s
}

// Path returns the trigger file path.
func (s *Scheduler) Path() string { return s.path }

// Fired delivers run requests. It is never closed.
func (s *Scheduler) Fired() <-chan Fire { return s.fired }

// Load replaces the in-memory list with the file contents. A missing file
// yields an empty list.
func (s *Scheduler) Load() error {
	triggers, err := model.LoadTriggersFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = triggers
	s.rebuildLocked()
	s.logger.Info("triggers loaded", "path", s.path, "count", len(triggers))
	return nil
}

// Save writes the list and rebuilds the hotkey listener.
func (s *Scheduler) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Scheduler) saveLocked() error {
	if err := model.SaveTriggersFile(s.path, s.triggers); err != nil {
		return err
	}
	s.rebuildLocked()
	return nil
}

// Triggers returns a copy of the list in order.
func (s *Scheduler) Triggers() []model.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Trigger, len(s.triggers))
	copy(out, s.triggers)
	return out
}

// Add validates t, appends it and saves.
func (s *Scheduler) Add(t model.Trigger) (model.Trigger, error) {
	if t.ID == "" {
		t.ID = model.NewID()
	}
	if t.Config == nil {
		t.Config = map[string]any{}
	}
	if err := Validate(t); err != nil {
		return t, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
	return t, s.saveLocked()
}

// Remove deletes the trigger with id and saves.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.triggers = append(s.triggers[:i], s.triggers[i+1:]...)
	return s.saveLocked()
}

// SetEnabled toggles the trigger with id and saves.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.triggers[i].Enabled = enabled
	return s.saveLocked()
}

func (s *Scheduler) indexLocked(id string) int {
	for i := range s.triggers {
		if s.triggers[i].ID == id {
			return i
		}
	}
	return -1
}

// Start polls once, schedules the poller every minute and builds the hotkey
// listener. Fires are dropped once ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	c := cron.New()
	if _, err := c.AddFunc(PollSpec, func() { s.Poll(s.clock.Now()) }); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule poller: %w", err)
	}
	s.cron = c
	s.running = true
	s.rebuildLocked()
	s.mu.Unlock()

	s.Poll(s.clock.Now())
	c.Start()
	s.logger.Info("scheduler started", "poll", PollSpec)
	return nil
}

// Stop halts the poller and the hotkey listener. It waits for a poll in
// progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.cron = nil
	s.cancel()
	s.stopListenerLocked()
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Poll fires every enabled time trigger whose HH:MM equals now's. It returns
// the fires it produced.
func (s *Scheduler) Poll(now time.Time) []Fire {
	hhmm := now.Format("15:04")

	s.mu.Lock()
	ctx := s.ctx
	var fires []Fire
	for _, t := range s.triggers {
		if !t.Enabled || t.Type != model.TriggerTime || t.Time() != hhmm {
			continue
		}
		fires = append(fires, Fire{
			TriggerID:  t.ID,
			Name:       t.Name,
			ScriptPath: t.ScriptPath,
			Source:     model.TriggerTime,
			At:         now,
		})
	}
	s.mu.Unlock()

	for _, f := range fires {
		s.emit(ctx, f)
	}
	return fires
}

// Rebuilds reports how many hotkey listeners have been built.
func (s *Scheduler) Rebuilds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilds
}

func (s *Scheduler) emit(ctx context.Context, f Fire) {
	select {
	case s.fired <- f:
		s.logger.Info("trigger fired", "trigger", f.TriggerID, "name", f.Name, "source", f.Source, "script", f.ScriptPath)
	case <-ctx.Done():
		s.logger.Warn("trigger dropped", "trigger", f.TriggerID, "reason", ctx.Err())
	}
}

func (s *Scheduler) stopListenerLocked() {
	if s.listener == nil {
		return
	}
	if err := s.listener.Stop(); err != nil {
		s.logger.Warn("stop hotkey listener", "error", err)
	}
	s.listener = nil
}

// rebuildLocked replaces the hotkey listener with one built from the current
// list. Nothing is diffed. On duplicate combos the last trigger wins.
func (s *Scheduler) rebuildLocked() {
	s.stopListenerLocked()
	if !s.running {
		return
	}

	var order []string
	byCombo := map[string]Binding{}
	for _, t := range s.triggers {
		if !t.Enabled || t.Type != model.TriggerHotkey || t.Key() == "" {
			continue
		}
		combo := t.Key()
		keys, err := ParseCombo(combo)
		if err != nil {
			s.logger.Warn("skip hotkey", "trigger", t.ID, "error", err)
			continue
		}
		if _, seen := byCombo[combo]; !seen {
			order = append(order, combo)
		}
		byCombo[combo] = Binding{Combo: combo, Keys: keys, Fire: s.hotkeyFire(t)}
	}
	if len(order) == 0 {
		return
	}
	if s.registrar == nil {
		s.logger.Warn("hotkeys configured but no registrar", "count", len(order))
		return
	}

	bindings := make([]Binding, len(order))
	for i, combo := range order {
		bindings[i] = byCombo[combo]
	}
	l, err := s.registrar.Listen(bindings)
	if err != nil {
		s.logger.Warn("start hotkey listener", "error", err)
		return
	}
	s.listener = l
	s.rebuilds++
	s.logger.Debug("hotkey listener rebuilt", "bindings", len(bindings))
}

func (s *Scheduler) hotkeyFire(t model.Trigger) func() {
	ctx := s.ctx
	f := Fire{TriggerID: t.ID, Name: t.Name, ScriptPath: t.ScriptPath, Source: model.TriggerHotkey}
	return func() {
		fire := f
		fire.At = s.clock.Now()
		s.emit(ctx, fire)
	}
}
