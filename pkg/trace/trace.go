// Package trace writes the append-only JSONL record of a run.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType enumerates the trace event types.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventRunComplete    EventType = "run_complete"
	EventStepStart      EventType = "step_start"
	EventStepComplete   EventType = "step_complete"
	EventLog            EventType = "log"
	EventSubflowEnter   EventType = "subflow_enter"
	EventSubflowExit    EventType = "subflow_exit"
	EventIntentCompiled EventType = "intent_compiled"
)

// StepStatus is the outcome recorded for a step.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailed  StepStatus = "failed"
	StatusIgnored StepStatus = "ignored" // failed with ignore_error set
	StatusSkipped StepStatus = "skipped" // disabled
)

// Event is a single line of the trace.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Writer appends events to a JSONL stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	runID  string
	enc    *json.Encoder
	now    func() time.Time
}

// NewWriter creates a trace writer over w.
func NewWriter(w io.Writer, runID string) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{
		w:     w,
		runID: runID,
		enc:   enc,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// FilePath returns the trace file of runID under dir.
func FilePath(dir, runID string) string {
	return filepath.Join(dir, runID+".jsonl")
}

// NewFileWriter appends to FilePath(dir, runID), creating dir as needed.
func NewFileWriter(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	path := FilePath(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f, runID)
	tw.closer = f
	return tw, nil
}

// RunID returns the run the writer records.
func (tw *Writer) RunID() string { return tw.runID }

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.closer == nil {
		return nil
	}
	err := tw.closer.Close()
	tw.closer = nil
	return err
}

// Emit writes a single event. A nil writer discards it.
func (tw *Writer) Emit(eventType EventType, data map[string]any) error {
	if tw == nil {
		return nil
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()

	return tw.enc.Encode(Event{
		Type:      eventType,
		Timestamp: tw.now(),
		RunID:     tw.runID,
		Data:      data,
	})
}

// EmitRunStart emits run_start.
func (tw *Writer) EmitRunStart(script, scriptID string, variables map[string]any) error {
	data := map[string]any{
		"script":    script,
		"script_id": scriptID,
	}
	if len(variables) > 0 {
		data["variables"] = variables
	}
	return tw.Emit(EventRunStart, data)
}

// EmitRunComplete emits run_complete.
func (tw *Writer) EmitRunComplete(status string, duration time.Duration, executed int, errMsg string) error {
	data := map[string]any{
		"status":   status,
		"duration": duration.String(),
		"executed": executed,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	return tw.Emit(EventRunComplete, data)
}

// EmitStepStart emits step_start with the resolved parameters.
func (tw *Writer) EmitStepStart(stepID, kind string, depth int, params map[string]any) error {
	data := map[string]any{
		"step_id": stepID,
		"type":    kind,
		"depth":   depth,
	}
	if len(params) > 0 {
		data["params"] = params
	}
	return tw.Emit(EventStepStart, data)
}

// EmitStepComplete emits step_complete.
func (tw *Writer) EmitStepComplete(stepID string, status StepStatus, duration time.Duration, errMsg string) error {
	data := map[string]any{
		"step_id":  stepID,
		"status":   string(status),
		"duration": duration.String(),
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	return tw.Emit(EventStepComplete, data)
}

// EmitLog mirrors one listener log line.
func (tw *Writer) EmitLog(message, severity string) error {
	return tw.Emit(EventLog, map[string]any{
		"message":  message,
		"severity": severity,
	})
}

// EmitSubflowEnter emits subflow_enter with the values passed to the child.
func (tw *Writer) EmitSubflowEnter(stepID, path string, depth int, inputs map[string]any) error {
	return tw.Emit(EventSubflowEnter, map[string]any{
		"step_id": stepID,
		"path":    path,
		"depth":   depth,
		"inputs":  inputs,
	})
}

// EmitSubflowExit emits subflow_exit with the names copied back.
func (tw *Writer) EmitSubflowExit(stepID string, success bool, copied []string) error {
	if copied == nil {
		copied = []string{}
	}
	return tw.Emit(EventSubflowExit, map[string]any{
		"step_id": stepID,
		"success": success,
		"copied":  copied,
	})
}

// EmitIntentCompiled records the steps a prompt compiled to.
func (tw *Writer) EmitIntentCompiled(stepID, prompt string, stepIDs []string) error {
	if stepIDs == nil {
		stepIDs = []string{}
	}
	return tw.Emit(EventIntentCompiled, map[string]any{
		"step_id": stepID,
		"prompt":  prompt,
		"steps":   stepIDs,
	})
}

// Read decodes every event of a JSONL trace.
func Read(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var events []Event
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return events, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read trace: %w", err)
	}
	return events, nil
}

// ReadFile decodes a trace file.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
