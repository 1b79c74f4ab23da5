package trace

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriter_Emit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "test-run-1")

	err := tw.Emit(EventStepStart, map[string]any{
		"step_id": "s1",
		"type":    "click",
	})
	if err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, buf.String())
	}
	if evt.Type != EventStepStart {
		t.Errorf("type = %q, want step_start", evt.Type)
	}
	if evt.RunID != "test-run-1" {
		t.Errorf("run_id = %q", evt.RunID)
	}
	if evt.Data["step_id"] != "s1" {
		t.Errorf("step_id = %v", evt.Data["step_id"])
	}
}

func TestWriter_NilDiscards(t *testing.T) {
	var tw *Writer
	if err := tw.EmitLog("x", "info"); err != nil {
		t.Errorf("nil writer err = %v", err)
	}
}

func TestWriter_EmitStepComplete(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	if err := tw.EmitStepComplete("s1", StatusIgnored, 50*time.Millisecond, "selector not found"); err != nil {
		t.Fatal(err)
	}

	var evt Event
	if err := json.Unmarshal(buf.Bytes(), &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Data["status"] != "ignored" {
		t.Errorf("status = %v", evt.Data["status"])
	}
	if evt.Data["error"] != "selector not found" {
		t.Errorf("error = %v", evt.Data["error"])
	}
}

func TestWriter_NonASCIIUnescaped(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")
	if err := tw.EmitIntentCompiled("s1", "获取 <价格>", []string{"intent-1-get_text"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "获取 <价格>") {
		t.Errorf("prompt escaped: %s", buf.String())
	}
}

func TestWriter_MultipleEvents_JSONL(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	tw.EmitRunStart("demo.json", "script-1", map[string]any{"x": 1})
	tw.EmitStepStart("s1", "get_text", 0, map[string]any{"target": ".p"})
	tw.EmitSubflowEnter("s2", "child.json", 1, map[string]any{"a": 1})
	tw.EmitSubflowExit("s2", true, nil)
	tw.EmitRunComplete("completed", time.Second, 2, "")

	events, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	want := []EventType{EventRunStart, EventStepStart, EventSubflowEnter, EventSubflowExit, EventRunComplete}
	for i, w := range want {
		if events[i].Type != w {
			t.Errorf("events[%d] = %q, want %q", i, events[i].Type, w)
		}
	}
	if copied, ok := events[3].Data["copied"].([]any); !ok || len(copied) != 0 {
		t.Errorf("copied = %#v, want empty list", events[3].Data["copied"])
	}
}

func TestWriter_ConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	tw := NewWriter(&buf, "run-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tw.EmitLog("line", "info")
		}()
	}
	wg.Wait()

	events, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 20 {
		t.Errorf("events = %d, want 20", len(events))
	}
}

func TestFileWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	tw, err := NewFileWriter(dir, "run-7")
	if err != nil {
		t.Fatal(err)
	}
	tw.EmitLog("hello", "info")
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("second close = %v", err)
	}

	events, err := ReadFile(filepath.Join(dir, "run-7.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Data["message"] != "hello" {
		t.Errorf("events = %+v", events)
	}
}

func TestRead_BadLine(t *testing.T) {
	_, err := Read(strings.NewReader("{\"type\":\"log\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v", err)
	}
}
