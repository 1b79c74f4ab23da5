package provider

import (
	"context"
	"log/slog"
	"sync"
)

// DryRun records every call and reports each element as found. GetText
// returns the empty string. It is used for validation runs and previews.
type DryRun struct {
	logger *slog.Logger

	mu    sync.Mutex
	calls []Call
}

// Call is one recorded provider invocation.
type Call struct {
	Op     string
	Target string
	Value  string
}

// NewDryRun creates a dry-run backend. A nil logger discards output.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DryRun{logger: logger.With("component", "provider.dryrun")}
}

func (d *DryRun) record(op, target, value string) {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Op: op, Target: target, Value: value})
	d.mu.Unlock()
	d.logger.Debug("dry-run", "op", op, "target", target, "value", value)
}

func (d *DryRun) OpenURL(ctx context.Context, url string) error {
	d.record("open_url", url, "")
	return nil
}

func (d *DryRun) Click(ctx context.Context, selector string) (bool, error) {
	d.record("click", selector, "")
	return true, nil
}

func (d *DryRun) InputText(ctx context.Context, selector, text string) (bool, error) {
	d.record("input", selector, text)
	return true, nil
}

func (d *DryRun) SetDatetime(ctx context.Context, selector, value string) (bool, error) {
	d.record("set_datetime", selector, value)
	return true, nil
}

func (d *DryRun) GetText(ctx context.Context, selector string) (string, bool, error) {
	d.record("get_text", selector, "")
	return "", true, nil
}

func (d *DryRun) Evaluate(ctx context.Context, script string) (any, error) {
	d.record("evaluate", "", script)
	return nil, nil
}

func (d *DryRun) Stop() error {
	d.record("stop", "", "")
	return nil
}

// Calls returns a copy of the recorded invocations in order.
func (d *DryRun) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}
