package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/rpaflow/pkg/diagram"
	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/intent"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
	"github.com/ormasoftchile/rpaflow/pkg/validate"
)

// Execution modes accepted by rpaflow/run.
const (
	ModeDryRun = "dry-run"
	ModeReal   = "real"
)

// Tools carries what the handlers need from the host configuration.
type Tools struct {
	Providers    provider.Factory // real mode; nil rejects real runs
	TriggersFile string
	TraceDir     string // empty disables trace files
	MaxDepth     int
	Logger       *slog.Logger
}

func (t *Tools) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return t.Logger.With("component", "mcp")
}

// HandleValidate implements the rpaflow/validate tool.
func (t *Tools) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	kind, _ := args["kind"].(string)

	switch kind {
	case "triggers":
		triggers, errs := validate.ValidateTriggersFile(path)
		if len(validate.Errors(errs)) > 0 {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(withWarnings(fmt.Sprintf("✓ %s is valid (%d triggers)", filepath.Base(path), len(triggers)), errs)), nil
	case "", "script":
		s, errs := validate.ValidateScriptFile(path)
		if len(validate.Errors(errs)) > 0 {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(withWarnings(fmt.Sprintf("✓ %s is valid (%d steps)", s.Name, len(s.Steps)), errs)), nil
	default:
		return errorResult(fmt.Sprintf("unknown kind %q: use 'script' or 'triggers'", kind)), nil
	}
}

// HandleRun implements the rpaflow/run tool.
func (t *Tools) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = ModeDryRun // safe default for agents
	}

	var p provider.Provider
	switch mode {
	case ModeDryRun:
		p = provider.NewDryRun(t.logger())
	case ModeReal:
		if t.Providers == nil {
			return errorResult("real mode is not available on this server"), nil
		}
		p = t.Providers()
	default:
		return errorResult(fmt.Sprintf("unknown mode %q: use 'dry-run' or 'real'", mode)), nil
	}

	s, errs := validate.ValidateScriptFile(path)
	if len(validate.Errors(errs)) > 0 {
		return errorResult(formatErrors(errs)), nil
	}
	if raw, ok := args["vars"].(map[string]any); ok {
		for k, v := range raw {
			s.Variables[k] = v
		}
	}

	runID := model.NewID()
	var tw *trace.Writer
	if t.TraceDir != "" {
		w, err := trace.NewFileWriter(t.TraceDir, runID)
		if err != nil {
			return errorResult(fmt.Sprintf("trace: %s", err)), nil
		}
		defer w.Close()
		tw = w
	}

	var lines []string
	eng := engine.New(s, engine.RunConfig{
		RunID:    runID,
		Provider: p,
		Loader:   engine.FileLoader{BaseDir: filepath.Dir(path)},
		Listener: engine.ListenerFuncs{
			OnLog: func(message string, severity engine.Severity) {
				lines = append(lines, fmt.Sprintf("[%s] %s", severity, message))
			},
		},
		Trace:    tw,
		MaxDepth: t.MaxDepth,
		Logger:   t.logger(),
	})
	result := eng.Run(ctx)

	response := map[string]any{
		"run_id":   result.RunID,
		"status":   result.Status,
		"success":  result.Success,
		"duration": result.Duration.String(),
		"mode":     mode,
		"executed": result.Executed,
		"log":      lines,
	}
	if result.Error != nil {
		response["error"] = result.Error.Error()
	}
	if tw != nil {
		response["trace"] = trace.FilePath(t.TraceDir, runID)
	}

	data, _ := marshal(response)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !result.Success,
	}, nil
}

// HandleCompile implements the rpaflow/compile tool.
func (t *Tools) HandleCompile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return errorResult("prompt argument is required"), nil
	}
	data, err := marshal(intent.Compile(prompt))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleSchema implements the rpaflow/schema tool.
func (t *Tools) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)

	var data []byte
	var err error

	switch schemaType {
	case "script":
		data, err = model.GenerateScriptJSONSchema()
	case "trigger":
		data, err = model.GenerateTriggerJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q: use 'script' or 'trigger'", schemaType)), nil
	}

	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleDiagram implements the rpaflow/diagram tool.
func (t *Tools) HandleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path is required"), nil
	}
	format, _ := args["format"].(string)
	if format == "" {
		format = string(diagram.FormatMermaid)
	}

	script, err := model.LoadScriptFile(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	out, err := diagram.Generate(script, diagram.Format(format), diagram.Options{
		Loader:   engine.FileLoader{BaseDir: filepath.Dir(path)},
		Compiler: intent.New(nil),
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(out), nil
}

// HandleTriggers implements the rpaflow/triggers tool.
func (t *Tools) HandleTriggers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.TriggersFile == "" {
		return errorResult("no trigger file configured"), nil
	}
	triggers, err := model.LoadTriggersFile(t.TriggersFile)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, err := marshal(triggers)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// marshal indents JSON and leaves selectors such as "<ctrl>" unescaped.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func formatErrors(errs []*validate.ValidationError) string {
	var msgs []string
	for _, e := range validate.Errors(errs) {
		msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
	}
	return strings.Join(msgs, "; ")
}

func withWarnings(text string, errs []*validate.ValidationError) string {
	for _, e := range errs {
		if e.Severity == validate.SeverityWarning {
			text += fmt.Sprintf("\n⚠ %s: %s", e.Path, e.Message)
		}
	}
	return text
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
