// Package model defines the automation script and trigger records and their
// persisted file shapes.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Parameter
// ---------------------------------------------------------------------------

// ParamType is the declared type tag of a sub-flow parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamList   ParamType = "list"
	ParamDict   ParamType = "dict"
)

// Parameter declares a sub-flow's formal input or output.
type Parameter struct {
	Name         string    `json:"name"          yaml:"name"          jsonschema:"required"`
	Description  string    `json:"description"   yaml:"description"`
	DefaultValue any       `json:"default_value" yaml:"default_value"`
	Type         ParamType `json:"type"          yaml:"type"          jsonschema:"enum=string,enum=int,enum=list,enum=dict"`
}

// ---------------------------------------------------------------------------
// Action kinds
// ---------------------------------------------------------------------------

// ActionKind names the operation an ActionStep performs.
type ActionKind string

const (
	KindOpenURL        ActionKind = "open_url"
	KindClick          ActionKind = "click"
	KindInput          ActionKind = "input"
	KindSetDatetime    ActionKind = "set_datetime"
	KindGetText        ActionKind = "get_text"
	KindListInit       ActionKind = "list_init"
	KindListAppend     ActionKind = "list_append"
	KindCallSubprocess ActionKind = "call_subprocess"
	KindAISmartStep    ActionKind = "ai_smart_step"
)

var allKinds = []ActionKind{
	KindOpenURL,
	KindClick,
	KindInput,
	KindSetDatetime,
	KindGetText,
	KindListInit,
	KindListAppend,
	KindCallSubprocess,
	KindAISmartStep,
}

// Kinds returns every action kind in declaration order.
func Kinds() []ActionKind {
	out := make([]ActionKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// ActionStep
// ---------------------------------------------------------------------------

// ActionStep is one operation node in an automation script.
//
// Children is part of the persisted shape and round-trips through load/save,
// but the interpreter only walks the top-level ordered sequence. A step
// decoded from JSON keeps the children bytes as read and writes them back
// unchanged; Children is a decoded view for listing and diagrams.
type ActionStep struct {
	ID          string            `json:"id"           yaml:"id"`
	ActionType  ActionKind        `json:"action_type"  yaml:"action_type" jsonschema:"required"`
	Parameters  map[string]any    `json:"parameters"   yaml:"parameters"`
	ArgMappings map[string]string `json:"arg_mappings" yaml:"arg_mappings"`
	Enabled     bool              `json:"enabled"      yaml:"enabled"`
	Children    []ActionStep      `json:"children"     yaml:"children"`

	rawChildren json.RawMessage
}

// NewStep returns an enabled step with a fresh id.
func NewStep(kind ActionKind, params map[string]any) ActionStep {
	s := ActionStep{
		ID:         NewID(),
		ActionType: kind,
		Parameters: params,
		Enabled:    true,
	}
	s.normalize()
	return s
}

// stepDoc mirrors ActionStep with optional fields so absent values can be
// told apart from zero values during decoding.
type stepDoc struct {
	ID          string            `json:"id"           yaml:"id"`
	ActionType  ActionKind        `json:"action_type"  yaml:"action_type"`
	Parameters  map[string]any    `json:"parameters"   yaml:"parameters"`
	ArgMappings map[string]string `json:"arg_mappings" yaml:"arg_mappings"`
	Enabled     *bool             `json:"enabled"      yaml:"enabled"`
	Children    []ActionStep      `json:"children"     yaml:"children"`
}

func (d stepDoc) step() ActionStep {
	s := ActionStep{
		ID:          d.ID,
		ActionType:  d.ActionType,
		Parameters:  d.Parameters,
		ArgMappings: d.ArgMappings,
		Enabled:     true,
		Children:    d.Children,
	}
	if d.Enabled != nil {
		s.Enabled = *d.Enabled
	}
	s.normalize()
	return s
}

// stepJSON is the JSON form of stepDoc with children left undecoded.
type stepJSON struct {
	ID          string            `json:"id"`
	ActionType  ActionKind        `json:"action_type"`
	Parameters  map[string]any    `json:"parameters"`
	ArgMappings map[string]string `json:"arg_mappings"`
	Enabled     *bool             `json:"enabled"`
	Children    json.RawMessage   `json:"children"`
}

// UnmarshalJSON applies load defaults: a missing id is generated and a
// missing enabled flag means true. The children bytes are kept as read;
// defaults reach only their decoded view.
func (s *ActionStep) UnmarshalJSON(data []byte) error {
	var j stepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	d := stepDoc{
		ID:          j.ID,
		ActionType:  j.ActionType,
		Parameters:  j.Parameters,
		ArgMappings: j.ArgMappings,
		Enabled:     j.Enabled,
	}
	raw := bytes.TrimSpace(j.Children)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &d.Children); err != nil {
			return fmt.Errorf("children: %w", err)
		}
	} else {
		raw = nil
	}
	*s = d.step()
	s.rawChildren = raw
	return nil
}

// MarshalJSON writes the children bytes read at load time when there are
// any, and the decoded view otherwise.
func (s ActionStep) MarshalJSON() ([]byte, error) {
	var children any = s.Children
	switch {
	case s.rawChildren != nil:
		children = s.rawChildren
	case s.Children == nil:
		children = []ActionStep{}
	}
	out := struct {
		ID          string            `json:"id"`
		ActionType  ActionKind        `json:"action_type"`
		Parameters  map[string]any    `json:"parameters"`
		ArgMappings map[string]string `json:"arg_mappings"`
		Enabled     bool              `json:"enabled"`
		Children    any               `json:"children"`
	}{s.ID, s.ActionType, s.Parameters, s.ArgMappings, s.Enabled, children}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SetChildren replaces the children and drops the bytes read at load time.
func (s *ActionStep) SetChildren(children []ActionStep) {
	s.Children = children
	s.rawChildren = nil
}

// UnmarshalYAML applies the same defaults as UnmarshalJSON.
func (s *ActionStep) UnmarshalYAML(node *yaml.Node) error {
	var d stepDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	*s = d.step()
	return nil
}

func (s *ActionStep) normalize() {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.Parameters == nil {
		s.Parameters = map[string]any{}
	}
	if s.ArgMappings == nil {
		s.ArgMappings = map[string]string{}
	}
	if s.Children == nil {
		s.Children = []ActionStep{}
	}
}

// ---------------------------------------------------------------------------
// AutomationScript
// ---------------------------------------------------------------------------

// DefaultScriptName is used when a loaded script carries no name.
const DefaultScriptName = "Script"

// AutomationScript is a named, ordered list of steps plus the initial
// variable state and the sub-flow interface (inputs/outputs).
type AutomationScript struct {
	ID        string         `json:"id"        yaml:"id"`
	Name      string         `json:"name"      yaml:"name"`
	Inputs    []Parameter    `json:"inputs"    yaml:"inputs"`
	Outputs   []Parameter    `json:"outputs"   yaml:"outputs"`
	Steps     []ActionStep   `json:"steps"     yaml:"steps"     jsonschema:"required"`
	Variables map[string]any `json:"variables" yaml:"variables"`
}

// NewScript returns an empty script with a fresh id.
func NewScript(name string) *AutomationScript {
	s := &AutomationScript{ID: NewID(), Name: name}
	s.normalize()
	return s
}

func (s *AutomationScript) normalize() {
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.Name == "" {
		s.Name = DefaultScriptName
	}
	if s.Inputs == nil {
		s.Inputs = []Parameter{}
	}
	if s.Outputs == nil {
		s.Outputs = []Parameter{}
	}
	for i := range s.Inputs {
		if s.Inputs[i].Type == "" {
			s.Inputs[i].Type = ParamString
		}
	}
	for i := range s.Outputs {
		if s.Outputs[i].Type == "" {
			s.Outputs[i].Type = ParamString
		}
	}
	if s.Steps == nil {
		s.Steps = []ActionStep{}
	}
	if s.Variables == nil {
		s.Variables = map[string]any{}
	}
}

// WalkSteps calls fn for every step in the script, depth first, including
// persisted children. path is a JSON-path-like location.
func (s *AutomationScript) WalkSteps(fn func(path string, step *ActionStep)) {
	walkSteps("steps", s.Steps, fn)
}

func walkSteps(prefix string, steps []ActionStep, fn func(string, *ActionStep)) {
	for i := range steps {
		p := fmt.Sprintf("%s[%d]", prefix, i)
		fn(p, &steps[i])
		walkSteps(p+".children", steps[i].Children, fn)
	}
}

// ---------------------------------------------------------------------------
// Trigger
// ---------------------------------------------------------------------------

// TriggerType enumerates the trigger sources.
type TriggerType string

const (
	TriggerTime   TriggerType = "time"
	TriggerHotkey TriggerType = "hotkey"
)

// Trigger is a persisted rule that asks a host to start a script run.
type Trigger struct {
	ID         string         `json:"id"          yaml:"id"`
	Name       string         `json:"name"        yaml:"name"`
	Type       TriggerType    `json:"type"        yaml:"type"        jsonschema:"required,enum=time,enum=hotkey"`
	ScriptPath string         `json:"script_path" yaml:"script_path" jsonschema:"required"`
	Config     map[string]any `json:"config"      yaml:"config"`
	Enabled    bool           `json:"enabled"     yaml:"enabled"`
}

// NewTimeTrigger returns an enabled trigger that fires at hhmm ("HH:MM").
func NewTimeTrigger(name, scriptPath, hhmm string) Trigger {
	return Trigger{
		ID:         NewID(),
		Name:       name,
		Type:       TriggerTime,
		ScriptPath: scriptPath,
		Config:     map[string]any{"time": hhmm},
		Enabled:    true,
	}
}

// NewHotkeyTrigger returns an enabled trigger bound to a key combo.
func NewHotkeyTrigger(name, scriptPath, combo string) Trigger {
	return Trigger{
		ID:         NewID(),
		Name:       name,
		Type:       TriggerHotkey,
		ScriptPath: scriptPath,
		Config:     map[string]any{"key": combo},
		Enabled:    true,
	}
}

// Time returns the configured "HH:MM" of a time trigger.
func (t Trigger) Time() string {
	return t.configString("time")
}

// Key returns the configured combo of a hotkey trigger.
func (t Trigger) Key() string {
	return t.configString("key")
}

func (t Trigger) configString(key string) string {
	v, ok := t.Config[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

type triggerDoc struct {
	ID         string         `json:"id"          yaml:"id"`
	Name       string         `json:"name"        yaml:"name"`
	Type       TriggerType    `json:"type"        yaml:"type"`
	ScriptPath string         `json:"script_path" yaml:"script_path"`
	Config     map[string]any `json:"config"      yaml:"config"`
	Enabled    *bool          `json:"enabled"     yaml:"enabled"`
}

// UnmarshalJSON fills a missing id, type "time", and enabled=true.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var d triggerDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*t = Trigger{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		ScriptPath: d.ScriptPath,
		Config:     d.Config,
		Enabled:    d.Enabled == nil || *d.Enabled,
	}
	t.normalize()
	return nil
}

func (t *Trigger) normalize() {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Type == "" {
		t.Type = TriggerTime
	}
	if t.Config == nil {
		t.Config = map[string]any{}
	}
}
