package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a persisted script.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension. Anything that is
// not .yaml/.yml is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// LoadScriptFile reads an automation script from disk.
func LoadScriptFile(path string) (*AutomationScript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return LoadScript(f, FormatForPath(path))
}

// LoadScript decodes an automation script and applies load defaults.
func LoadScript(r io.Reader, format Format) (*AutomationScript, error) {
	var s AutomationScript
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("structural decode: %w", err)
		}
	default:
		dec := json.NewDecoder(r)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("structural decode: %w", err)
		}
	}
	s.normalize()
	return &s, nil
}

// MarshalScript encodes a script in the persisted JSON shape. Children read
// from JSON are spliced back verbatim, whitespace included.
func MarshalScript(s *AutomationScript) ([]byte, error) {
	s.normalize()
	out := *s
	out.Steps = make([]ActionStep, len(s.Steps))
	var raws []json.RawMessage
	for i, step := range s.Steps {
		if step.rawChildren != nil {
			raws = append(raws, step.rawChildren)
			step.rawChildren = childrenMarker(len(raws) - 1)
		}
		out.Steps[i] = step
	}
	data, err := marshalIndent(&out)
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		data = bytes.Replace(data, childrenMarker(i), raw, 1)
	}
	return data, nil
}

// childrenMarker stands in for loaded children bytes during encoding.
func childrenMarker(i int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`"\u0000rpaflow:children:%d"`, i))
}

// SaveScriptFile writes a script as 4-space indented JSON.
func SaveScriptFile(path string, s *AutomationScript) error {
	data, err := MarshalScript(s)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	return nil
}

// LoadTriggersFile reads the ordered trigger collection. A missing file is an
// empty collection.
func LoadTriggersFile(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Trigger{}, nil
		}
		return nil, fmt.Errorf("read triggers: %w", err)
	}
	return ParseTriggers(data)
}

// ParseTriggers decodes a JSON array of triggers.
func ParseTriggers(data []byte) ([]Trigger, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Trigger{}, nil
	}
	var out []Trigger
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse triggers: %w", err)
	}
	if out == nil {
		out = []Trigger{}
	}
	return out, nil
}

// SaveTriggersFile writes the trigger collection in order, creating the
// parent directory when needed.
func SaveTriggersFile(path string, triggers []Trigger) error {
	if triggers == nil {
		triggers = []Trigger{}
	}
	for i := range triggers {
		triggers[i].normalize()
	}
	data, err := marshalIndent(triggers)
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create triggers dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write triggers: %w", err)
	}
	return nil
}

// marshalIndent writes 4-space indented JSON with HTML characters unescaped.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
