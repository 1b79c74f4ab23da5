package model

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// JSONSchema publishes the closed set of action kinds as an enum.
func (ActionKind) JSONSchema() *jsonschema.Schema {
	enum := make([]any, 0, len(allKinds))
	for _, k := range allKinds {
		enum = append(enum, string(k))
	}
	return &jsonschema.Schema{
		Type:        "string",
		Enum:        enum,
		Description: "Action kind dispatched by the interpreter",
	}
}

// JSONSchemaExtend accepts any object in children. Nested steps are stored
// but never run, so their kinds and parameters are not constrained.
func (ActionStep) JSONSchemaExtend(s *jsonschema.Schema) {
	if s.Properties == nil {
		return
	}
	s.Properties.Set("children", &jsonschema.Schema{
		Type:        "array",
		Items:       &jsonschema.Schema{Type: "object"},
		Description: "Nested steps, persisted but not executed",
	})
}

// Schema identifiers ($id) of the generated documents.
const (
	ScriptSchemaID  = "https://github.com/ormasoftchile/rpaflow/schemas/script.json"
	TriggerSchemaID = "https://github.com/ormasoftchile/rpaflow/schemas/triggers.json"
)

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
	}
}

// GenerateScriptJSONSchema produces a JSON Schema Draft 2020-12 document
// from the AutomationScript Go types.
func GenerateScriptJSONSchema() ([]byte, error) {
	s := newReflector().Reflect(&AutomationScript{})
	s.ID = ScriptSchemaID
	s.Title = "rpaflow automation script"
	s.Description = "Schema for persisted automation script files (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal script schema: %w", err)
	}
	return data, nil
}

// GenerateTriggerJSONSchema produces the schema of the persisted trigger
// collection (a JSON array of Trigger objects).
func GenerateTriggerJSONSchema() ([]byte, error) {
	item := newReflector().Reflect(&Trigger{})
	s := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          TriggerSchemaID,
		Title:       "rpaflow trigger collection",
		Description: "Schema for the persisted trigger file (Draft 2020-12)",
		Type:        "array",
		Items:       &jsonschema.Schema{Ref: "#/$defs/Trigger"},
		Definitions: item.Definitions,
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal trigger schema: %w", err)
	}
	return data, nil
}
