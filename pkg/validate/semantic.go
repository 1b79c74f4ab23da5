package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

type schemaSource struct {
	id       string
	generate func() ([]byte, error)

	once sync.Once
	sch  *sjsonschema.Schema
	err  error
}

var (
	scriptSchema  = &schemaSource{id: model.ScriptSchemaID, generate: model.GenerateScriptJSONSchema}
	triggerSchema = &schemaSource{id: model.TriggerSchemaID, generate: model.GenerateTriggerJSONSchema}
)

// compiled generates and compiles the schema once per process.
func (s *schemaSource) compiled() (*sjsonschema.Schema, error) {
	s.once.Do(func() {
		data, err := s.generate()
		if err != nil {
			s.err = fmt.Errorf("generate schema: %w", err)
			return
		}
		doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			s.err = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(s.id, doc); err != nil {
			s.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		s.sch, s.err = c.Compile(s.id)
		if s.err != nil {
			s.err = fmt.Errorf("compile schema: %w", s.err)
		}
	})
	return s.sch, s.err
}

// validateSemantic marshals v in its persisted shape and checks it against
// the generated schema.
func validateSemantic(v any, src *schemaSource) []*ValidationError {
	sch, err := src.compiled()
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "%v", err)}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "marshal for schema validation: %v", err)}
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []*ValidationError{errorf(PhaseSemantic, "", "unmarshal document: %v", err)}
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *sjsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []*ValidationError{errorf(PhaseSemantic, "", "%v", err)}
	}
	p := message.NewPrinter(language.English)
	var errs []*ValidationError
	for _, cause := range leaves(ve) {
		errs = append(errs, errorf(PhaseSemantic, instancePath(cause.InstanceLocation), "%s", cause.ErrorKind.LocalizedString(p)))
	}
	return errs
}

func leaves(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, leaves(cause)...)
	}
	return flat
}

// instancePath renders ["steps","0","action_type"] as "steps[0].action_type"
// and a top-level array index as "[0]".
func instancePath(loc []string) string {
	var b strings.Builder
	for _, tok := range loc {
		if isIndex(tok) {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

func isIndex(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
