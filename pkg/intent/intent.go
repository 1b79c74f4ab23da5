// Package intent turns a free-text prompt into a short list of action steps.
//
// Compilation is a fixed keyword table, not language understanding: each rule
// tests its own substrings independently and matching rules emit their step
// in table order.
package intent

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// Rule emits one step when every keyword occurs in the prompt.
type Rule struct {
	Name     string
	Keywords []string
	Kind     model.ActionKind
	Params   map[string]any
}

// Matches reports whether all keywords occur in prompt.
func (r Rule) Matches(prompt string) bool {
	if len(r.Keywords) == 0 {
		return false
	}
	for _, kw := range r.Keywords {
		if !strings.Contains(prompt, kw) {
			return false
		}
	}
	return true
}

// DefaultRules is the built-in table, in emission order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "date",
			Keywords: []string{"时间", "2025"},
			Kind:     model.KindSetDatetime,
			Params:   map[string]any{"target": "#date_picker", "value": "2025-01-18"},
		},
		{
			Name:     "extract",
			Keywords: []string{"获取"},
			Kind:     model.KindGetText,
			Params:   map[string]any{"target": ".price-tag", "var": "current_price"},
		},
		{
			Name:     "collect",
			Keywords: []string{"列表"},
			Kind:     model.KindListAppend,
			Params:   map[string]any{"list_var": "result_list", "item_val": "{{current_price}}"},
		},
	}
}

// Compiler applies a rule table.
type Compiler struct {
	rules []Rule
}

// New returns a compiler over rules. A nil table uses DefaultRules.
func New(rules []Rule) *Compiler {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Compiler{rules: rules}
}

// Compile returns the steps for prompt. It is pure: the same prompt always
// yields steps with the same ids and parameters. No match yields an empty,
// non-nil list.
func (c *Compiler) Compile(prompt string) []model.ActionStep {
	steps := []model.ActionStep{}
	for _, r := range c.rules {
		if !r.Matches(prompt) {
			continue
		}
		params := make(map[string]any, len(r.Params))
		for k, v := range r.Params {
			params[k] = v
		}
		step := model.NewStep(r.Kind, params)
		step.ID = fmt.Sprintf("intent-%d-%s", len(steps)+1, r.Kind)
		steps = append(steps, step)
	}
	return steps
}

// Rules returns a copy of the compiler's table.
func (c *Compiler) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

var std = New(nil)

// Compile runs the default table.
func Compile(prompt string) []model.ActionStep {
	return std.Compile(prompt)
}
