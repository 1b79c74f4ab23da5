// Package eval implements the run-scoped variable environment and the
// "{{ expr }}" template resolver used for step parameters.
package eval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/spf13/cast"
)

// templateRe matches one "{{ ... }}" span, shortest first, on a single line.
var templateRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Resolve substitutes every "{{ expr }}" span of a string value. Non-string
// values pass through unchanged.
//
// Resolution never fails: a span whose expression cannot be evaluated is left
// exactly as written. Substituted text is not rescanned.
// Example: Resolve("price: {{ p * 2 }}", {"p": 3}) → "price: 6"
func Resolve(value any, vars map[string]any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return ResolveString(s, vars)
}

// ResolveString is Resolve for a known string.
func ResolveString(s string, vars map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s // fast path for literals
	}
	return templateRe.ReplaceAllStringFunc(s, func(span string) string {
		code := templateRe.FindStringSubmatch(span)[1]
		v, err := Evaluate(code, vars)
		if err != nil {
			return span
		}
		return Stringify(v)
	})
}

// ResolveMap resolves every value of a parameter map into a new map.
func ResolveMap(params map[string]any, vars map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = Resolve(v, vars)
	}
	return out
}

// Evaluate runs a single expression against vars. The grammar is limited to
// name lookups, literals, member/index access and operators: builtin
// functions are disabled and the environment holds only the variables, so an
// expression has no reach beyond the mapping.
func Evaluate(code string, vars map[string]any) (any, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty expression")
	}
	if vars == nil {
		vars = map[string]any{}
	}
	program, err := expr.Compile(code, expr.Env(vars), expr.DisableAllBuiltins())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", code, err)
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", code, err)
	}
	return out, nil
}

// Expressions returns the trimmed code of every "{{ ... }}" span in s.
func Expressions(s string) []string {
	var out []string
	for _, m := range templateRe.FindAllStringSubmatch(s, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// Check compiles code without an environment, reporting syntax errors and
// calls to builtins. Unknown names are not an error here.
func Check(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("empty expression")
	}
	if _, err := expr.Compile(code, expr.DisableAllBuiltins()); err != nil {
		return err
	}
	return nil
}

// Stringify renders a value the way it is substituted into templates.
// nil renders as the empty string; lists and maps render as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any, map[string]any, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// Truthy interprets a parameter flag such as ignore_error. Strings follow
// strconv.ParseBool; other non-empty strings count as true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err == nil {
		return b
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return false
}
