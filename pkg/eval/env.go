package eval

import (
	"sort"
)

// Env is the variable environment of one interpreter run. It is owned by a
// single run and is not safe for concurrent use.
type Env struct {
	vars map[string]any
}

// NewEnv returns an environment seeded with a deep copy of initial, so
// mutations during a run never reach the caller's map.
func NewEnv(initial map[string]any) *Env {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = Clone(v)
	}
	return &Env{vars: vars}
}

// Get returns the value bound to name.
func (e *Env) Get(name string) (any, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Has reports whether name is bound.
func (e *Env) Has(name string) bool {
	_, ok := e.vars[name]
	return ok
}

// Set binds name to v, replacing any previous value.
func (e *Env) Set(name string, v any) {
	e.vars[name] = v
}

// Delete unbinds name.
func (e *Env) Delete(name string) {
	delete(e.vars, name)
}

// Len returns the number of bound names.
func (e *Env) Len() int {
	return len(e.vars)
}

// Names returns the bound names in sorted order.
func (e *Env) Names() []string {
	names := make([]string, 0, len(e.vars))
	for k := range e.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Vars exposes the live mapping for template resolution. Callers must not
// retain it beyond the current step.
func (e *Env) Vars() map[string]any {
	return e.vars
}

// Snapshot returns a deep copy of the current bindings.
func (e *Env) Snapshot() map[string]any {
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = Clone(v)
	}
	return out
}

// Clone deep-copies lists and maps; other values are returned as-is.
func Clone(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
