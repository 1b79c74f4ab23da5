package eval

import (
	"testing"
)

func TestResolve_Literal(t *testing.T) {
	result := ResolveString("hello world", nil)
	if result != "hello world" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_NonStringPassesThrough(t *testing.T) {
	list := []any{"a"}
	for _, v := range []any{42, 2.5, true, nil, list} {
		got := Resolve(v, map[string]any{"x": 1})
		switch want := v.(type) {
		case []any:
			if g, ok := got.([]any); !ok || len(g) != len(want) {
				t.Errorf("Resolve(%v) = %v", v, got)
			}
		default:
			if got != v {
				t.Errorf("Resolve(%v) = %v", v, got)
			}
		}
	}
}

func TestResolve_SimpleVar(t *testing.T) {
	vars := map[string]any{"hostname": "srv1"}
	result := ResolveString("https://{{ hostname }}/healthz", vars)
	if result != "https://srv1/healthz" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_MissingNameFailsOpen(t *testing.T) {
	result := ResolveString("{{missing}}", map[string]any{})
	if result != "{{missing}}" {
		t.Errorf("got %q, want span untouched", result)
	}
}

func TestResolve_NilVarsFailsOpen(t *testing.T) {
	result := ResolveString("{{missing}}", nil)
	if result != "{{missing}}" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_PartialFailureKeepsOnlyBadSpan(t *testing.T) {
	vars := map[string]any{"a": 1}
	result := ResolveString("{{a}}-{{ missing }}-{{ a + 1 }}", vars)
	if result != "1-{{ missing }}-2" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_SyntaxErrorFailsOpen(t *testing.T) {
	vars := map[string]any{"a": 1}
	result := ResolveString("x {{ a + }} y", vars)
	if result != "x {{ a + }} y" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_Expressions(t *testing.T) {
	vars := map[string]any{
		"price": 3,
		"ratio": 2.5,
		"name":  "widget",
		"items": []any{"first", "second"},
		"row":   map[string]any{"sku": "A-1"},
		"ok":    true,
	}
	tests := []struct {
		tmpl string
		want string
	}{
		{"{{ price * 2 }}", "6"},
		{"{{ ratio }}", "2.5"},
		{`{{ name + "-x" }}`, "widget-x"},
		{"{{ items[1] }}", "second"},
		{"{{ row.sku }}", "A-1"},
		{"{{ price > 2 }}", "true"},
		{"{{ ok && price == 3 }}", "true"},
		{`{{ "lit" }}`, "lit"},
		{"{{ items }}", `["first","second"]`},
		{"[{{name}}]", "[widget]"},
	}
	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got := ResolveString(tt.tmpl, vars)
			if got != tt.want {
				t.Errorf("ResolveString(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestResolve_BuiltinsUnavailable(t *testing.T) {
	vars := map[string]any{"s": "abc"}
	result := ResolveString("{{ upper(s) }}", vars)
	if result != "{{ upper(s) }}" {
		t.Errorf("got %q, builtin calls must not evaluate", result)
	}
}

func TestResolve_SinglePass(t *testing.T) {
	vars := map[string]any{"x": "{{y}}", "y": "Y"}
	result := ResolveString("{{x}}", vars)
	if result != "{{y}}" {
		t.Errorf("got %q, substituted text must not be rescanned", result)
	}
}

func TestResolve_NilRendersEmpty(t *testing.T) {
	vars := map[string]any{"v": nil}
	result := ResolveString("[{{ v }}]", vars)
	if result != "[]" {
		t.Errorf("got %q", result)
	}
}

func TestResolveMap(t *testing.T) {
	vars := map[string]any{"host": "srv1"}
	inputs := map[string]any{
		"url":     "https://{{ host }}/api",
		"timeout": 30,
	}
	result := ResolveMap(inputs, vars)
	if result["url"] != "https://srv1/api" {
		t.Errorf("url = %v", result["url"])
	}
	if result["timeout"] != 30 {
		t.Errorf("timeout = %v", result["timeout"])
	}
	if inputs["url"] != "https://{{ host }}/api" {
		t.Error("ResolveMap mutated its input")
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"", false},
		{"yes", true},
		{1, true},
		{0, false},
		{1.0, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.in); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{3, "3"},
		{float64(3), "3"},
		{2.5, "2.5"},
		{true, "true"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnv_IsolatedFromSeed(t *testing.T) {
	seed := map[string]any{
		"xs":  []any{"a"},
		"cfg": map[string]any{"k": "v"},
	}
	env := NewEnv(seed)
	xs, _ := env.Get("xs")
	env.Set("xs", append(xs.([]any), "b"))
	cfg, _ := env.Get("cfg")
	cfg.(map[string]any)["k"] = "changed"

	if len(seed["xs"].([]any)) != 1 {
		t.Error("seed list was mutated")
	}
	if seed["cfg"].(map[string]any)["k"] != "v" {
		t.Error("seed map was mutated")
	}
}

func TestEnv_SnapshotAndNames(t *testing.T) {
	env := NewEnv(nil)
	env.Set("b", 2)
	env.Set("a", []any{1})
	snap := env.Snapshot()
	snap["a"].([]any)[0] = 99

	v, _ := env.Get("a")
	if v.([]any)[0] != 1 {
		t.Error("snapshot shares list storage with env")
	}
	names := env.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v", names)
	}
	env.Delete("a")
	if env.Has("a") || env.Len() != 1 {
		t.Error("delete did not unbind")
	}
}

func TestExpressions(t *testing.T) {
	got := Expressions("{{ a }} and {{b.c}} but not {x}")
	if len(got) != 2 || got[0] != "a" || got[1] != "b.c" {
		t.Errorf("got %q", got)
	}
	if got := Expressions("plain"); len(got) != 0 {
		t.Errorf("got %q", got)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"price * 2", false},
		{"unknown_name", false},
		{"a +", true},
		{"", true},
	}
	for _, tt := range tests {
		err := Check(tt.code)
		if (err != nil) != tt.wantErr {
			t.Errorf("Check(%q) err = %v, wantErr %v", tt.code, err, tt.wantErr)
		}
	}
}
