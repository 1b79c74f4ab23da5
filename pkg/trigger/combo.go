package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// ParseCombo splits a combo such as "<ctrl>+<alt>+r" into lower-case key
// names: ["ctrl", "alt", "r"].
func ParseCombo(combo string) ([]string, error) {
	combo = strings.TrimSpace(combo)
	if combo == "" {
		return nil, fmt.Errorf("empty key combo")
	}
	parts := strings.Split(combo, "+")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		k := strings.TrimSpace(p)
		k = strings.TrimSuffix(strings.TrimPrefix(k, "<"), ">")
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return nil, fmt.Errorf("key combo %q: empty key", combo)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// ParseClock checks an "HH:MM" wall-clock value.
func ParseClock(hhmm string) error {
	if len(hhmm) != 5 {
		return fmt.Errorf("time %q: want HH:MM", hhmm)
	}
	if _, err := time.Parse("15:04", hhmm); err != nil {
		return fmt.Errorf("time %q: want HH:MM", hhmm)
	}
	return nil
}

// Validate checks a trigger's type-specific configuration.
func Validate(t model.Trigger) error {
	if strings.TrimSpace(t.ScriptPath) == "" {
		return fmt.Errorf("trigger %s: script_path is required", t.ID)
	}
	switch t.Type {
	case model.TriggerTime:
		if err := ParseClock(t.Time()); err != nil {
			return fmt.Errorf("trigger %s: %w", t.ID, err)
		}
	case model.TriggerHotkey:
		if _, err := ParseCombo(t.Key()); err != nil {
			return fmt.Errorf("trigger %s: %w", t.ID, err)
		}
	default:
		return fmt.Errorf("trigger %s: unknown type %q", t.ID, t.Type)
	}
	return nil
}
