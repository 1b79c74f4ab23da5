//go:build nohook

package hotkey

import "github.com/ormasoftchile/rpaflow/pkg/trigger"

// Available reports whether global hotkeys are compiled in.
const Available = false

func (r *Registrar) Listen(bindings []trigger.Binding) (trigger.HotkeyListener, error) {
	r.logger.Warn("hotkeys requested in a nohook build", "bindings", len(bindings))
	return nil, ErrUnavailable
}
