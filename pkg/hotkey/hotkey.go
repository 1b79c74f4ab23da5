// Package hotkey registers global key combos with the operating system.
package hotkey

import (
	"errors"
	"log/slog"

	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

// ErrUnavailable is returned when the binary was built without hook support.
var ErrUnavailable = errors.New("global hotkeys unavailable in this build")

// Registrar implements trigger.Registrar. The native hook is process-wide, so
// at most one listener is active; Listen is expected to follow Stop of the
// previous listener, as the scheduler guarantees.
type Registrar struct {
	logger *slog.Logger
}

// New returns a registrar. A nil logger discards output.
func New(logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registrar{logger: logger.With("component", "hotkey")}
}

var _ trigger.Registrar = (*Registrar)(nil)
