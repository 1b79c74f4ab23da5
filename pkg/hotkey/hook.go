//go:build !nohook

package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

// Available reports whether global hotkeys are compiled in.
const Available = true

type listener struct {
	once sync.Once
	done <-chan bool
}

// Listen registers every binding on key-down and starts the event loop.
func (r *Registrar) Listen(bindings []trigger.Binding) (trigger.HotkeyListener, error) {
	for _, b := range bindings {
		b := b
		hook.Register(hook.KeyDown, b.Keys, func(hook.Event) {
			r.logger.Debug("hotkey pressed", "combo", b.Combo)
			go b.Fire()
		})
	}
	events := hook.Start()
	r.logger.Info("hotkey listener started", "bindings", len(bindings))
	return &listener{done: hook.Process(events)}, nil
}

func (l *listener) Stop() error {
	l.once.Do(func() {
		hook.End()
		<-l.done
	})
	return nil
}
