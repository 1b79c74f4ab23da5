package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/rpaflow/pkg/model"
)

// ScriptLoader resolves a sub-flow path to a script.
type ScriptLoader interface {
	Load(path string) (*model.AutomationScript, error)
}

// FileLoader loads scripts from disk. Relative paths are resolved against
// BaseDir, or the working directory when BaseDir is empty.
type FileLoader struct {
	BaseDir string
}

// Resolve returns the filesystem path for p.
func (l FileLoader) Resolve(p string) string {
	if filepath.IsAbs(p) || l.BaseDir == "" {
		return p
	}
	return filepath.Join(l.BaseDir, p)
}

func (l FileLoader) Load(p string) (*model.AutomationScript, error) {
	full := l.Resolve(p)
	if _, err := os.Stat(full); err != nil {
		return nil, fmt.Errorf("sub-flow %s: %w", p, err)
	}
	return model.LoadScriptFile(full)
}

// MapLoader serves scripts from memory, keyed by path.
type MapLoader map[string]*model.AutomationScript

func (m MapLoader) Load(p string) (*model.AutomationScript, error) {
	s, ok := m[p]
	if !ok {
		return nil, fmt.Errorf("sub-flow %s: %w", p, os.ErrNotExist)
	}
	return s, nil
}
