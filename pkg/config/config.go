// Package config loads rpaflow.yaml and builds the process logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "rpaflow.yaml"

// Config is the process configuration.
type Config struct {
	ScriptsDir   string `yaml:"scripts_dir"`
	TriggersFile string `yaml:"triggers_file"`
	TraceDir     string `yaml:"trace_dir"`
	MaxDepth     int    `yaml:"max_depth"`
	Provider     struct {
		Kind      string `yaml:"kind"` // "http" or "dryrun"
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"provider"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Listen string `yaml:"listen"` // empty disables the endpoint
	} `yaml:"metrics"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.TriggersFile == "" {
		c.TriggersFile = "data/triggers.json"
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 16
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "http"
	}
	if c.Provider.Timeout == "" {
		c.Provider.Timeout = "15s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// LoadOptional is Load, except that a missing file yields Default().
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be at least 1, got %d", c.MaxDepth)
	}
	switch c.Provider.Kind {
	case "http", "dryrun":
	default:
		return fmt.Errorf("provider.kind must be http or dryrun, got %q", c.Provider.Kind)
	}
	if d, err := time.ParseDuration(c.Provider.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("provider.timeout %q is not a positive duration", c.Provider.Timeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// ProviderTimeout returns the parsed provider timeout.
func (c *Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Provider.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
