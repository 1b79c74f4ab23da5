package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/rpaflow/pkg/config"
	"github.com/ormasoftchile/rpaflow/pkg/provider"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "rpaflow",
	Short:         "Scripted web automation with scheduled and hotkey triggers",
	Long:          "rpaflow runs automation scripts (open, click, input, read, collect, sub-flows) against web pages, on demand or from time and hotkey triggers.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rpaflow %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the rpaflow.yaml config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print every step outcome")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file. The default path may be absent; an
// explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flags().Changed("config") {
		return config.Load(configPath)
	}
	return config.LoadOptional(configPath)
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// free for command output and the MCP protocol.
func newLogger(cfg *config.Config) *slog.Logger {
	return cfg.NewLogger(os.Stderr)
}

// providerFactory picks the backend for each run.
func providerFactory(cfg *config.Config, logger *slog.Logger, dryRun bool) provider.Factory {
	if dryRun || cfg.Provider.Kind == "dryrun" {
		return func() provider.Provider { return provider.NewDryRun(logger) }
	}
	return func() provider.Provider {
		return provider.NewHTTP(provider.HTTPConfig{
			Timeout:   cfg.ProviderTimeout(),
			UserAgent: cfg.Provider.UserAgent,
		})
	}
}

// parseVars turns repeated key=value flags into variables. Values are read
// as YAML scalars or flow collections, so 3 is an int and [a, b] a list.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		vars[key] = v
	}
	return vars, nil
}
