package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/console"
	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/host"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/trace"
	"github.com/ormasoftchile/rpaflow/pkg/tui"
	"github.com/ormasoftchile/rpaflow/pkg/validate"
)

var (
	runDryRun   bool
	runVars     []string
	runTraceDir string
	runNoTrace  bool
	runTUI      bool
)

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run an automation script once",
	Long:  "Run an automation script. A path that does not exist as given is looked up in scripts_dir. Ctrl-C stops the run at the next step boundary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Log provider calls instead of touching pages")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a variable (key=value), repeatable")
	runCmd.Flags().StringVar(&runTraceDir, "trace-dir", "", "Directory for the JSONL trace (overrides trace_dir)")
	runCmd.Flags().BoolVar(&runNoTrace, "no-trace", false, "Do not write a trace file")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Follow the run in a full-screen monitor")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}

	loader := engine.FileLoader{BaseDir: cfg.ScriptsDir}
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		path = loader.Resolve(path)
	}
	script, errs := validate.ValidateScriptFile(path)
	printValidationWarnings(cmd, errs)
	if n := len(validate.Errors(errs)); n > 0 {
		printValidationErrors(cmd, errs)
		return fmt.Errorf("validation failed with %d error(s)", n)
	}
	for k, v := range vars {
		script.Variables[k] = v
	}

	traceDir := cfg.TraceDir
	if runTraceDir != "" {
		traceDir = runTraceDir
	}
	if runNoTrace {
		traceDir = ""
	}

	printer := console.NewPrinter(cmd.OutOrStdout())
	printer.SetVerbose(verbose)

	hostConfig := host.Config{
		Loader:    loader,
		Providers: providerFactory(cfg, logger, runDryRun),
		Listener:  func(string) engine.Listener { return printer },
		TraceDir:  traceDir,
		MaxDepth:  cfg.MaxDepth,
		Logger:    logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *engine.RunResult
	if runTUI {
		res, err = runMonitor(ctx, hostConfig, script, path, traceDir)
		if err != nil {
			return err
		}
	} else {
		run, err := host.New(hostConfig).StartScript(ctx, script, path, host.SourceManual)
		if err != nil {
			return err
		}
		res = run.Wait()
	}
	printer.Result(res)
	if traceDir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "trace: %s\n", trace.FilePath(traceDir, res.RunID))
	}
	if !res.Success {
		return fmt.Errorf("run %s %s", res.RunID, res.Status)
	}
	return nil
}

// runMonitor runs the script under the full-screen monitor. Engine events
// go to the monitor instead of the line printer.
func runMonitor(ctx context.Context, hc host.Config, script *model.AutomationScript, path, traceDir string) (*engine.RunResult, error) {
	mode := "real"
	if runDryRun {
		mode = "dry-run"
	}
	var h *host.Host
	return tui.Run(tui.Config{
		Script:   script,
		Mode:     mode,
		TraceDir: traceDir,
		Start: func(l engine.Listener) (tui.Runner, error) {
			hc.Listener = func(string) engine.Listener { return l }
			h = host.New(hc)
			return h.StartScript(ctx, script, path, host.SourceManual)
		},
		Stop: func() { h.StopAll() },
	})
}

func printValidationWarnings(cmd *cobra.Command, errs []*validate.ValidationError) {
	w := cmd.ErrOrStderr()
	for _, e := range errs {
		if e.Severity != validate.SeverityWarning {
			continue
		}
		fmt.Fprintf(w, "  %s [%s] %s\n", console.GlyphWarn, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "    at: %s\n", e.Path)
		}
	}
}

func printValidationErrors(cmd *cobra.Command, errs []*validate.ValidationError) {
	w := cmd.ErrOrStderr()
	errors := validate.Errors(errs)
	fmt.Fprintf(w, "Validation failed: %d error(s)\n\n", len(errors))
	for i, e := range errors {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "     at: %s\n", e.Path)
		}
	}
}
