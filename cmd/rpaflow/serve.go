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
	"github.com/ormasoftchile/rpaflow/pkg/hotkey"
	"github.com/ormasoftchile/rpaflow/pkg/metrics"
	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

var (
	serveDryRun bool
	serveListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scripts from time and hotkey triggers until interrupted",
	Long: `Load the trigger file, poll time triggers every minute, listen for
hotkeys and start a run for each fire. The trigger file is watched and
reloaded on change. With metrics.listen set, Prometheus metrics are served
at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Log provider calls instead of touching pages")
	serveCmd.Flags().StringVar(&serveListen, "metrics-listen", "", "Metrics address (overrides metrics.listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sched := trigger.New(cfg.TriggersFile,
		trigger.WithRegistrar(hotkey.New(logger)),
		trigger.WithLogger(logger),
	)
	if err := sched.Load(); err != nil {
		return err
	}

	listen := cfg.Metrics.Listen
	if serveListen != "" {
		listen = serveListen
	}

	out := console.NewPrinter(cmd.OutOrStdout())
	out.SetVerbose(verbose)

	h := host.New(host.Config{
		Scheduler: sched,
		Loader:    engine.FileLoader{BaseDir: cfg.ScriptsDir},
		Providers: providerFactory(cfg, logger, serveDryRun),
		Listener: func(runID string) engine.Listener {
			return out.WithPrefix(shortRunID(runID))
		},
		TraceDir:      cfg.TraceDir,
		MaxDepth:      cfg.MaxDepth,
		Metrics:       metrics.New(),
		MetricsListen: listen,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "serving %d trigger(s) from %s, Ctrl-C to stop\n", len(sched.Triggers()), cfg.TriggersFile)
	return h.Serve(ctx)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
