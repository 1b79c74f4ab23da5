package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/console"
	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/model"
	"github.com/ormasoftchile/rpaflow/pkg/repl"
)

var (
	replScript string
	replDryRun bool
	replAuto   bool
	replVars   []string
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Compile and execute instructions interactively",
	Long:  "Start an interactive session. Each instruction is compiled into steps that run against one live page and variable set.",
	Args:  cobra.NoArgs,
	RunE:  runRepl,
}

func init() {
	replCmd.Flags().StringVar(&replScript, "script", "", "Seed variables from this script")
	replCmd.Flags().BoolVar(&replDryRun, "dry-run", false, "Log provider calls instead of touching pages")
	replCmd.Flags().BoolVar(&replAuto, "auto", false, "Execute instructions as soon as they compile")
	replCmd.Flags().StringArrayVar(&replVars, "var", nil, "Set a variable (key=value), repeatable")
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	script := model.NewScript("repl")
	if replScript != "" {
		if script, err = model.LoadScriptFile(replScript); err != nil {
			return err
		}
	}
	vars, err := parseVars(replVars)
	if err != nil {
		return err
	}
	for k, v := range vars {
		script.Variables[k] = v
	}

	printer := console.NewPrinter(cmd.OutOrStdout())
	printer.SetVerbose(verbose)
	p := providerFactory(cfg, logger, replDryRun)()
	defer p.Stop()

	eng := engine.New(script, engine.RunConfig{
		Provider: p,
		Loader:   engine.FileLoader{BaseDir: cfg.ScriptsDir},
		Listener: printer,
		MaxDepth: cfg.MaxDepth,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := repl.New(eng, nil)
	session.SetOutput(cmd.OutOrStdout())
	session.SetAuto(replAuto)
	return session.Run(ctx)
}
