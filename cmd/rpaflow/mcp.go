package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rpaflow/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve rpaflow tools over the Model Context Protocol (stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		tools := &mcp.Tools{
			Providers:    providerFactory(cfg, logger, false),
			TriggersFile: cfg.TriggersFile,
			TraceDir:     cfg.TraceDir,
			MaxDepth:     cfg.MaxDepth,
			Logger:       logger,
		}
		return server.ServeStdio(mcp.NewServer(version, tools))
	},
}
