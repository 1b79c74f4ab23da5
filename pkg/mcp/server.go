// Package mcp exposes rpaflow operations as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the rpaflow tools registered.
func NewServer(version string, tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		"rpaflow",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("rpaflow/validate",
			mcp.WithDescription("Validate an automation script file or a trigger file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the script (.json/.yaml) or trigger file")),
			mcp.WithString("kind", mcp.Description("File kind: 'script' (default) or 'triggers'")),
		),
		tools.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("rpaflow/run",
			mcp.WithDescription("Run an automation script (defaults to dry-run mode: no page is touched)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the script file")),
			mcp.WithString("mode", mcp.Description("Execution mode: dry-run or real")),
			mcp.WithObject("vars", mcp.Description("Variables overriding the script's initial values")),
		),
		tools.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("rpaflow/compile",
			mcp.WithDescription("Compile a natural-language instruction into action steps without running them"),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("Instruction text")),
		),
		tools.HandleCompile,
	)

	s.AddTool(
		mcp.NewTool("rpaflow/schema",
			mcp.WithDescription("Export rpaflow JSON Schema (script or trigger)"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'script' or 'trigger'")),
		),
		tools.HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("rpaflow/diagram",
			mcp.WithDescription("Draw a script as a Mermaid flowchart or ASCII boxes, with sub-flows expanded"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the script file")),
			mcp.WithString("format", mcp.Description("Output format: mermaid (default) or ascii")),
		),
		tools.HandleDiagram,
	)

	s.AddTool(
		mcp.NewTool("rpaflow/triggers",
			mcp.WithDescription("List the persisted triggers"),
		),
		tools.HandleTriggers,
	)

	return s
}
