// Package mcp exposes plan validation, resolution, and execution as MCP
// tools so coding agents can drive the engine over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with veriplan tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"veriplan",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("veriplan/validate",
			mcp.WithDescription("Validate a veriplan test plan YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the plan YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("veriplan/resolve",
			mcp.WithDescription("Resolve a plan YAML file into its canonical ordered step plan"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the plan YAML file")),
		),
		HandleResolve,
	)

	s.AddTool(
		mcp.NewTool("veriplan/run",
			mcp.WithDescription("Execute a plan (dry-run mode, no backends touched)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the plan YAML file")),
		),
		HandleRun,
	)

	s.AddTool(
		mcp.NewTool("veriplan/report",
			mcp.WithDescription("Read the manifest of a finished run directory"),
			mcp.WithString("run_dir", mcp.Required(), mcp.Description("Path to a .veriplan/runs/<id> directory")),
		),
		HandleReport,
	)

	s.AddTool(
		mcp.NewTool("veriplan/schema",
			mcp.WithDescription("Export the plan document JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
