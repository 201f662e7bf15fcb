// Package main provides the veriplan-mcp binary — MCP server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	vmcp "github.com/arvelex/veriplan/pkg/mcp"
)

var version = "dev"

func main() {
	s := vmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
