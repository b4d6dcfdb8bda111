// Package main is the entry point for the agentbus CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/agentbus/internal/runtime"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	serverURL     string
	correlationID string
)

func defaultServerURL() string {
	if v := os.Getenv("AGENTBUS_URL"); v != "" {
		return v
	}
	return "http://" + runtime.DefaultListen
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentbus",
		Short: "Coordination and messaging bus for coding agents",
		Long: `agentbus lets coding agents running side by side discover each other,
register, and exchange messages within their workspace. Agents talk to it
as an MCP tool server; their runtimes report lifecycle events through
"agentbus hook".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "agentbus server URL")
	root.PersistentFlags().StringVar(&correlationID, "correlation-id", "", "Set explicit correlation ID")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newToolsCmd())
	root.AddCommand(newHookCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
