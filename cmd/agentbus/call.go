package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/agentbus/internal/mcp"
)

func newCallCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <tool> [key=value...]",
		Short: "Call a tool on the agentbus server over MCP",
		Example: `  agentbus call register-agent agentId=$AGENTBUS_AGENT_ID
  agentbus call send-message from=$AGENTBUS_AGENT_ID to=reviewer content="ready for review"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := mcp.NewClient(mcpURL(serverURL), version)
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer client.Close()

			res, err := client.CallTool(ctx, args[0], toolArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if res.IsError {
				return fmt.Errorf("tool %s failed", args[0])
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Call timeout")

	return cmd
}

// parseToolArgs turns key=value pairs into a tool argument map. Values are
// passed as strings; the server coerces booleans.
func parseToolArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("argument %q must be key=value", p)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

func mcpURL(base string) string {
	return strings.TrimRight(base, "/") + "/mcp"
}
