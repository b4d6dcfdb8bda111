package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/szaher/agentbus/internal/hooks"
	"github.com/szaher/agentbus/internal/runtime"
	"github.com/szaher/agentbus/internal/telemetry"
)

// statusForHook maps agent runtime hook names onto activity statuses.
// Hooks not listed are registration events.
var statusForHook = map[string]string{
	"stop":             "idle",
	"userpromptsubmit": "running",
	"pretooluse":       "running",
}

func newHookCmd() *cobra.Command {
	var (
		agentID string
		source  string
		status  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Report an agent lifecycle event read from stdin",
		Long: `Reads the hook payload written by the agent runtime on stdin and posts it to
the agentbus hook endpoint. The event is a status event when --status is set
or the payload names a Stop, UserPromptSubmit or PreToolUse hook; otherwise
it is a session-start registration event.

Delivery failures are reported on stderr and never fail the command, so the
agent runtime is not blocked when the bus is down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), runtime.DefaultMaxHookBody))
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "agentbus hook: read stdin: %v\n", err)
				return nil
			}
			ev, err := buildHookEvent(raw, agentID, source, status)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "agentbus hook: %v\n", err)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := postHook(ctx, serverURL, ev); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "agentbus hook: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent-id", os.Getenv("AGENTBUS_AGENT_ID"), "Agent id (defaults to $AGENTBUS_AGENT_ID)")
	cmd.Flags().StringVar(&source, "source", "", "Session source (startup or resume); read from the payload when empty")
	cmd.Flags().StringVar(&status, "status", "", "Activity status (running or idle)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Delivery timeout")

	return cmd
}

// buildHookEvent assembles a hook event from the runtime's JSON payload.
func buildHookEvent(raw []byte, agentID, source, status string) (hooks.Event, error) {
	if strings.TrimSpace(agentID) == "" {
		return hooks.Event{}, fmt.Errorf("no agent id: set --agent-id or AGENTBUS_AGENT_ID")
	}

	ev := hooks.Event{AgentID: agentID, Source: hooks.Source(source), Status: status}
	if len(bytes.TrimSpace(raw)) > 0 {
		if !gjson.ValidBytes(raw) {
			return hooks.Event{}, fmt.Errorf("stdin is not valid JSON")
		}
		if err := json.Unmarshal(raw, &ev.Payload); err != nil {
			return hooks.Event{}, fmt.Errorf("stdin must hold a JSON object: %w", err)
		}
		fields := gjson.GetManyBytes(raw, "session_id", "source", "hook_event_name")
		ev.SessionID = fields[0].String()
		if ev.Source == "" {
			ev.Source = hooks.Source(fields[1].String())
		}
		ev.Event = fields[2].String()
	}
	if ev.Status == "" {
		ev.Status = statusForHook[strings.ToLower(ev.Event)]
	}
	ev.Normalize()
	return ev, nil
}

func postHook(ctx context.Context, base string, ev hooks.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/hooks", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID != "" {
		req.Header.Set(runtime.CorrelationHeader, correlationID)
	} else {
		req.Header.Set(runtime.CorrelationHeader, telemetry.CorrelationID(telemetry.WithCorrelationID(ctx, "")))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post hook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("hook rejected: %s: %s", resp.Status, e.Message)
	}
	return nil
}
