package coord

import (
	"context"

	"github.com/szaher/agentbus/internal/agent"
	"github.com/szaher/agentbus/internal/events"
	"github.com/szaher/agentbus/internal/hooks"
)

// HookKind classifies a hook event.
type HookKind string

const (
	HookRegister HookKind = "register"
	HookStatus   HookKind = "status"
)

// HookOutcome summarizes what a hook event changed.
type HookOutcome struct {
	Kind     HookKind
	Register hooks.RegisterResult
	Status   hooks.StatusResult
	// Injected is true when text was typed into the agent's terminal.
	Injected bool
}

// HandleHook applies one lifecycle event. Registration events bind the
// session id and prompt an unregistered agent to register, once per process
// start; idle events notify the agent of unread messages. Injection failures
// are logged and do not fail the event.
func (s *Service) HandleHook(ctx context.Context, ev hooks.Event) (HookOutcome, error) {
	ev.Normalize()
	if ev.AgentID == "" {
		return HookOutcome{}, missing("agent_id")
	}
	if _, err := parseField("agent_id", ev.AgentID); err != nil {
		return HookOutcome{}, err
	}

	if ev.IsStatus() {
		res, err := s.resolver.HandleActivityStatus(ctx, ev)
		if err != nil {
			return HookOutcome{}, err
		}
		out := HookOutcome{Kind: HookStatus, Status: res}
		if !res.Applied {
			return out, nil
		}
		s.emit(ctx, events.AgentStatus, "agent_id", res.Agent.ID.String(), "status", string(res.Status))
		if res.Status == agent.StatusIdle {
			injected, err := s.OnAgentIdle(ctx, res.Agent.ID)
			if err != nil {
				s.logger.Warn("idle notification failed", "agent_id", res.Agent.ID.String(), "error", err)
			}
			out.Injected = injected
		}
		return out, nil
	}

	res, err := s.resolver.HandleRegister(ctx, ev)
	if err != nil {
		return HookOutcome{}, err
	}
	out := HookOutcome{Kind: HookRegister, Register: res}
	if res.Bound {
		s.emit(ctx, events.SessionBound,
			"agent_id", res.Agent.ID.String(),
			"session_id", res.Agent.SessionID,
			"action", res.Action.String(),
		)
	}
	if !s.reservePrompt(res) {
		return out, nil
	}
	injected, err := s.OnSessionStart(ctx, res.Agent.ID)
	if err != nil {
		s.releasePrompt(res.Agent.ID, res.Agent.SessionID)
		s.logger.Warn("registration prompt failed", "agent_id", res.Agent.ID.String(), "error", err)
	}
	out.Injected = injected
	return out, nil
}
