package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/events"
	"github.com/szaher/agentbus/internal/hooks"
)

// OnSessionStart prompts a freshly started agent to register if it has not
// yet done so. It reports whether a prompt was injected.
func (s *Service) OnSessionStart(ctx context.Context, id uuid.UUID) (bool, error) {
	a, err := s.dir.Agent(ctx, id)
	if err != nil {
		return false, wrap("session start", err)
	}
	if a.Registered {
		return false, nil
	}
	if err := s.dir.InjectText(ctx, hooks.RegistrationPrompt, id); err != nil {
		return false, wrap("session start", err)
	}
	return true, nil
}

// reservePrompt reports whether a registration event should prompt its
// agent, and if so records the prompt. An agent is prompted once per process
// start: events the decision table ignores never prompt, and a repeated event
// for the session already prompted for does not prompt again.
func (s *Service) reservePrompt(res hooks.RegisterResult) bool {
	if res.Agent == nil || res.Agent.Registered || res.Action == hooks.ActionIgnore {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.prompted[res.Agent.ID]; ok && !res.Bound && prev == res.Agent.SessionID {
		return false
	}
	s.prompted[res.Agent.ID] = res.Agent.SessionID
	return true
}

// releasePrompt forgets a reservation whose prompt was not delivered.
func (s *Service) releasePrompt(id uuid.UUID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.prompted[id]; ok && prev == sessionID {
		delete(s.prompted, id)
	}
}

// OnAgentIdle tells an idle agent about unread messages. An agent is told
// about a given newest message at most once.
func (s *Service) OnAgentIdle(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	latest, ok := s.messages.LatestUnreadID(id.String())
	prev, had := s.notified[id]
	if !ok || (had && prev == latest) {
		s.mu.Unlock()
		return false, nil
	}
	s.notified[id] = latest
	n := len(s.messages.Unread(id.String()))
	s.mu.Unlock()

	if err := s.dir.InjectText(ctx, unreadNotice(n), id); err != nil {
		s.mu.Lock()
		if s.notified[id] == latest {
			if had {
				s.notified[id] = prev
			} else {
				delete(s.notified, id)
			}
		}
		s.mu.Unlock()
		return false, wrap("agent idle", err)
	}
	return true, nil
}

func unreadNotice(n int) string {
	if n == 1 {
		return "You have 1 unread message. Call check-messages with your agent id to read it."
	}
	return fmt.Sprintf("You have %d unread messages. Call check-messages with your agent id to read them.", n)
}

// SweepResult summarizes one housekeeping pass.
type SweepResult struct {
	MessagesRemoved int
	SessionsRemoved int
}

// SweepMessages drops the oldest read messages beyond the store threshold.
func (s *Service) SweepMessages() int {
	return s.messages.Cleanup()
}

// SweepSessions removes coordination sessions idle for longer than
// olderThan. Agent registration is left untouched.
func (s *Service) SweepSessions(ctx context.Context, olderThan time.Duration) int {
	removed := s.sessions.CleanupStaleSessions(olderThan)
	if len(removed) > 0 {
		ids := make([]string, 0, len(removed))
		for _, sess := range removed {
			ids = append(ids, sess.ID)
		}
		s.emit(ctx, events.SessionsSwept, "sessions", ids)
		s.logger.Info("stale sessions removed", "count", len(removed))
	}
	return len(removed)
}

// Sweep runs both housekeeping passes.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration) SweepResult {
	return SweepResult{
		MessagesRemoved: s.SweepMessages(),
		SessionsRemoved: s.SweepSessions(ctx, olderThan),
	}
}
