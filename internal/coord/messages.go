package coord

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/agent"
	"github.com/szaher/agentbus/internal/events"
	"github.com/szaher/agentbus/internal/message"
)

// DefaultHostLabel is the sender recorded for host-originated messages.
const DefaultHostLabel = "user"

// sender resolves and checks the sending agent. from must be an agent id;
// names are not unique across workspaces.
func (s *Service) sender(ctx context.Context, from string) (*agent.Agent, error) {
	id, err := parseField("from", from)
	if err != nil {
		return nil, err
	}
	a, err := s.dir.Agent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Registered {
		return nil, ErrNotRegistered
	}
	return a, nil
}

// SendMessage delivers content from a registered agent to a recipient in the
// same workspace. The recipient may be named by identifier or by name.
func (s *Service) SendMessage(ctx context.Context, from, to, content string) (message.Message, error) {
	if strings.TrimSpace(to) == "" {
		return message.Message{}, missing("to")
	}
	if strings.TrimSpace(content) == "" {
		return message.Message{}, missing("content")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sender(ctx, from)
	if err != nil {
		return message.Message{}, wrap("send message", err)
	}
	peers, err := s.dir.AgentsInSameWorkspace(ctx, src.ID)
	if err != nil {
		return message.Message{}, wrap("send message", err)
	}
	dst := matchAgent(peers, to)
	if dst == nil {
		if _, ok := s.FindAgent(ctx, to); ok {
			return message.Message{}, wrap("send message", fmt.Errorf("%w: %q", ErrOutOfScope, to))
		}
		return message.Message{}, wrap("send message", fmt.Errorf("recipient %q: %w", to, agent.ErrNotFound))
	}

	msg := s.messages.Add(message.Message{
		From:    src.ID.String(),
		To:      dst.ID.String(),
		Content: content,
	})
	s.touch(src.ID)
	s.emit(ctx, events.MessageSent,
		"message_id", msg.ID,
		"from", msg.From,
		"to", msg.To,
	)
	return msg, nil
}

// BroadcastMessage sends content to every other registered agent in the
// sender's workspace and returns the number of messages created. An
// unregistered sender delivers nothing.
func (s *Service) BroadcastMessage(ctx context.Context, from, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, missing("content")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.sender(ctx, from)
	if err != nil {
		return 0, wrap("broadcast message", err)
	}
	peers, err := s.dir.AgentsInSameWorkspace(ctx, src.ID)
	if err != nil {
		return 0, wrap("broadcast message", err)
	}

	n := 0
	for _, peer := range peers {
		if peer.ID == src.ID || !peer.Registered {
			continue
		}
		s.messages.Add(message.Message{
			From:    src.ID.String(),
			To:      peer.ID.String(),
			Content: content,
		})
		n++
	}
	s.touch(src.ID)
	s.emit(ctx, events.MessageBroadcast, "from", src.ID.String(), "recipients", n)
	return n, nil
}

// CheckMessages returns the agent's unread messages in arrival order and
// marks them read.
func (s *Service) CheckMessages(ctx context.Context, agentID string) ([]message.Message, error) {
	id, err := parseField("agentId", agentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.Agent(ctx, id); err != nil {
		return nil, wrap("check messages", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages.TakeUnread(id.String())
	delete(s.notified, id)
	s.touch(id)
	if len(msgs) > 0 {
		s.emit(ctx, events.MessagesRead, "agent_id", id.String(), "count", len(msgs))
	}
	return msgs, nil
}

// SendFromHost delivers a message from outside the agent population, such
// as the human operator. No registration or workspace check applies.
func (s *Service) SendFromHost(ctx context.Context, label, to, content string) (message.Message, error) {
	if strings.TrimSpace(to) == "" {
		return message.Message{}, missing("to")
	}
	if strings.TrimSpace(content) == "" {
		return message.Message{}, missing("content")
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultHostLabel
	}

	dst, ok := s.FindAgent(ctx, to)
	if !ok {
		return message.Message{}, wrap("send from host", fmt.Errorf("recipient %q: %w", to, agent.ErrNotFound))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.messages.Add(message.Message{From: label, To: dst.ID.String(), Content: content})
	s.emit(ctx, events.MessageSent,
		"message_id", msg.ID,
		"from", msg.From,
		"to", msg.To,
	)
	return msg, nil
}

// UnreadFor reports how many unread messages are addressed to id.
func (s *Service) UnreadFor(id uuid.UUID) int {
	return len(s.messages.Unread(id.String()))
}
