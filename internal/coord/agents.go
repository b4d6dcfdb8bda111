package coord

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/agent"
	"github.com/szaher/agentbus/internal/events"
	"github.com/szaher/agentbus/internal/session"
)

// ListOptions filters ListAgents.
type ListOptions struct {
	// RegisteredOnly drops agents that have not registered.
	RegisteredOnly bool
}

// ListAgents returns the agents sharing the caller's workspace, the caller
// included. A malformed or unknown caller yields an empty list.
func (s *Service) ListAgents(ctx context.Context, callerID string, opts ListOptions) ([]*agent.Agent, error) {
	id, err := agent.ParseID(callerID)
	if err != nil {
		return []*agent.Agent{}, nil
	}
	peers, err := s.dir.AgentsInSameWorkspace(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return []*agent.Agent{}, nil
		}
		return nil, wrap("list agents", err)
	}
	s.touch(id)
	if !opts.RegisteredOnly {
		return peers, nil
	}
	out := make([]*agent.Agent, 0, len(peers))
	for _, a := range peers {
		if a.Registered {
			out = append(out, a)
		}
	}
	return out, nil
}

// RegisterAgent marks the agent registered and opens a coordination session
// for it, replacing any previous one.
func (s *Service) RegisterAgent(ctx context.Context, agentID string) (session.Session, error) {
	id, err := parseField("agentId", agentID)
	if err != nil {
		return session.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dir.SetRegistered(ctx, id, true); err != nil {
		return session.Session{}, wrap("register agent", err)
	}
	sess := s.sessions.CreateSession(id)
	delete(s.prompted, id)
	s.emit(ctx, events.AgentRegistered, "agent_id", id.String(), "session_id", sess.ID)
	return sess, nil
}

// UnregisterAgent clears the agent's registration and drops its session.
func (s *Service) UnregisterAgent(ctx context.Context, agentID string) error {
	id, err := parseField("agentId", agentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dir.SetRegistered(ctx, id, false); err != nil {
		return wrap("unregister agent", err)
	}
	s.sessions.RemoveSessionForAgent(id)
	delete(s.notified, id)
	delete(s.prompted, id)
	s.emit(ctx, events.AgentUnregistered, "agent_id", id.String())
	return nil
}

// CreateAgentRequest describes a new agent.
type CreateAgentRequest struct {
	Name           string
	AgentType      string
	RepoPath       string
	CreateWorktree bool
	BranchName     string
	CreatorAgentID string
}

func (r CreateAgentRequest) validate() (uuid.UUID, error) {
	if strings.TrimSpace(r.Name) == "" {
		return uuid.Nil, missing("name")
	}
	if strings.TrimSpace(r.AgentType) == "" {
		return uuid.Nil, missing("agentType")
	}
	if strings.TrimSpace(r.RepoPath) == "" {
		return uuid.Nil, missing("repoPath")
	}
	if r.CreateWorktree && strings.TrimSpace(r.BranchName) == "" {
		return uuid.Nil, &ValidationError{Field: "branchName", Reason: "branchName is required when createWorktree is set"}
	}
	if strings.TrimSpace(r.CreatorAgentID) == "" {
		return uuid.Nil, nil
	}
	return parseField("creatorAgentId", r.CreatorAgentID)
}

// CreateAgent adds a new agent to the directory. The agent joins its
// creator's workspace when a creator is given.
func (s *Service) CreateAgent(ctx context.Context, req CreateAgentRequest) (uuid.UUID, error) {
	creator, err := req.validate()
	if err != nil {
		return uuid.Nil, err
	}
	spec := agent.NewAgent{
		Folder:    strings.TrimSpace(req.RepoPath),
		Name:      strings.TrimSpace(req.Name),
		AgentType: strings.TrimSpace(req.AgentType),
		CreatorID: creator,
	}
	if req.CreateWorktree {
		spec.Branch = strings.TrimSpace(req.BranchName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.dir.AddAgent(ctx, spec)
	if err != nil {
		return uuid.Nil, wrap("create agent", err)
	}
	s.emit(ctx, events.AgentCreated,
		"agent_id", id.String(),
		"name", spec.Name,
		"agent_type", spec.AgentType,
	)
	s.logger.Info("agent created", "agent_id", id.String(), "name", spec.Name, "folder", spec.Folder)
	return id, nil
}

// CloseAgent removes an agent from the directory. Its session is dropped
// and any unread messages addressed to it become eligible for cleanup.
func (s *Service) CloseAgent(ctx context.Context, agentID string) error {
	id, err := parseField("agentId", agentID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dir.RemoveAgent(ctx, id); err != nil {
		return wrap("close agent", err)
	}
	s.sessions.RemoveSessionForAgent(id)
	s.messages.MarkAsRead(id.String())
	delete(s.notified, id)
	delete(s.prompted, id)
	s.emit(ctx, events.AgentClosed, "agent_id", id.String())
	return nil
}
