// Package directory provides an in-memory agent.Directory populated from the
// workspace section of the agentbus configuration.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/agent"
)

// AgentSpec declares a configured agent.
type AgentSpec struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Type       string `yaml:"type" json:"type"`
	Folder     string `yaml:"folder,omitempty" json:"folder,omitempty"`
	Avatar     string `yaml:"avatar,omitempty" json:"avatar,omitempty"`
	TmuxTarget string `yaml:"tmux_target,omitempty" json:"tmux_target,omitempty"`
}

// WorkspaceSpec declares a configured workspace and its members.
type WorkspaceSpec struct {
	ID     string      `yaml:"id" json:"id"`
	Name   string      `yaml:"name" json:"name"`
	Agents []AgentSpec `yaml:"agents" json:"agents"`
}

// DefaultWorkspaceID is used for agents created when no workspace exists.
const DefaultWorkspaceID = "default"

// Memory is an in-memory agent.Directory.
type Memory struct {
	mu         sync.Mutex
	agents     map[uuid.UUID]*agent.Agent
	workspaces []*agent.Workspace
	// dynamic holds agents created at runtime; they survive Reload.
	dynamic  map[uuid.UUID]bool
	injector Injector
	logger   *slog.Logger
}

var _ agent.Directory = (*Memory)(nil)

// Option configures a Memory directory.
type Option func(*Memory)

// WithInjector sets how text reaches agent terminals.
func WithInjector(inj Injector) Option {
	return func(m *Memory) { m.injector = inj }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) { m.logger = logger }
}

// NewMemory creates an empty directory.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		agents:  make(map[uuid.UUID]*agent.Agent),
		dynamic: make(map[uuid.UUID]bool),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.injector == nil {
		m.injector = NewLogInjector(m.logger)
	}
	return m
}

// Reload replaces the configured workspaces. Agents that remain configured
// keep their runtime state (registration, session, status, metadata); agents
// no longer configured are dropped unless they were created at runtime.
func (m *Memory) Reload(specs []WorkspaceSpec) error {
	workspaces, configured, err := buildWorkspaces(specs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	agents := make(map[uuid.UUID]*agent.Agent, len(configured)+len(m.dynamic))
	for id, fresh := range configured {
		if old, ok := m.agents[id]; ok {
			old.Name = fresh.Name
			old.AgentType = fresh.AgentType
			old.Folder = fresh.Folder
			old.Avatar = fresh.Avatar
			old.TmuxTarget = fresh.TmuxTarget
			old.WorkspaceID = fresh.WorkspaceID
			agents[id] = old
			continue
		}
		agents[id] = fresh
	}

	for id := range m.dynamic {
		a, ok := m.agents[id]
		if !ok {
			continue
		}
		if _, clash := configured[id]; clash {
			delete(m.dynamic, id)
			continue
		}
		ws := findWorkspace(workspaces, a.WorkspaceID)
		if ws == nil {
			ws = ensureDefault(&workspaces)
			a.WorkspaceID = ws.ID
		}
		ws.Agents = append(ws.Agents, id)
		agents[id] = a
	}

	m.agents = agents
	m.workspaces = workspaces
	m.logger.Info("directory loaded", "workspaces", len(workspaces), "agents", len(agents))
	return nil
}

func buildWorkspaces(specs []WorkspaceSpec) ([]*agent.Workspace, map[uuid.UUID]*agent.Agent, error) {
	agents := make(map[uuid.UUID]*agent.Agent)
	seenWS := make(map[string]bool)
	var workspaces []*agent.Workspace

	for _, ws := range specs {
		if strings.TrimSpace(ws.ID) == "" {
			return nil, nil, fmt.Errorf("workspace %q: id is required", ws.Name)
		}
		if seenWS[ws.ID] {
			return nil, nil, fmt.Errorf("workspace %q declared twice", ws.ID)
		}
		seenWS[ws.ID] = true

		w := &agent.Workspace{ID: ws.ID, Name: ws.Name}
		for _, as := range ws.Agents {
			id, err := agent.ParseID(as.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("workspace %q agent %q: %w", ws.ID, as.Name, err)
			}
			if _, dup := agents[id]; dup {
				return nil, nil, fmt.Errorf("agent %s belongs to more than one workspace", id)
			}
			agents[id] = &agent.Agent{
				ID:          id,
				Name:        as.Name,
				WorkspaceID: ws.ID,
				AgentType:   as.Type,
				Folder:      as.Folder,
				Avatar:      as.Avatar,
				TmuxTarget:  as.TmuxTarget,
				Status:      agent.StatusIdle,
			}
			w.Agents = append(w.Agents, id)
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, agents, nil
}

func findWorkspace(workspaces []*agent.Workspace, id string) *agent.Workspace {
	for _, ws := range workspaces {
		if ws.ID == id {
			return ws
		}
	}
	return nil
}

func ensureDefault(workspaces *[]*agent.Workspace) *agent.Workspace {
	if ws := findWorkspace(*workspaces, DefaultWorkspaceID); ws != nil {
		return ws
	}
	ws := &agent.Workspace{ID: DefaultWorkspaceID, Name: DefaultWorkspaceID}
	*workspaces = append(*workspaces, ws)
	return ws
}

// Workspaces returns a snapshot of every workspace.
func (m *Memory) Workspaces() []agent.Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]agent.Workspace, len(m.workspaces))
	for i, ws := range m.workspaces {
		out[i] = agent.Workspace{ID: ws.ID, Name: ws.Name, Agents: append([]uuid.UUID(nil), ws.Agents...)}
	}
	return out
}

// Agents returns every agent in workspace order.
func (m *Memory) Agents(_ context.Context) ([]*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*agent.Agent
	for _, ws := range m.workspaces {
		for _, id := range ws.Agents {
			out = append(out, m.agents[id].Clone())
		}
	}
	return out, nil
}

// AgentsInSameWorkspace returns the members of id's workspace, id included.
func (m *Memory) AgentsInSameWorkspace(_ context.Context, id uuid.UUID) ([]*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrNotFound, id)
	}
	ws := findWorkspace(m.workspaces, a.WorkspaceID)
	if ws == nil {
		return []*agent.Agent{a.Clone()}, nil
	}
	out := make([]*agent.Agent, 0, len(ws.Agents))
	for _, member := range ws.Agents {
		out = append(out, m.agents[member].Clone())
	}
	return out, nil
}

// Agent returns a copy of one agent.
func (m *Memory) Agent(_ context.Context, id uuid.UUID) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrNotFound, id)
	}
	return a.Clone(), nil
}

// SetRegistered sets an agent's registration flag.
func (m *Memory) SetRegistered(ctx context.Context, id uuid.UUID, registered bool) error {
	_, err := m.UpdateAgent(ctx, id, func(a *agent.Agent) { a.Registered = registered })
	return err
}

// UpdateAgent applies fn to the stored agent under the directory lock and
// returns a copy of the result.
func (m *Memory) UpdateAgent(_ context.Context, id uuid.UUID, fn func(*agent.Agent)) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrNotFound, id)
	}
	fn(a)
	return a.Clone(), nil
}

// Restart clears registration and the bound session and installs a new
// resume configuration.
func (m *Memory) Restart(ctx context.Context, id uuid.UUID, resumeSessionID string, fork bool) error {
	_, err := m.UpdateAgent(ctx, id, func(a *agent.Agent) {
		a.Registered = false
		a.SessionID = ""
		a.Status = agent.StatusIdle
		a.ResumeSessionID = resumeSessionID
		a.ForkSession = fork && resumeSessionID != ""
		a.LastMessage = ""
	})
	return err
}

// InjectText types text into the agent's terminal.
func (m *Memory) InjectText(ctx context.Context, text string, id uuid.UUID) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	var target string
	if ok {
		target = a.TmuxTarget
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", agent.ErrNotFound, id)
	}
	if target == "" {
		return fmt.Errorf("agent %s has no terminal target", id)
	}
	return m.injector.Inject(ctx, target, text)
}

// AddAgent creates an agent in the creator's workspace, or in the first
// workspace when no creator is given.
func (m *Memory) AddAgent(_ context.Context, spec agent.NewAgent) (uuid.UUID, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return uuid.Nil, fmt.Errorf("agent name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ws *agent.Workspace
	if spec.CreatorID != uuid.Nil {
		creator, ok := m.agents[spec.CreatorID]
		if !ok {
			return uuid.Nil, fmt.Errorf("creator: %w: %s", agent.ErrNotFound, spec.CreatorID)
		}
		ws = findWorkspace(m.workspaces, creator.WorkspaceID)
	}
	if ws == nil && len(m.workspaces) > 0 {
		ws = m.workspaces[0]
	}
	if ws == nil {
		ws = ensureDefault(&m.workspaces)
	}

	id := uuid.New()
	m.agents[id] = &agent.Agent{
		ID:          id,
		Name:        spec.Name,
		WorkspaceID: ws.ID,
		AgentType:   spec.AgentType,
		Folder:      spec.Folder,
		Avatar:      spec.Avatar,
		Branch:      spec.Branch,
		CreatorID:   spec.CreatorID,
		Status:      agent.StatusIdle,
	}
	ws.Agents = append(ws.Agents, id)
	m.dynamic[id] = true
	return id, nil
}

// RemoveAgent deletes an agent and its workspace membership.
func (m *Memory) RemoveAgent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", agent.ErrNotFound, id)
	}
	if ws := findWorkspace(m.workspaces, a.WorkspaceID); ws != nil {
		members := ws.Agents[:0]
		for _, member := range ws.Agents {
			if member != id {
				members = append(members, member)
			}
		}
		ws.Agents = members
	}
	delete(m.agents, id)
	delete(m.dynamic, id)
	return nil
}
