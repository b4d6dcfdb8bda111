// Package agent defines the agent and workspace model shared by the
// coordination core, and the Directory interface through which the core reads
// and writes agent state owned by the host.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned when an agent identifier is not a valid UUID.
	ErrInvalidID = errors.New("invalid agent id")

	// ErrNotFound is returned when no agent exists for an identifier.
	ErrNotFound = errors.New("agent not found")
)

// Status is the activity state of an agent process.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

// MetadataKey is one of the bounded set of keys kept in Agent.Metadata.
type MetadataKey string

const (
	MetaCWD            MetadataKey = "cwd"
	MetaModel          MetadataKey = "model"
	MetaTranscriptPath MetadataKey = "transcript_path"
	MetaSessionID      MetadataKey = "session_id"
)

// MetadataKeys lists every key an agent's metadata map may hold.
var MetadataKeys = []MetadataKey{MetaCWD, MetaModel, MetaTranscriptPath, MetaSessionID}

// Agent is a single agent process known to the host.
type Agent struct {
	ID          uuid.UUID              `json:"id"`
	Name        string                 `json:"name"`
	WorkspaceID string                 `json:"workspace_id"`
	AgentType   string                 `json:"agent_type"`
	Folder      string                 `json:"folder,omitempty"`
	Avatar      string                 `json:"avatar,omitempty"`
	Registered  bool                   `json:"registered"`
	SessionID   string                 `json:"session_id,omitempty"`
	Status      Status                 `json:"status"`
	Metadata    map[MetadataKey]string `json:"metadata,omitempty"`

	// ResumeSessionID and ForkSession are set by the host before the agent
	// process starts; together they select the ResumeMode.
	ResumeSessionID string `json:"resume_session_id,omitempty"`
	ForkSession     bool   `json:"fork_session,omitempty"`

	// CreatorID is the agent that spawned this one, or uuid.Nil.
	CreatorID uuid.UUID `json:"creator_id,omitempty"`

	Branch      string `json:"branch,omitempty"`
	TmuxTarget  string `json:"tmux_target,omitempty"`
	LastMessage string `json:"last_message,omitempty"`
}

// Clone returns a deep copy of a.
func (a *Agent) Clone() *Agent {
	c := *a
	if a.Metadata != nil {
		c.Metadata = make(map[MetadataKey]string, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ResumeMode reports how the host asked this agent to start.
func (a *Agent) ResumeMode() ResumeMode {
	switch {
	case a.ResumeSessionID == "":
		return ModeScratch
	case a.ForkSession:
		return ModeFork
	default:
		return ModeResume
	}
}

// ResumeMode is the host-assigned restart mode of an agent.
type ResumeMode int

const (
	// ModeScratch starts a new conversation.
	ModeScratch ResumeMode = iota
	// ModeResume continues ResumeSessionID.
	ModeResume
	// ModeFork branches a new lineage from ResumeSessionID.
	ModeFork
)

func (m ResumeMode) String() string {
	switch m {
	case ModeScratch:
		return "scratch"
	case ModeResume:
		return "resume"
	case ModeFork:
		return "fork"
	default:
		return fmt.Sprintf("ResumeMode(%d)", int(m))
	}
}

// Workspace partitions agents; messages never cross workspace boundaries.
type Workspace struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Agents []uuid.UUID `json:"agents"`
}

// NewAgent describes an agent the host should create.
type NewAgent struct {
	Folder    string
	Name      string
	Avatar    string
	AgentType string
	Branch    string
	CreatorID uuid.UUID
}

// ParseID parses an agent identifier, returning ErrInvalidID on failure.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// Directory is the host-owned registry of agents and workspaces.
//
// Implementations must be safe for concurrent use. UpdateAgent applies fn to
// the stored agent atomically with respect to other Directory calls.
type Directory interface {
	Agents(ctx context.Context) ([]*Agent, error)
	AgentsInSameWorkspace(ctx context.Context, id uuid.UUID) ([]*Agent, error)
	Agent(ctx context.Context, id uuid.UUID) (*Agent, error)
	SetRegistered(ctx context.Context, id uuid.UUID, registered bool) error
	InjectText(ctx context.Context, text string, id uuid.UUID) error
	AddAgent(ctx context.Context, spec NewAgent) (uuid.UUID, error)
	RemoveAgent(ctx context.Context, id uuid.UUID) error
	UpdateAgent(ctx context.Context, id uuid.UUID, fn func(*Agent)) (*Agent, error)

	// Restart prepares an agent for a new process: registration and bound
	// session are cleared and the resume configuration is replaced.
	Restart(ctx context.Context, id uuid.UUID, resumeSessionID string, fork bool) error
}
