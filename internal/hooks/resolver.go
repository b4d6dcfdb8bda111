package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/szaher/agentbus/internal/agent"
)

// Action is what a registration event does to an agent's bound session id.
type Action int

const (
	// ActionIgnore leaves the bound session id unchanged.
	ActionIgnore Action = iota
	// ActionBindIfUnbound binds the event's session id only when none is bound.
	ActionBindIfUnbound
	// ActionBindEvent binds the event's session id.
	ActionBindEvent
	// ActionBindResume binds the agent's desired-resume session id.
	ActionBindResume
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionBindIfUnbound:
		return "bind-if-unbound"
	case ActionBindEvent:
		return "bind-event"
	case ActionBindResume:
		return "bind-resume"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// decisionTable is keyed by (resume mode, event source). Every cell is
// idempotent and no cell undoes another cell of the same row, so the bound id
// does not depend on the order startup and resume events arrive in.
var decisionTable = map[agent.ResumeMode]map[Source]Action{
	agent.ModeScratch: {
		SourceStartup: ActionBindIfUnbound,
		SourceResume:  ActionIgnore,
	},
	agent.ModeResume: {
		SourceStartup: ActionIgnore,
		SourceResume:  ActionBindResume,
	},
	agent.ModeFork: {
		SourceStartup: ActionBindEvent,
		SourceResume:  ActionIgnore,
	},
}

// Decide looks up the action for a registration event.
func Decide(mode agent.ResumeMode, source Source) Action {
	return decisionTable[mode][NormalizeSource(string(source))]
}

// apply performs action on a and reports whether the bound id changed.
func apply(a *agent.Agent, action Action, eventSessionID string) bool {
	var next string
	switch action {
	case ActionBindIfUnbound:
		if a.SessionID != "" {
			return false
		}
		next = eventSessionID
	case ActionBindEvent:
		next = eventSessionID
	case ActionBindResume:
		next = a.ResumeSessionID
	default:
		return false
	}
	if next == "" || next == a.SessionID {
		return false
	}
	a.SessionID = next
	return true
}

// RegisterResult describes the outcome of a registration event.
type RegisterResult struct {
	Agent  *agent.Agent
	Mode   agent.ResumeMode
	Action Action
	// Bound is true when the agent's session id changed.
	Bound bool
}

// StatusResult describes the outcome of an activity-status event.
type StatusResult struct {
	Agent   *agent.Agent
	Status  agent.Status
	Applied bool
	// LastMessage is the latest assistant reply, set on idle events when the
	// transcript yields one.
	LastMessage    string
	HasLastMessage bool
}

// Resolver applies hook events to agents held by a Directory.
type Resolver struct {
	dir        agent.Directory
	transcript TranscriptReader
	logger     *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTranscriptReader sets the transcript limits.
func WithTranscriptReader(t TranscriptReader) ResolverOption {
	return func(r *Resolver) { r.transcript = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver over dir.
func NewResolver(dir agent.Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleRegister binds the agent's session id according to the decision table
// and records payload metadata. The read, decision and write happen in one
// Directory.UpdateAgent call.
func (r *Resolver) HandleRegister(ctx context.Context, ev Event) (RegisterResult, error) {
	ev.Normalize()
	id, err := agent.ParseID(ev.AgentID)
	if err != nil {
		return RegisterResult{}, err
	}
	meta := ExtractMetadata(ev.Payload)

	var res RegisterResult
	updated, err := r.dir.UpdateAgent(ctx, id, func(a *agent.Agent) {
		res.Mode = a.ResumeMode()
		res.Action = Decide(res.Mode, ev.Source)
		res.Bound = apply(a, res.Action, ev.SessionID)
		mergeMetadata(a, meta)
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register hook: %w", err)
	}
	res.Agent = updated

	r.logger.Debug("register hook",
		"agent", id,
		"source", ev.Source,
		"mode", res.Mode.String(),
		"action", res.Action.String(),
		"bound", res.Bound,
		"session_id", updated.SessionID,
	)
	return res, nil
}

// ParseStatus maps a declared status onto the activity enum. Only "running"
// and "idle" are accepted from hooks.
func ParseStatus(s string) (agent.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(agent.StatusRunning):
		return agent.StatusRunning, true
	case string(agent.StatusIdle):
		return agent.StatusIdle, true
	default:
		return "", false
	}
}

// HandleActivityStatus records a status change. Unrecognized statuses leave
// the agent untouched. On idle, the latest assistant reply is read from the
// transcript named in the payload or, failing that, in the agent's metadata.
func (r *Resolver) HandleActivityStatus(ctx context.Context, ev Event) (StatusResult, error) {
	ev.Normalize()
	id, err := agent.ParseID(ev.AgentID)
	if err != nil {
		return StatusResult{}, err
	}

	status, ok := ParseStatus(ev.Status)
	if !ok {
		r.logger.Debug("ignoring unknown status", "agent", id, "status", ev.Status)
		return StatusResult{}, nil
	}

	meta := ExtractMetadata(ev.Payload)
	res := StatusResult{Status: status, Applied: true}

	if status == agent.StatusIdle {
		path := meta[agent.MetaTranscriptPath]
		if path == "" {
			current, err := r.dir.Agent(ctx, id)
			if err != nil {
				return StatusResult{}, fmt.Errorf("status hook: %w", err)
			}
			path = current.Metadata[agent.MetaTranscriptPath]
		}
		res.LastMessage, res.HasLastMessage = r.transcript.LastAssistantMessage(ctx, path)
	}

	updated, err := r.dir.UpdateAgent(ctx, id, func(a *agent.Agent) {
		a.Status = status
		mergeMetadata(a, meta)
		if res.HasLastMessage {
			a.LastMessage = res.LastMessage
		}
	})
	if err != nil {
		return StatusResult{}, fmt.Errorf("status hook: %w", err)
	}
	res.Agent = updated
	return res, nil
}
