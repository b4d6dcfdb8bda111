package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/szaher/agentbus/internal/agent"
	"github.com/szaher/agentbus/internal/coord"
	"github.com/szaher/agentbus/internal/message"
	"github.com/szaher/agentbus/internal/telemetry"
)

// Tool names.
const (
	RegisterAgent    = "register-agent"
	ListAgents       = "list-agents"
	SendMessage      = "send-message"
	BroadcastMessage = "broadcast-message"
	CheckMessages    = "check-messages"
	CreateAgent      = "create-agent"
	CloseAgent       = "close-agent"
)

func str(name, desc string, required bool) Param {
	return Param{Name: name, Type: "string", Description: desc, Required: required}
}

func boolean(name, desc string) Param {
	return Param{Name: name, Type: "boolean", Description: desc}
}

// Catalog is the fixed set of coordination tools.
var Catalog = []Tool{
	{
		Name:        RegisterAgent,
		Description: "Register this agent with the bus so it can send and receive messages.",
		Params:      []Param{str("agentId", "Your agent id.", true)},
	},
	{
		Name:        ListAgents,
		Description: "List the agents in your workspace.",
		Params: []Param{
			str("callerAgentId", "Your agent id.", true),
			boolean("registeredOnly", "Only list registered agents."),
		},
	},
	{
		Name:        SendMessage,
		Description: "Send a message to another agent in your workspace, by name or id.",
		Params: []Param{
			str("from", "Your agent id.", true),
			str("to", "Recipient name or id.", true),
			str("content", "Message text.", true),
		},
	},
	{
		Name:        BroadcastMessage,
		Description: "Send a message to every other registered agent in your workspace.",
		Params: []Param{
			str("from", "Your agent id.", true),
			str("content", "Message text.", true),
		},
	},
	{
		Name:        CheckMessages,
		Description: "Read and clear your unread messages.",
		Params:      []Param{str("agentId", "Your agent id.", true)},
	},
	{
		Name:        CreateAgent,
		Description: "Create a new agent working in a repository.",
		Params: []Param{
			str("name", "Display name for the new agent.", true),
			str("agentType", "Agent runtime, for example claude or codex.", true),
			str("repoPath", "Repository the agent works in.", true),
			boolean("createWorktree", "Create a git worktree for the agent."),
			str("branchName", "Worktree branch; required with createWorktree.", false),
			str("creatorAgentId", "Your agent id; the new agent joins your workspace.", false),
		},
	},
	{
		Name:        CloseAgent,
		Description: "Close an agent and remove it from its workspace.",
		Params:      []Param{str("agentId", "Id of the agent to close.", true)},
	},
}

// Handler exposes the coordination service as tools.
type Handler struct {
	svc      *coord.Service
	registry *Registry
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records tool calls on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler binds the catalog to svc.
func NewHandler(svc *coord.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, registry: NewRegistry(), logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	executors := map[string]ExecutorFunc{
		RegisterAgent:    h.registerAgent,
		ListAgents:       h.listAgents,
		SendMessage:      h.sendMessage,
		BroadcastMessage: h.broadcastMessage,
		CheckMessages:    h.checkMessages,
		CreateAgent:      h.createAgent,
		CloseAgent:       h.closeAgent,
	}
	for _, t := range Catalog {
		h.registry.Register(t, executors[t.Name])
	}
	return h
}

// Catalog returns the declared tools sorted by name.
func (h *Handler) Catalog() []Tool {
	return h.registry.Definitions()
}

// Lookup returns the named tool.
func (h *Handler) Lookup(name string) (Tool, bool) {
	return h.registry.Lookup(name)
}

// Call runs a tool. Failures are reported in the result.
func (h *Handler) Call(ctx context.Context, name string, args map[string]any) Result {
	start := time.Now()
	res := h.registry.Execute(ctx, name, args)

	status := "ok"
	if res.IsError {
		status = "error"
	}
	if h.metrics != nil {
		if _, known := h.registry.Lookup(name); !known {
			name = "unknown"
		}
		h.metrics.RecordToolCall(name, status, time.Since(start))
	}
	telemetry.RequestLogger(h.logger, ctx, "").Debug("tool call",
		"tool", name,
		"status", status,
		"duration", time.Since(start),
	)
	return res
}

func (h *Handler) registerAgent(ctx context.Context, args Args) (Result, error) {
	sess, err := h.svc.RegisterAgent(ctx, args.String("agentId"))
	if err != nil {
		return Result{}, err
	}
	return okResult("Registered agent %s (session %s). Call check-messages to read pending messages.", sess.AgentID, sess.ID), nil
}

type agentView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Registered  bool   `json:"registered"`
	Status      string `json:"status,omitempty"`
	Folder      string `json:"folder,omitempty"`
	LastMessage string `json:"lastMessage,omitempty"`
}

func (h *Handler) listAgents(ctx context.Context, args Args) (Result, error) {
	registeredOnly, _ := args.Bool("registeredOnly")
	agents, err := h.svc.ListAgents(ctx, args.String("callerAgentId"), coord.ListOptions{RegisteredOnly: registeredOnly})
	if err != nil {
		return Result{}, err
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, agentView{
			ID:          a.ID.String(),
			Name:        a.Name,
			Type:        a.AgentType,
			Registered:  a.Registered,
			Status:      string(a.Status),
			Folder:      a.Folder,
			LastMessage: a.LastMessage,
		})
	}
	return jsonResult(views)
}

func (h *Handler) sendMessage(ctx context.Context, args Args) (Result, error) {
	msg, err := h.svc.SendMessage(ctx, args.String("from"), args.String("to"), args.String("content"))
	if err != nil {
		return Result{}, explain(err)
	}
	h.countMessages("direct", 1)
	return okResult("Message %s sent to %s.", msg.ID, h.displayName(ctx, msg.To)), nil
}

func (h *Handler) broadcastMessage(ctx context.Context, args Args) (Result, error) {
	n, err := h.svc.BroadcastMessage(ctx, args.String("from"), args.String("content"))
	if err != nil {
		return Result{}, explain(err)
	}
	h.countMessages("broadcast", n)
	if n == 1 {
		return okResult("Broadcast delivered to 1 agent."), nil
	}
	return okResult("Broadcast delivered to %d agents.", n), nil
}

type messageView struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) checkMessages(ctx context.Context, args Args) (Result, error) {
	msgs, err := h.svc.CheckMessages(ctx, args.String("agentId"))
	if err != nil {
		return Result{}, err
	}
	if len(msgs) == 0 {
		return okResult("No unread messages."), nil
	}
	return jsonResult(h.messageViews(ctx, msgs))
}

func (h *Handler) messageViews(ctx context.Context, msgs []message.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		v := messageView{ID: m.ID, From: m.From, Content: m.Content, CreatedAt: m.CreatedAt}
		if name := h.displayName(ctx, m.From); name != m.From {
			v.FromName = name
		}
		views = append(views, v)
	}
	return views
}

func (h *Handler) createAgent(ctx context.Context, args Args) (Result, error) {
	worktree, _ := args.Bool("createWorktree")
	req := coord.CreateAgentRequest{
		Name:           args.String("name"),
		AgentType:      args.String("agentType"),
		RepoPath:       args.String("repoPath"),
		CreateWorktree: worktree,
		BranchName:     args.String("branchName"),
		CreatorAgentID: args.String("creatorAgentId"),
	}
	id, err := h.svc.CreateAgent(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return okResult("Created agent %s (%s).", req.Name, id), nil
}

func (h *Handler) closeAgent(ctx context.Context, args Args) (Result, error) {
	id := args.String("agentId")
	if err := h.svc.CloseAgent(ctx, id); err != nil {
		return Result{}, err
	}
	return okResult("Closed agent %s.", id), nil
}

func (h *Handler) countMessages(kind string, n int) {
	if h.metrics != nil {
		h.metrics.RecordMessages(kind, n)
	}
}

// displayName returns the agent's name for an agent id, or id unchanged.
func (h *Handler) displayName(ctx context.Context, id string) string {
	parsed, err := agent.ParseID(id)
	if err != nil {
		return id
	}
	a, err := h.svc.Directory().Agent(ctx, parsed)
	if err != nil || a.Name == "" {
		return id
	}
	return a.Name
}

func explain(err error) error {
	switch {
	case errors.Is(err, coord.ErrNotRegistered):
		return fmt.Errorf("%w; call register-agent first", err)
	case errors.Is(err, coord.ErrOutOfScope):
		return fmt.Errorf("%w; use list-agents to see who you can reach", err)
	}
	return err
}

func jsonResult(v any) (Result, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode result: %w", err)
	}
	return Result{Text: string(b)}, nil
}
