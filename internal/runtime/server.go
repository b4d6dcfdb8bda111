package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/szaher/agentbus/internal/agent"
	"github.com/szaher/agentbus/internal/coord"
	"github.com/szaher/agentbus/internal/hooks"
	"github.com/szaher/agentbus/internal/telemetry"
	"github.com/szaher/agentbus/internal/tools"
)

// CorrelationHeader carries the request correlation ID.
const CorrelationHeader = "X-Correlation-ID"

// Server is the agentbus HTTP server.
type Server struct {
	svc         *coord.Service
	tools       *tools.Handler
	mcp         http.Handler
	metrics     *telemetry.Metrics
	mux         *http.ServeMux
	server      *http.Server
	logger      *slog.Logger
	startTime   time.Time
	version     string
	maxHookBody int64
	hookLimiter *RateLimiter
	workspaces  func() []agent.Workspace
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics served on /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithMCPHandler mounts an MCP transport on /mcp.
func WithMCPHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.mcp = h }
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithMaxHookBody caps the size of hook request bodies.
func WithMaxHookBody(n int64) ServerOption {
	return func(s *Server) { s.maxHookBody = n }
}

// WithHookRateLimit limits hook events per agent.
func WithHookRateLimit(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.hookLimiter = rl }
}

// WithWorkspaces serves the workspace layout on /v1/workspaces.
func WithWorkspaces(fn func() []agent.Workspace) ServerOption {
	return func(s *Server) { s.workspaces = fn }
}

// NewServer creates the HTTP server over a coordination service and its
// tool handler.
func NewServer(svc *coord.Service, handler *tools.Handler, opts ...ServerOption) *Server {
	s := &Server{
		svc:         svc,
		tools:       handler,
		logger:      slog.Default(),
		startTime:   time.Now(),
		version:     "dev",
		maxHookBody: DefaultMaxHookBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	mux.HandleFunc("POST /v1/agents/{id}/messages", s.handleHostMessage)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	if s.workspaces != nil {
		mux.HandleFunc("GET /v1/workspaces", s.handleListWorkspaces)
	}
	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.HandleFunc("POST /v1/tools/{name}", s.handleCallTool)
	mux.HandleFunc("POST /hooks", s.handleHook)
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.correlationMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("agentbus server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get(CorrelationHeader))
		w.Header().Set(CorrelationHeader, telemetry.CorrelationID(ctx))
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(route, rec.status)
		telemetry.RequestLogger(s.logger, ctx, "").Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	agents, _ := s.svc.Directory().Agents(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"uptime":   time.Since(s.startTime).String(),
		"agents":   len(agents),
		"sessions": s.svc.Sessions().Len(),
		"version":  s.version,
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	all, err := s.svc.Directory().Agents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	agents := make([]map[string]interface{}, len(all))
	for i, a := range all {
		entry := map[string]interface{}{
			"id":           a.ID.String(),
			"name":         a.Name,
			"workspace_id": a.WorkspaceID,
			"type":         a.AgentType,
			"registered":   a.Registered,
			"status":       a.Status,
			"session_id":   a.SessionID,
			"unread":       s.svc.UnreadFor(a.ID),
		}
		if a.LastMessage != "" {
			entry["last_message"] = a.LastMessage
		}
		if a.Folder != "" {
			entry["folder"] = a.Folder
		}
		if len(a.Metadata) > 0 {
			entry["metadata"] = a.Metadata
		}
		agents[i] = entry
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	dir := s.svc.Directory()
	all := s.workspaces()
	workspaces := make([]map[string]interface{}, len(all))
	for i, ws := range all {
		members := make([]map[string]interface{}, 0, len(ws.Agents))
		for _, id := range ws.Agents {
			a, err := dir.Agent(r.Context(), id)
			if err != nil {
				continue
			}
			members = append(members, map[string]interface{}{
				"id":         a.ID.String(),
				"name":       a.Name,
				"registered": a.Registered,
			})
		}
		workspaces[i] = map[string]interface{}{
			"id":     ws.ID,
			"name":   ws.Name,
			"agents": members,
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workspaces": workspaces})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	all := s.svc.Sessions().AllSessions()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	sessions := make([]map[string]interface{}, len(all))
	for i, sess := range all {
		sessions[i] = map[string]interface{}{
			"session_id":  sess.ID,
			"agent_id":    sess.AgentID.String(),
			"created_at":  sess.CreatedAt.Format(time.RFC3339),
			"last_active": sess.LastActive.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleHostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From    string `json:"from,omitempty"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	msg, err := s.svc.SendFromHost(r.Context(), req.From, r.PathValue("id"), req.Content)
	if err != nil {
		writeCoordError(w, err)
		return
	}
	s.metrics.RecordMessages("host", 1)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         msg.ID,
		"from":       msg.From,
		"to":         msg.To,
		"created_at": msg.CreatedAt.Format(time.RFC3339Nano),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	catalog := s.tools.Catalog()
	list := make([]map[string]interface{}, len(catalog))
	for i, t := range catalog {
		list[i] = map[string]interface{}{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.InputSchema(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": list})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.tools.Lookup(name); !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Tool %q not found", name))
		return
	}
	var req struct {
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	res := s.tools.Call(r.Context(), name, req.Arguments)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   !res.IsError,
		"text": res.Text,
	})
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	ev, err := hooks.DecodeEvent(http.MaxBytesReader(w, r.Body, s.maxHookBody))
	if err != nil {
		s.metrics.RecordHookEvent("unknown", "invalid")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "Hook body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid hook body")
		return
	}

	kind := string(coord.HookRegister)
	if ev.IsStatus() {
		kind = string(coord.HookStatus)
	}
	if s.hookLimiter != nil {
		if id, err := agent.ParseID(ev.AgentID); err == nil && !s.hookLimiter.Allow(id.String()) {
			s.metrics.RecordHookEvent(kind, "rate_limited")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Try again later.")
			return
		}
	}

	out, err := s.svc.HandleHook(r.Context(), ev)
	if err != nil {
		s.metrics.RecordHookEvent(kind, "rejected")
		telemetry.RequestLogger(s.logger, r.Context(), ev.AgentID).Warn("hook rejected", "error", err)
		writeCoordError(w, err)
		return
	}

	resp := map[string]interface{}{
		"kind":     out.Kind,
		"injected": out.Injected,
	}
	outcome := "ok"
	switch out.Kind {
	case coord.HookRegister:
		resp["action"] = out.Register.Action.String()
		resp["bound"] = out.Register.Bound
		resp["session_id"] = out.Register.Agent.SessionID
		if out.Register.Bound {
			outcome = "bound"
		} else {
			outcome = "ignored"
		}
	case coord.HookStatus:
		resp["applied"] = out.Status.Applied
		if out.Status.Applied {
			resp["status"] = out.Status.Status
		} else {
			outcome = "ignored"
		}
	}
	s.metrics.RecordHookEvent(kind, outcome)
	writeJSON(w, http.StatusOK, resp)
}

// writeCoordError maps coordination errors onto HTTP statuses.
func writeCoordError(w http.ResponseWriter, err error) {
	var ve *coord.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, agent.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, coord.ErrNotRegistered), errors.Is(err, coord.ErrOutOfScope):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
