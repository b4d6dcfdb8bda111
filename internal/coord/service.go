// Package coord implements the coordination service: the façade agents use
// to discover each other, register, and exchange messages within their
// workspace.
package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/agent"
	"github.com/szaher/agentbus/internal/events"
	"github.com/szaher/agentbus/internal/hooks"
	"github.com/szaher/agentbus/internal/message"
	"github.com/szaher/agentbus/internal/session"
	"github.com/szaher/agentbus/internal/telemetry"
)

// Service coordinates agents held by a Directory. Compound operations are
// serialized on one mutex so that a registration check and the write that
// depends on it never interleave with another caller.
type Service struct {
	mu       sync.Mutex
	dir      agent.Directory
	messages *message.Store
	sessions *session.Registry
	resolver *hooks.Resolver
	emitter  events.Emitter
	logger   *slog.Logger

	// notified remembers the newest unread message each agent was told
	// about, so idle notifications are not repeated.
	notified map[uuid.UUID]string
	// prompted holds the bound session id each unregistered agent was last
	// prompted for.
	prompted map[uuid.UUID]string
}

// Option configures a Service.
type Option func(*Service)

// WithMessageStore sets the message store.
func WithMessageStore(s *message.Store) Option {
	return func(svc *Service) { svc.messages = s }
}

// WithSessionRegistry sets the session registry.
func WithSessionRegistry(r *session.Registry) Option {
	return func(svc *Service) { svc.sessions = r }
}

// WithResolver sets the hook resolver used by HandleHook.
func WithResolver(r *hooks.Resolver) Option {
	return func(svc *Service) { svc.resolver = r }
}

// WithEmitter sets the event emitter.
func WithEmitter(e events.Emitter) Option {
	return func(svc *Service) { svc.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) { svc.logger = logger }
}

// New creates a coordination service over dir. Stores default to fresh
// in-memory instances.
func New(dir agent.Directory, opts ...Option) *Service {
	svc := &Service{
		dir:      dir,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		notified: make(map[uuid.UUID]string),
		prompted: make(map[uuid.UUID]string),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.messages == nil {
		svc.messages = message.NewStore()
	}
	if svc.sessions == nil {
		svc.sessions = session.NewRegistry()
	}
	if svc.resolver == nil {
		svc.resolver = hooks.NewResolver(dir, hooks.WithLogger(svc.logger))
	}
	return svc
}

// Directory returns the agent directory.
func (s *Service) Directory() agent.Directory { return s.dir }

// Messages returns the message store.
func (s *Service) Messages() *message.Store { return s.messages }

// Sessions returns the session registry.
func (s *Service) Sessions() *session.Registry { return s.sessions }

func (s *Service) emit(ctx context.Context, t events.Type, kv ...interface{}) {
	e := events.New(t, telemetry.CorrelationID(ctx))
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		e.WithData(key, kv[i+1])
	}
	s.emitter.Emit(e)
}

// parseField parses an agent id supplied in the named input field.
func parseField(field, raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, missing(field)
	}
	id, err := agent.ParseID(raw)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: field, Err: err}
	}
	return id, nil
}

// touch bumps the activity of the agent's coordination session, if any.
func (s *Service) touch(id uuid.UUID) {
	if sess, ok := s.sessions.SessionForAgent(id); ok {
		s.sessions.UpdateActivity(sess.ID)
	}
}

// matchAgent finds nameOrID in candidates: identifier first, then a
// case-insensitive exact name match.
func matchAgent(candidates []*agent.Agent, nameOrID string) *agent.Agent {
	if id, err := agent.ParseID(nameOrID); err == nil {
		for _, a := range candidates {
			if a.ID == id {
				return a
			}
		}
		return nil
	}
	name := strings.TrimSpace(nameOrID)
	for _, a := range candidates {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	return nil
}

// FindAgent resolves an agent by identifier, falling back to a
// case-insensitive exact name match.
func (s *Service) FindAgent(ctx context.Context, nameOrID string) (*agent.Agent, bool) {
	if id, err := agent.ParseID(nameOrID); err == nil {
		a, err := s.dir.Agent(ctx, id)
		if err == nil {
			return a, true
		}
	}
	all, err := s.dir.Agents(ctx)
	if err != nil {
		s.logger.Warn("find agent: listing agents failed", "error", err)
		return nil, false
	}
	name := strings.TrimSpace(nameOrID)
	for _, a := range all {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return nil, false
}

// isNotFound reports whether err means the agent does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, agent.ErrNotFound)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
