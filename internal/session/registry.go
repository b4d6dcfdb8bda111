package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is an in-memory, two-way index between session IDs and agent IDs.
// Each agent owns at most one session at a time.
type Registry struct {
	mu      sync.Mutex
	byID    map[string]*Session
	byAgent map[uuid.UUID]string
	now     func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty session registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byID:    make(map[string]*Session),
		byAgent: make(map[uuid.UUID]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSession installs a fresh session for agentID, replacing any session
// the agent already had.
func (r *Registry) CreateSession(agentID uuid.UUID) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeForAgentLocked(agentID)

	now := r.now()
	sess := &Session{
		ID:         generateSecureID(),
		AgentID:    agentID,
		CreatedAt:  now,
		LastActive: now,
	}
	r.byID[sess.ID] = sess
	r.byAgent[agentID] = sess.ID
	return *sess
}

// Session looks up a session by ID.
func (r *Registry) Session(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byID[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// SessionForAgent looks up the session owned by agentID.
func (r *Registry) SessionForAgent(agentID uuid.UUID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byAgent[agentID]
	if !ok {
		return Session{}, false
	}
	return *r.byID[id], true
}

// RemoveSession deletes a session by ID. It reports whether one existed.
func (r *Registry) RemoveSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	delete(r.byAgent, sess.AgentID)
	return true
}

// RemoveSessionForAgent deletes the session owned by agentID.
func (r *Registry) RemoveSessionForAgent(agentID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeForAgentLocked(agentID)
}

func (r *Registry) removeForAgentLocked(agentID uuid.UUID) bool {
	id, ok := r.byAgent[agentID]
	if !ok {
		return false
	}
	delete(r.byAgent, agentID)
	delete(r.byID, id)
	return true
}

// UpdateActivity bumps the last-active time of a session. Unknown sessions
// are ignored.
func (r *Registry) UpdateActivity(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.byID[id]; ok {
		sess.LastActive = r.now()
	}
}

// CleanupStaleSessions removes every session idle for at least olderThan and
// returns the removed sessions. A zero duration removes all sessions.
func (r *Registry) CleanupStaleSessions(olderThan time.Duration) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	var removed []Session
	for id, sess := range r.byID {
		if sess.LastActive.After(cutoff) {
			continue
		}
		removed = append(removed, *sess)
		delete(r.byID, id)
		delete(r.byAgent, sess.AgentID)
	}
	return removed
}

// AllSessions returns a snapshot of every session.
func (r *Registry) AllSessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.byID))
	for _, sess := range r.byID {
		out = append(out, *sess)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
