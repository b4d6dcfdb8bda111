// Package session tracks the coordination session owned by each registered
// agent. A session is created when an agent registers and is independent of
// the agent runtime's own conversation identifier.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the coordination identity of one registered agent.
type Session struct {
	ID         string    `json:"id"`
	AgentID    uuid.UUID `json:"agent_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}
