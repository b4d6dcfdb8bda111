// Package hooks interprets lifecycle events pushed by agent runtimes: it binds
// the agent's tracked session identifier, records runtime metadata, maps
// activity status, and reads transcripts for the agent's latest reply.
package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Source is the declared origin of a session-start event.
type Source string

const (
	SourceStartup Source = "startup"
	SourceResume  Source = "resume"
)

// NormalizeSource maps a raw source value onto Startup or Resume. Anything
// other than "resume", including an absent value, is a startup.
func NormalizeSource(raw string) Source {
	if strings.EqualFold(strings.TrimSpace(raw), string(SourceResume)) {
		return SourceResume
	}
	return SourceStartup
}

// Event is a lifecycle notification from an agent runtime.
type Event struct {
	AgentID   string         `json:"agent_id"`
	Agent     string         `json:"agent,omitempty"`
	Source    Source         `json:"source,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Status    string         `json:"status,omitempty"`
	Event     string         `json:"event,omitempty"`
}

// IsStatus reports whether e is an activity-status event rather than a
// registration event.
func (e *Event) IsStatus() bool {
	return e.Status != ""
}

// Normalize applies boundary defaults once: the source is folded onto
// startup/resume and a missing session id is taken from the payload.
func (e *Event) Normalize() {
	e.Source = NormalizeSource(string(e.Source))
	e.AgentID = strings.TrimSpace(e.AgentID)
	if e.SessionID == "" {
		if s, ok := e.Payload["session_id"].(string); ok {
			e.SessionID = s
		}
	}
}

// DecodeEvent reads one JSON event from r and normalizes it.
func DecodeEvent(r io.Reader) (Event, error) {
	var ev Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("decode hook event: %w", err)
	}
	ev.Normalize()
	return ev, nil
}
