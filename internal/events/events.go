// Package events defines structured events emitted by the coordination
// service for agent lifecycle and messaging activity.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	AgentRegistered   Type = "agent.registered"
	AgentUnregistered Type = "agent.unregistered"
	AgentCreated      Type = "agent.created"
	AgentClosed       Type = "agent.closed"
	AgentStatus       Type = "agent.status"
	SessionBound      Type = "session.bound"
	MessageSent       Type = "message.sent"
	MessageBroadcast  Type = "message.broadcast"
	MessagesRead      Type = "message.read"
	SessionsSwept     Type = "session.swept"
)

// Event is a structured event emitted by the coordination core.
type Event struct {
	Type          Type                   `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event with the given type and correlation ID.
func New(eventType Type, correlationID string) *Event {
	return &Event{
		Type:          eventType,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithData adds data fields to the event and returns it for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// LogEmitter writes each event as one structured log line.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit logs the event at info level.
func (l LogEmitter) Emit(event *Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{slog.String("event", string(event.Type))}
	if event.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlation_id", event.CorrelationID))
	}
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "coordination event", attrs...)
}

// CollectorEmitter collects events in memory for testing.
type CollectorEmitter struct {
	mu     sync.Mutex
	events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns the collected events.
func (c *CollectorEmitter) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

// OfType returns the collected events of type t.
func (c *CollectorEmitter) OfType(t Type) []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter []Emitter

// Emit forwards the event to every emitter.
func (m MultiEmitter) Emit(event *Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
