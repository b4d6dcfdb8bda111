package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
)

func TestEventWithData(t *testing.T) {
	e := New(MessageSent, "cor-1").WithData("from", "a").WithData("to", "b")
	if e.Type != MessageSent || e.CorrelationID != "cor-1" {
		t.Errorf("event = %+v", e)
	}
	if e.Data["from"] != "a" || e.Data["to"] != "b" {
		t.Errorf("Data = %v", e.Data)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}
}

func TestCollectorOfType(t *testing.T) {
	c := &CollectorEmitter{}
	MultiEmitter{c, NoopEmitter{}}.Emit(New(AgentRegistered, ""))
	c.Emit(New(MessageSent, ""))
	c.Emit(New(MessageSent, ""))

	if got := len(c.Events()); got != 3 {
		t.Errorf("Events() = %d, want 3", got)
	}
	if got := len(c.OfType(MessageSent)); got != 2 {
		t.Errorf("OfType(MessageSent) = %d, want 2", got)
	}
}

func TestJSONLEmitter(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONLEmitter(&buf)
	j.Emit(New(AgentCreated, "").WithData("name", "alpha"))
	j.Emit(New(AgentClosed, ""))

	sc := bufio.NewScanner(&buf)
	var types []Type
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not an event: %v", sc.Text(), err)
		}
		types = append(types, e.Type)
	}
	if len(types) != 2 || types[0] != AgentCreated || types[1] != AgentClosed {
		t.Errorf("types = %v, want [agent.created agent.closed]", types)
	}
}
