package events

import (
	"encoding/json"
	"io"
	"sync"
)

// JSONLEmitter writes each event as one JSON line to w.
type JSONLEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLEmitter creates an emitter that writes to w.
func NewJSONLEmitter(w io.Writer) *JSONLEmitter {
	return &JSONLEmitter{enc: json.NewEncoder(w)}
}

// Emit writes the event. Write errors are dropped; events are best effort.
func (j *JSONLEmitter) Emit(event *Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(event)
}
