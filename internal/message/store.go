// Package message implements the in-memory inter-agent message store.
package message

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultThreshold is the number of read messages retained by Cleanup.
const DefaultThreshold = 100

// Message is a single note from one agent (or the host) to another agent.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Store holds every message in insertion order. All methods are serialized
// through a single mutex.
type Store struct {
	mu        sync.Mutex
	messages  []*Message
	threshold int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithThreshold sets how many read messages Cleanup keeps.
func WithThreshold(n int) StoreOption {
	return func(s *Store) { s.threshold = n }
}

// NewStore creates an empty message store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends msg, filling in ID and CreatedAt when unset.
// The stored copy is returned.
func (s *Store) Add(msg Message) Message {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m := msg
	s.messages = append(s.messages, &m)
	return m
}

// Unread returns the unread messages addressed to recipient, oldest first.
func (s *Store) Unread(recipient string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, m := range s.messages {
		if m.To == recipient && !m.Read {
			out = append(out, *m)
		}
	}
	return out
}

// HasUnread reports whether recipient has at least one unread message.
func (s *Store) HasUnread(recipient string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.To == recipient && !m.Read {
			return true
		}
	}
	return false
}

// LatestUnreadID returns the ID of the most recently added unread message
// for recipient.
func (s *Store) LatestUnreadID(recipient string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.To == recipient && !m.Read {
			return m.ID, true
		}
	}
	return "", false
}

// MarkAsRead marks every message addressed to recipient as read and returns
// how many changed state.
func (s *Store) MarkAsRead(recipient string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.To == recipient && !m.Read {
			m.Read = true
			n++
		}
	}
	return n
}

// TakeUnread returns the unread messages for recipient and marks exactly
// those messages read in the same critical section.
func (s *Store) TakeUnread(recipient string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Message
	for _, m := range s.messages {
		if m.To == recipient && !m.Read {
			out = append(out, *m)
			m.Read = true
		}
	}
	return out
}

// Cleanup discards the oldest read messages once more than the threshold of
// read messages are held. Unread messages are never discarded.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	read := 0
	for _, m := range s.messages {
		if m.Read {
			read++
		}
	}
	excess := read - s.threshold
	if excess <= 0 {
		return 0
	}

	kept := s.messages[:0]
	removed := 0
	for _, m := range s.messages {
		if m.Read && removed < excess {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	// Drop references held past the new length.
	for i := len(kept); i < len(s.messages); i++ {
		s.messages[i] = nil
	}
	s.messages = kept
	return removed
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// UnreadCount returns the number of unread messages across all recipients.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if !m.Read {
			n++
		}
	}
	return n
}
