package message

import (
	"fmt"
	"sync"
	"testing"
)

func TestStoreUnreadFiltersByRecipient(t *testing.T) {
	s := NewStore()
	s.Add(Message{From: "a", To: "b", Content: "one"})
	s.Add(Message{From: "a", To: "c", Content: "other"})
	s.Add(Message{From: "c", To: "b", Content: "two"})

	got := s.Unread("b")
	if len(got) != 2 {
		t.Fatalf("Unread(b) returned %d messages, want 2", len(got))
	}
	if got[0].Content != "one" || got[1].Content != "two" {
		t.Errorf("Unread(b) order = [%q %q], want [one two]", got[0].Content, got[1].Content)
	}
	for _, m := range got {
		if m.To != "b" {
			t.Errorf("Unread(b) returned message for %q", m.To)
		}
	}
}

func TestStoreAddAssignsIDs(t *testing.T) {
	s := NewStore()
	first := s.Add(Message{To: "b"})
	second := s.Add(Message{To: "b"})

	if first.ID == "" || second.ID == "" {
		t.Fatal("Add did not assign IDs")
	}
	if first.ID >= second.ID {
		t.Errorf("IDs not increasing: %q then %q", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestStoreHasUnreadAndLatest(t *testing.T) {
	s := NewStore()
	if s.HasUnread("b") {
		t.Fatal("HasUnread on empty store = true")
	}
	if _, ok := s.LatestUnreadID("b"); ok {
		t.Fatal("LatestUnreadID on empty store returned ok")
	}

	s.Add(Message{To: "b", Content: "old"})
	latest := s.Add(Message{To: "b", Content: "new"})
	s.Add(Message{To: "c", Content: "elsewhere"})

	if !s.HasUnread("b") {
		t.Error("HasUnread(b) = false, want true")
	}
	id, ok := s.LatestUnreadID("b")
	if !ok || id != latest.ID {
		t.Errorf("LatestUnreadID(b) = %q, %v, want %q, true", id, ok, latest.ID)
	}
}

func TestStoreMarkAsReadIsScopedAndIdempotent(t *testing.T) {
	s := NewStore()
	s.Add(Message{To: "b"})
	s.Add(Message{To: "b"})
	s.Add(Message{To: "c"})

	if n := s.MarkAsRead("b"); n != 2 {
		t.Errorf("MarkAsRead(b) = %d, want 2", n)
	}
	if n := s.MarkAsRead("b"); n != 0 {
		t.Errorf("second MarkAsRead(b) = %d, want 0", n)
	}
	if got := s.Unread("b"); len(got) != 0 {
		t.Errorf("Unread(b) after MarkAsRead = %d messages, want 0", len(got))
	}
	if got := s.Unread("c"); len(got) != 1 {
		t.Errorf("Unread(c) = %d messages, want 1", len(got))
	}
}

func TestStoreTakeUnread(t *testing.T) {
	s := NewStore()
	s.Add(Message{To: "b", Content: "hi"})

	got := s.TakeUnread("b")
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("TakeUnread(b) = %+v, want one message \"hi\"", got)
	}
	if s.HasUnread("b") {
		t.Error("HasUnread(b) after TakeUnread = true")
	}
}

func TestStoreCleanupKeepsUnread(t *testing.T) {
	s := NewStore(WithThreshold(10))

	for i := 0; i < 25; i++ {
		s.Add(Message{To: "b", Content: fmt.Sprintf("read-%d", i)})
	}
	s.MarkAsRead("b")
	for i := 0; i < 30; i++ {
		s.Add(Message{To: "c", Content: fmt.Sprintf("unread-%d", i)})
	}

	removed := s.Cleanup()
	if removed != 15 {
		t.Errorf("Cleanup removed %d, want 15", removed)
	}
	if got := len(s.Unread("c")); got != 30 {
		t.Errorf("unread messages after Cleanup = %d, want 30", got)
	}
	if got := s.Len(); got != 40 {
		t.Errorf("Len after Cleanup = %d, want 40", got)
	}
}

func TestStoreCleanupDropsOldestReadFirst(t *testing.T) {
	s := NewStore(WithThreshold(2))
	for i := 0; i < 4; i++ {
		s.Add(Message{To: "b", Content: fmt.Sprintf("m%d", i)})
	}
	s.MarkAsRead("b")
	s.Cleanup()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) != 2 {
		t.Fatalf("kept %d messages, want 2", len(s.messages))
	}
	if s.messages[0].Content != "m2" || s.messages[1].Content != "m3" {
		t.Errorf("kept [%q %q], want [m2 m3]", s.messages[0].Content, s.messages[1].Content)
	}
}

func TestStoreCleanupBelowThreshold(t *testing.T) {
	s := NewStore()
	for i := 0; i < DefaultThreshold; i++ {
		s.Add(Message{To: "b"})
	}
	s.MarkAsRead("b")
	if removed := s.Cleanup(); removed != 0 {
		t.Errorf("Cleanup at threshold removed %d, want 0", removed)
	}
}

func TestStoreConcurrentAdd(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(Message{To: "b", Content: fmt.Sprintf("%d", i)})
			_ = s.Unread("b")
		}(i)
	}
	wg.Wait()

	if got := len(s.Unread("b")); got != 50 {
		t.Errorf("Unread(b) after concurrent adds = %d, want 50", got)
	}
	if got := s.UnreadCount(); got != 50 {
		t.Errorf("UnreadCount = %d, want 50", got)
	}
}
