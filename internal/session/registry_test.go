package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRegistryCreateSession(t *testing.T) {
	r := NewRegistry()
	agentID := uuid.New()

	sess := r.CreateSession(agentID)
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("session ID %q does not have \"sess_\" prefix", sess.ID)
	}
	if sess.AgentID != agentID {
		t.Errorf("AgentID = %s, want %s", sess.AgentID, agentID)
	}
	if sess.CreatedAt.IsZero() || sess.LastActive.IsZero() {
		t.Error("timestamps not set")
	}

	got, ok := r.Session(sess.ID)
	if !ok || got.ID != sess.ID {
		t.Fatalf("Session(%q) = %+v, %v", sess.ID, got, ok)
	}
	got, ok = r.SessionForAgent(agentID)
	if !ok || got.ID != sess.ID {
		t.Fatalf("SessionForAgent = %+v, %v", got, ok)
	}
}

func TestRegistryCreateSessionReplacesPrevious(t *testing.T) {
	r := NewRegistry()
	agentID := uuid.New()

	first := r.CreateSession(agentID)
	second := r.CreateSession(agentID)

	if first.ID == second.ID {
		t.Fatal("CreateSession reused a session ID")
	}
	if _, ok := r.Session(first.ID); ok {
		t.Error("first session still resolvable after replacement")
	}
	got, ok := r.SessionForAgent(agentID)
	if !ok || got.ID != second.ID {
		t.Errorf("SessionForAgent = %q, want %q", got.ID, second.ID)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryRemoveClearsBothDirections(t *testing.T) {
	r := NewRegistry()

	a := uuid.New()
	sa := r.CreateSession(a)
	if !r.RemoveSession(sa.ID) {
		t.Fatal("RemoveSession returned false for existing session")
	}
	if _, ok := r.SessionForAgent(a); ok {
		t.Error("SessionForAgent succeeded after RemoveSession")
	}

	b := uuid.New()
	sb := r.CreateSession(b)
	if !r.RemoveSessionForAgent(b) {
		t.Fatal("RemoveSessionForAgent returned false for existing session")
	}
	if _, ok := r.Session(sb.ID); ok {
		t.Error("Session succeeded after RemoveSessionForAgent")
	}

	if r.RemoveSession("sess_missing") {
		t.Error("RemoveSession returned true for unknown session")
	}
}

func TestRegistryUpdateActivity(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(WithClock(clock.Now))

	sess := r.CreateSession(uuid.New())
	clock.Advance(time.Minute)
	r.UpdateActivity(sess.ID)

	got, _ := r.Session(sess.ID)
	if !got.LastActive.Equal(sess.LastActive.Add(time.Minute)) {
		t.Errorf("LastActive = %v, want %v", got.LastActive, sess.LastActive.Add(time.Minute))
	}

	// Unknown session is a no-op.
	r.UpdateActivity("sess_unknown")
}

func TestRegistryCleanupStaleSessions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	t.Run("zero removes all", func(t *testing.T) {
		r := NewRegistry(WithClock(clock.Now))
		r.CreateSession(uuid.New())
		r.CreateSession(uuid.New())

		removed := r.CleanupStaleSessions(0)
		if len(removed) != 2 {
			t.Errorf("removed %d sessions, want 2", len(removed))
		}
		if r.Len() != 0 {
			t.Errorf("Len = %d, want 0", r.Len())
		}
	})

	t.Run("large duration removes none", func(t *testing.T) {
		r := NewRegistry(WithClock(clock.Now))
		r.CreateSession(uuid.New())

		if removed := r.CleanupStaleSessions(100 * 365 * 24 * time.Hour); len(removed) != 0 {
			t.Errorf("removed %d sessions, want 0", len(removed))
		}
	})

	t.Run("only idle sessions", func(t *testing.T) {
		r := NewRegistry(WithClock(clock.Now))
		stale := r.CreateSession(uuid.New())
		clock.Advance(2 * time.Hour)
		fresh := r.CreateSession(uuid.New())

		removed := r.CleanupStaleSessions(time.Hour)
		if len(removed) != 1 || removed[0].ID != stale.ID {
			t.Fatalf("removed = %+v, want only %q", removed, stale.ID)
		}
		if _, ok := r.SessionForAgent(stale.AgentID); ok {
			t.Error("stale session still indexed by agent")
		}
		if _, ok := r.Session(fresh.ID); !ok {
			t.Error("fresh session was removed")
		}
	})
}

func TestRegistryConcurrency(t *testing.T) {
	r := NewRegistry()
	agentID := uuid.New()

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.CreateSession(agentID)
			} else {
				r.RemoveSessionForAgent(agentID)
			}
		}(i)
	}
	wg.Wait()

	// Whatever the interleaving, both indexes must agree.
	all := r.AllSessions()
	sess, ok := r.SessionForAgent(agentID)
	switch len(all) {
	case 0:
		if ok {
			t.Error("agent index points at a removed session")
		}
	case 1:
		if !ok || sess.ID != all[0].ID {
			t.Errorf("indexes disagree: agent -> %q, sessions = %+v", sess.ID, all)
		}
	default:
		t.Errorf("agent owns %d sessions, want at most 1", len(all))
	}
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := GenerateID("sess_")
		if !strings.HasPrefix(id, "sess_") || len(id) <= 5 {
			t.Fatalf("GenerateID = %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
