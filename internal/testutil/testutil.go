// Package testutil provides shared test helpers to reduce boilerplate across unit tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/directory"
)

// WriteFile writes content to name inside a per-test temporary directory and
// returns the full path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// AssertErrorContains asserts that err is non-nil and its message contains substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("expected error containing %q, got %q", substr, err.Error())
	}
}

// Agent is a test agent: a generated id and a name.
type Agent struct {
	ID   uuid.UUID
	Name string
}

// Agents generates one test agent per name.
func Agents(names ...string) []Agent {
	out := make([]Agent, len(names))
	for i, n := range names {
		out[i] = Agent{ID: uuid.New(), Name: n}
	}
	return out
}

// Workspace builds a workspace spec holding agents. Each agent gets a tmux
// target of the form "<workspace>:<index>".
func Workspace(id string, agents ...Agent) directory.WorkspaceSpec {
	ws := directory.WorkspaceSpec{ID: id, Name: id}
	for i, a := range agents {
		ws.Agents = append(ws.Agents, directory.AgentSpec{
			ID:         a.ID.String(),
			Name:       a.Name,
			Type:       "claude",
			TmuxTarget: id + ":" + string(rune('0'+i%10)),
		})
	}
	return ws
}

// NewDirectory returns an in-memory directory loaded with workspaces.
func NewDirectory(t *testing.T, opts []directory.Option, workspaces ...directory.WorkspaceSpec) *directory.Memory {
	t.Helper()
	dir := directory.NewMemory(opts...)
	if err := dir.Reload(workspaces); err != nil {
		t.Fatalf("failed to load workspaces: %v", err)
	}
	return dir
}
