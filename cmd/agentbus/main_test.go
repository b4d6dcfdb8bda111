package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/szaher/agentbus/internal/hooks"
)

func TestParseToolArgs(t *testing.T) {
	got, err := parseToolArgs([]string{"from=a", "content=x=y", "createWorktree=true"})
	if err != nil {
		t.Fatalf("parseToolArgs: %v", err)
	}
	if got["content"] != "x=y" || got["createWorktree"] != "true" || len(got) != 3 {
		t.Errorf("got %v", got)
	}
	if _, err := parseToolArgs([]string{"novalue"}); err == nil {
		t.Error("pair without '=' accepted")
	}
}

func TestBuildHookEvent(t *testing.T) {
	payload := `{"session_id":"s-9","source":"resume","hook_event_name":"SessionStart","cwd":"/w"}`
	ev, err := buildHookEvent([]byte(payload), " agent-1 ", "", "")
	if err != nil {
		t.Fatalf("buildHookEvent: %v", err)
	}
	if ev.AgentID != "agent-1" || ev.SessionID != "s-9" || ev.Source != hooks.SourceResume {
		t.Errorf("event = %+v", ev)
	}
	if ev.IsStatus() {
		t.Error("SessionStart treated as a status event")
	}
	if ev.Payload["cwd"] != "/w" {
		t.Errorf("payload = %v", ev.Payload)
	}

	ev, _ = buildHookEvent([]byte(`{"hook_event_name":"Stop"}`), "agent-1", "", "")
	if ev.Status != "idle" {
		t.Errorf("Stop status = %q, want idle", ev.Status)
	}

	ev, _ = buildHookEvent(nil, "agent-1", "", "")
	if ev.Source != hooks.SourceStartup {
		t.Errorf("empty payload source = %q, want startup", ev.Source)
	}

	if _, err := buildHookEvent([]byte("{"), "agent-1", "", ""); err == nil {
		t.Error("invalid JSON accepted")
	}
	if _, err := buildHookEvent(nil, "", "", ""); err == nil {
		t.Error("missing agent id accepted")
	}
}

func TestHookCommandNeverFails(t *testing.T) {
	var got hooks.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hooks" {
			t.Errorf("path = %q, want /hooks", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	root := newRootCmd()
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(`{"session_id":"abc"}`))
	root.SetArgs([]string{"hook", "--url", srv.URL, "--agent-id", "agent-7"})

	if err := root.Execute(); err != nil {
		t.Fatalf("hook returned error: %v", err)
	}
	if got.AgentID != "agent-7" || got.SessionID != "abc" {
		t.Errorf("posted event = %+v", got)
	}
	if !strings.Contains(stderr.String(), "hook rejected") {
		t.Errorf("stderr = %q, want rejection notice", stderr.String())
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("output = %q", out.String())
	}
}
