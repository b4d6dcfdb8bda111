package runtime

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/szaher/agentbus/internal/directory"
	"github.com/szaher/agentbus/internal/hooks"
)

type testEnv struct {
	rt       *Runtime
	srv      *httptest.Server
	injector *directory.RecordingInjector
	alpha    uuid.UUID
	beta     uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		injector: &directory.RecordingInjector{},
		alpha:    uuid.New(),
		beta:     uuid.New(),
	}
	cfg := DefaultConfig()
	cfg.Workspaces = []directory.WorkspaceSpec{{ID: "w", Name: "main", Agents: []directory.AgentSpec{
		{ID: env.alpha.String(), Name: "alpha", Type: "claude", TmuxTarget: "w:0"},
		{ID: env.beta.String(), Name: "beta", Type: "claude", TmuxTarget: "w:1"},
	}}}
	rt, err := New(cfg, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:  "test",
		Injector: env.injector,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.rt = rt
	env.srv = httptest.NewServer(rt.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "healthy" || body["agents"] != float64(2) || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get(CorrelationHeader) == "" {
		t.Error("response has no correlation id")
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	req.Header.Set(CorrelationHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(CorrelationHeader); got != "req-42" {
		t.Errorf("correlation id = %q, want req-42", got)
	}
}

func TestHookEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/hooks", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.post(t, "/hooks", hooks.Event{AgentID: "nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed agent_id status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.post(t, "/hooks", hooks.Event{AgentID: uuid.New().String()})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown agent status = %d, want 404", resp.StatusCode)
	}

	resp, body := env.post(t, "/hooks", map[string]interface{}{
		"agent_id": env.alpha.String(),
		"payload":  map[string]interface{}{"session_id": "claude-1", "cwd": "/src", "ignored": "x"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register hook status = %d, body %v", resp.StatusCode, body)
	}
	if body["bound"] != true || body["session_id"] != "claude-1" || body["injected"] != true {
		t.Errorf("register hook body = %v", body)
	}
	calls := env.injector.Injections()
	if len(calls) != 1 || calls[0].Text != hooks.RegistrationPrompt {
		t.Errorf("injections = %+v, want registration prompt", calls)
	}

	resp, body = env.post(t, "/hooks", hooks.Event{AgentID: env.alpha.String(), Status: "running"})
	if resp.StatusCode != http.StatusOK || body["applied"] != true || body["status"] != "running" {
		t.Errorf("status hook = %d %v", resp.StatusCode, body)
	}

	resp, body = env.post(t, "/hooks", hooks.Event{AgentID: env.alpha.String(), Status: "dancing"})
	if resp.StatusCode != http.StatusOK || body["applied"] != false {
		t.Errorf("unknown status hook = %d %v", resp.StatusCode, body)
	}

	_, agents := env.get(t, "/v1/agents")
	list := agents["agents"].([]interface{})
	first := list[0].(map[string]interface{})
	if first["session_id"] != "claude-1" || first["status"] != "running" {
		t.Errorf("agent view = %v", first)
	}
	meta := first["metadata"].(map[string]interface{})
	if meta["cwd"] != "/src" || meta["ignored"] != nil {
		t.Errorf("metadata = %v, want only allow-listed keys", meta)
	}
}

func TestHookBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	big := `{"agent_id":"` + strings.Repeat("a", DefaultMaxHookBody) + `"}`
	resp, _ := env.post(t, "/hooks", big)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestHookRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.rt.server.hookLimiter = NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

	ev := hooks.Event{AgentID: env.alpha.String(), Status: "running"}
	for i := 0; i < 2; i++ {
		if resp, _ := env.post(t, "/hooks", ev); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
	}
	if resp, _ := env.post(t, "/hooks", ev); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	other := hooks.Event{AgentID: env.beta.String(), Status: "running"}
	if resp, _ := env.post(t, "/hooks", other); resp.StatusCode != http.StatusOK {
		t.Errorf("other agent status = %d, want 200", resp.StatusCode)
	}
}

func TestToolEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.get(t, "/v1/tools")
	if n := len(body["tools"].([]interface{})); n != 7 {
		t.Errorf("tools listed = %d, want 7", n)
	}

	resp, _ := env.post(t, "/v1/tools/nope", map[string]interface{}{"arguments": map[string]interface{}{}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown tool status = %d, want 404", resp.StatusCode)
	}

	_, body = env.post(t, "/v1/tools/register-agent", map[string]interface{}{
		"arguments": map[string]interface{}{"agentId": env.alpha.String()},
	})
	if body["ok"] != true {
		t.Fatalf("register-agent = %v", body)
	}

	_, body = env.post(t, "/v1/tools/send-message", map[string]interface{}{
		"arguments": map[string]interface{}{"from": env.alpha.String(), "to": "beta"},
	})
	if body["ok"] != false || body["text"] != `missing required argument "content"` {
		t.Errorf("send-message without content = %v", body)
	}

	_, body = env.post(t, "/v1/tools/send-message", map[string]interface{}{
		"arguments": map[string]interface{}{"from": env.alpha.String(), "to": "beta", "content": "hello"},
	})
	if body["ok"] != true {
		t.Fatalf("send-message = %v", body)
	}

	_, body = env.get(t, "/v1/sessions")
	if n := len(body["sessions"].([]interface{})); n != 1 {
		t.Errorf("sessions = %d, want 1", n)
	}

	resp, body = env.post(t, "/hooks", hooks.Event{AgentID: env.beta.String(), Status: "idle"})
	if resp.StatusCode != http.StatusOK || body["injected"] != true {
		t.Errorf("idle hook with unread mail = %d %v", resp.StatusCode, body)
	}
}

func TestHostMessage(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/v1/agents/beta/messages", map[string]string{"content": "from the operator"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["from"] != "user" || body["to"] != env.beta.String() {
		t.Errorf("body = %v", body)
	}

	resp, _ = env.post(t, "/v1/agents/nobody/messages", map[string]string{"content": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown recipient status = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.post(t, "/v1/agents/beta/messages", map[string]string{"content": " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank content status = %d, want 400", resp.StatusCode)
	}
}

func TestListWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.rt.Service().RegisterAgent(t.Context(), env.alpha.String()); err != nil {
		t.Fatal(err)
	}

	resp, body := env.get(t, "/v1/workspaces")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	list, _ := body["workspaces"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("workspaces = %v, want 1", body["workspaces"])
	}
	ws := list[0].(map[string]interface{})
	if ws["id"] != "w" || ws["name"] != "main" {
		t.Errorf("workspace = %v", ws)
	}
	members, _ := ws["agents"].([]interface{})
	if len(members) != 2 {
		t.Fatalf("members = %v, want 2", ws["agents"])
	}
	first := members[0].(map[string]interface{})
	if first["name"] != "alpha" || first["registered"] != true {
		t.Errorf("first member = %v, want registered alpha", first)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/v1/tools/list-agents", map[string]interface{}{
		"arguments": map[string]interface{}{"callerAgentId": env.alpha.String()},
	})

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`agentbus_tool_calls_total{status="ok",tool="list-agents"} 1`,
		"agentbus_agents 2",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestReloadWorkspaces(t *testing.T) {
	alpha := "7b0c1c9e-4a53-4c58-9d0e-3f2f1f6f7a01"
	path := writeConfig(t, sampleConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	rt, err := New(cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Injector: &directory.RecordingInjector{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Service().RegisterAgent(t.Context(), alpha); err != nil {
		t.Fatal(err)
	}

	gamma := uuid.New().String()
	updated := sampleConfig + "      - id: " + gamma + "\n        name: gamma\n        type: codex\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := rt.ReloadWorkspaces(); err != nil {
		t.Fatalf("ReloadWorkspaces: %v", err)
	}

	if _, ok := rt.Service().FindAgent(t.Context(), "gamma"); !ok {
		t.Error("added agent not visible after reload")
	}
	a, ok := rt.Service().FindAgent(t.Context(), alpha)
	if !ok || !a.Registered {
		t.Errorf("surviving agent lost its registration: %+v", a)
	}
}
