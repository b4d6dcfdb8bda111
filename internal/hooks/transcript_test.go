package hooks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func userLine(text string) string {
	return mustLine(map[string]any{
		"type":    "user",
		"message": map[string]any{"role": "user", "content": text},
	})
}

func assistantLine(text string) string {
	return mustLine(map[string]any{
		"type": "assistant",
		"message": map[string]any{
			"role":    "assistant",
			"content": []any{map[string]any{"type": "text", "text": text}},
		},
	})
}

func mustLine(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func writeTranscript(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
}

func TestLastAssistantMessage(t *testing.T) {
	toolUse := mustLine(map[string]any{
		"type": "assistant",
		"message": map[string]any{"content": []any{
			map[string]any{"type": "tool_use", "name": "register-agent"},
		}},
	})
	toolResult := mustLine(map[string]any{
		"type": "user",
		"message": map[string]any{"content": []any{
			map[string]any{"type": "tool_result", "content": "ok"},
		}},
	})
	summary := mustLine(map[string]any{"type": "summary", "summary": "whatever"})

	tests := []struct {
		name   string
		lines  []string
		want   string
		wantOK bool
	}{
		{
			name:   "latest assistant wins",
			lines:  []string{userLine("Fix bug"), assistantLine("Done"), userLine("Now tests"), assistantLine("Passing")},
			want:   "Passing",
			wantOK: true,
		},
		{
			name:   "reply to registration prompt is suppressed",
			lines:  []string{userLine(RegistrationPrompt), assistantLine("Registered as alpha")},
			want:   "",
			wantOK: true,
		},
		{
			name:   "suppression survives tool round trip",
			lines:  []string{userLine(RegistrationPrompt), toolUse, toolResult, assistantLine("Registered")},
			want:   "",
			wantOK: true,
		},
		{
			name:   "later turn resumes normal behavior",
			lines:  []string{userLine(RegistrationPrompt), assistantLine("Registered"), userLine("Next"), assistantLine("Working")},
			want:   "Working",
			wantOK: true,
		},
		{
			name:   "unknown entry types are skipped",
			lines:  []string{userLine("hi"), assistantLine("hello"), summary, "not json at all"},
			want:   "hello",
			wantOK: true,
		},
		{
			name:   "plain string content",
			lines:  []string{`{"type":"assistant","message":{"content":"plain reply"}}`},
			want:   "plain reply",
			wantOK: true,
		},
		{
			name:   "multiple text parts are joined",
			lines:  []string{`{"type":"assistant","message":{"content":[{"type":"text","text":"a"},{"type":"thinking","text":"x"},{"type":"text","text":"b"}]}}`},
			want:   "a\nb",
			wantOK: true,
		},
		{
			name:   "no assistant entry",
			lines:  []string{userLine("anyone there?")},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "transcript.jsonl")
			writeTranscript(t, path, tt.lines...)

			got, ok := LastAssistantMessageFromTranscript(path)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("LastAssistantMessageFromTranscript = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLastAssistantMessageMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()

	if _, ok := LastAssistantMessageFromTranscript(filepath.Join(dir, "missing.jsonl")); ok {
		t.Error("missing file reported a message")
	}

	empty := filepath.Join(dir, "empty.jsonl")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := LastAssistantMessageFromTranscript(empty); ok {
		t.Error("empty file reported a message")
	}

	if _, ok := LastAssistantMessageFromTranscript(dir); ok {
		t.Error("directory reported a message")
	}

	if _, ok := LastAssistantMessageFromTranscript(""); ok {
		t.Error("empty path reported a message")
	}
}

func TestLastAssistantMessageReadsOnlyTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.jsonl")
	lines := []string{assistantLine("early")}
	for i := 0; i < 200; i++ {
		lines = append(lines, userLine(strings.Repeat("x", 100)))
	}
	lines = append(lines, assistantLine("late"))
	writeTranscript(t, path, lines...)

	r := TranscriptReader{MaxBytes: 1024}
	got, ok := r.LastAssistantMessage(context.Background(), path)
	if !ok || got != "late" {
		t.Errorf("LastAssistantMessage = %q, %v, want late, true", got, ok)
	}

	// A window that only covers user lines finds nothing.
	lines = append(lines, userLine("trailing"))
	writeTranscript(t, path, lines[1:201]...)
	if _, ok := r.LastAssistantMessage(context.Background(), path); ok {
		t.Error("tail without assistant entries reported a message")
	}
}
