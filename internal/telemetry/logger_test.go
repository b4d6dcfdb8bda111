package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRequestLoggerCarriesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, FormatJSON)
	ctx := WithCorrelationID(context.Background(), "abc123")

	RequestLogger(logger, ctx, "alpha").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["correlation_id"] != "abc123" || line["agent"] != "alpha" {
		t.Errorf("log fields = %v", line)
	}
}

func TestWithCorrelationIDGenerates(t *testing.T) {
	id := CorrelationID(WithCorrelationID(context.Background(), ""))
	if len(id) != 32 {
		t.Errorf("generated id %q has length %d, want 32", id, len(id))
	}
	if CorrelationID(context.Background()) != "" {
		t.Error("empty context returned a correlation id")
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "TEXT").Info("hi", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q, want k=v", buf.String())
	}
}
