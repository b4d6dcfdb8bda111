package directory

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Injector delivers text to an agent's terminal as if typed by the user.
type Injector interface {
	Inject(ctx context.Context, target, text string) error
}

// TmuxInjector types text into a tmux pane with send-keys.
type TmuxInjector struct {
	// Binary is the tmux executable; defaults to "tmux".
	Binary string
	// SubmitDelay is the pause between typing the text and pressing Enter.
	SubmitDelay time.Duration
}

// Inject sends text literally, then submits it with Enter.
func (t *TmuxInjector) Inject(ctx context.Context, target, text string) error {
	if err := t.run(ctx, "send-keys", "-t", target, "-l", text); err != nil {
		return err
	}
	if t.SubmitDelay > 0 {
		select {
		case <-time.After(t.SubmitDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.run(ctx, "send-keys", "-t", target, "Enter")
}

func (t *TmuxInjector) run(ctx context.Context, args ...string) error {
	bin := t.Binary
	if bin == "" {
		bin = "tmux"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// LogInjector only logs injected text. It is used when no terminal backend is
// configured.
type LogInjector struct {
	logger *slog.Logger
}

// NewLogInjector creates a LogInjector.
func NewLogInjector(logger *slog.Logger) *LogInjector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogInjector{logger: logger}
}

// Inject logs the text and returns nil.
func (l *LogInjector) Inject(_ context.Context, target, text string) error {
	l.logger.Info("inject text", "target", target, "bytes", len(text))
	return nil
}

// RecordingInjector remembers every injection. It is intended for tests.
type RecordingInjector struct {
	mu    sync.Mutex
	calls []Injection
	Err   error
}

// Injection is one recorded call to RecordingInjector.Inject.
type Injection struct {
	Target string
	Text   string
}

// Inject records the call.
func (r *RecordingInjector) Inject(_ context.Context, target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Injection{Target: target, Text: text})
	return r.Err
}

// Injections returns a copy of the recorded calls.
func (r *RecordingInjector) Injections() []Injection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Injection(nil), r.calls...)
}
