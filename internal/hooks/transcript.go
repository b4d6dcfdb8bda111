package hooks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// RegistrationPrompt is the text the host types into an agent's terminal to
// ask it to register. A reply to this prompt is not surfaced to the user.
const RegistrationPrompt = "Register with the agent bus: call the register-agent tool with your agent id, then call check-messages."

const (
	// DefaultTranscriptMaxBytes bounds how much of a transcript is read.
	DefaultTranscriptMaxBytes = 4 << 20
	// DefaultTranscriptTimeout bounds how long a transcript read may take.
	DefaultTranscriptTimeout = 2 * time.Second
)

// TranscriptReader finds the latest assistant reply in a JSONL transcript.
// Only the trailing MaxBytes of the file are scanned.
type TranscriptReader struct {
	MaxBytes int64
	Timeout  time.Duration
}

// LastAssistantMessageFromTranscript uses the default limits.
func LastAssistantMessageFromTranscript(path string) (string, bool) {
	return TranscriptReader{}.LastAssistantMessage(context.Background(), path)
}

// LastAssistantMessage returns the text of the most recent assistant entry.
// It returns ("", true) when that entry answers RegistrationPrompt, and
// ("", false) when the file is missing, unreadable, empty, too slow to read,
// or holds no assistant entry.
func (t TranscriptReader) LastAssistantMessage(ctx context.Context, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTranscriptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text string
		ok   bool
	}
	ch := make(chan result, 1)
	go func() {
		data, err := readTail(path, t.maxBytes())
		if err != nil || len(data) == 0 {
			ch <- result{}
			return
		}
		text, ok := lastAssistant(data)
		ch <- result{text, ok}
	}()

	select {
	case r := <-ch:
		return r.text, r.ok
	case <-ctx.Done():
		return "", false
	}
}

func (t TranscriptReader) maxBytes() int64 {
	if t.MaxBytes <= 0 {
		return DefaultTranscriptMaxBytes
	}
	return t.MaxBytes
}

var errNotRegular = errors.New("transcript is not a regular file")

// readTail returns at most max trailing bytes of path, starting at a line
// boundary.
func readTail(path string, max int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, errNotRegular
	}

	size := info.Size()
	offset := int64(0)
	if size > max {
		offset = size - max
	}
	buf := make([]byte, size-offset)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]

	if offset > 0 {
		// The first line is probably cut; start after it.
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return nil, nil
		}
		buf = buf[i+1:]
	}
	return buf, nil
}

// lastAssistant scans JSONL entries in order. User entries without text
// (tool results) do not count as a preceding user turn, and assistant entries
// without text (pure tool calls) are not replies.
func lastAssistant(data []byte) (string, bool) {
	var (
		lastUser string
		reply    string
		found    bool
	)
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		switch gjson.GetBytes(line, "type").String() {
		case "user":
			if text := entryText(line); text != "" {
				lastUser = text
			}
		case "assistant":
			text := entryText(line)
			if text == "" {
				continue
			}
			found = true
			if lastUser == RegistrationPrompt {
				reply = ""
			} else {
				reply = text
			}
		}
	}
	return reply, found
}

// entryText extracts text from message.content (or a top-level content
// field). Content is either a string or a list of parts of which only
// "text" parts contribute.
func entryText(line []byte) string {
	content := gjson.GetBytes(line, "message.content")
	if !content.Exists() {
		content = gjson.GetBytes(line, "content")
	}
	switch {
	case content.Type == gjson.String:
		return strings.TrimSpace(content.String())
	case content.IsArray():
		var parts []string
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				if s := strings.TrimSpace(part.Get("text").String()); s != "" {
					parts = append(parts, s)
				}
			}
			return true
		})
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
