// Package runtime implements the agentbus service lifecycle and HTTP server.
package runtime

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/szaher/agentbus/internal/directory"
	"github.com/szaher/agentbus/internal/hooks"
	"github.com/szaher/agentbus/internal/message"
	"github.com/szaher/agentbus/internal/telemetry"
)

// Injector kinds.
const (
	InjectorTmux = "tmux"
	InjectorLog  = "log"
)

const (
	DefaultListen       = "127.0.0.1:7777"
	DefaultMessageSweep = "@every 1m"
	DefaultSessionSweep = "@every 10m"
	DefaultStaleAfter   = 24 * time.Hour
	DefaultMaxHookBody  = 1 << 20
	DefaultSubmitDelay  = 100 * time.Millisecond
	DefaultInjector     = InjectorLog

	envPrefix = "AGENTBUS_"
)

// SweepConfig schedules housekeeping. Schedules use cron syntax, including
// descriptors such as "@every 1m".
type SweepConfig struct {
	Messages   string `yaml:"messages"`
	Sessions   string `yaml:"sessions"`
	StaleAfter string `yaml:"stale_after"`
	// ReadThreshold is how many read messages the store keeps.
	ReadThreshold int `yaml:"read_threshold"`
}

// TranscriptConfig bounds transcript reads on idle events.
type TranscriptConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	Timeout  string `yaml:"timeout"`
}

// TmuxConfig tunes the tmux injector.
type TmuxConfig struct {
	// SubmitDelay is the pause between typing text and pressing Enter.
	SubmitDelay string `yaml:"submit_delay"`
}

// HookConfig bounds the hook endpoint.
type HookConfig struct {
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// Config is the agentbus configuration file.
type Config struct {
	Listen     string                    `yaml:"listen"`
	LogLevel   string                    `yaml:"log_level"`
	LogFormat  string                    `yaml:"log_format"`
	Injector   string                    `yaml:"injector"`
	Sweep      SweepConfig               `yaml:"sweep"`
	Transcript TranscriptConfig          `yaml:"transcript"`
	Hooks      HookConfig                `yaml:"hooks"`
	Tmux       TmuxConfig                `yaml:"tmux"`
	Workspaces []directory.WorkspaceSpec `yaml:"workspaces"`

	// Path is the file the configuration was loaded from, if any.
	Path string `yaml:"-"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Listen:    DefaultListen,
		LogLevel:  "info",
		LogFormat: telemetry.FormatJSON,
		Injector:  DefaultInjector,
		Sweep: SweepConfig{
			Messages:      DefaultMessageSweep,
			Sessions:      DefaultSessionSweep,
			StaleAfter:    DefaultStaleAfter.String(),
			ReadThreshold: message.DefaultThreshold,
		},
		Transcript: TranscriptConfig{
			MaxBytes: hooks.DefaultTranscriptMaxBytes,
			Timeout:  hooks.DefaultTranscriptTimeout.String(),
		},
		Hooks: HookConfig{
			MaxBodyBytes: DefaultMaxHookBody,
			RateLimit:    DefaultRateLimitConfig(),
		},
		Tmux: TmuxConfig{SubmitDelay: DefaultSubmitDelay.String()},
	}
}

// LoadConfig reads path (if non-empty), applies environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
		cfg.Path = path
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorkspaces reads only the workspace section of path.
func LoadWorkspaces(path string) ([]directory.WorkspaceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	var doc struct {
		Workspaces []directory.WorkspaceSpec `yaml:"workspaces"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return doc.Workspaces, nil
}

// applyEnv overrides fields from AGENTBUS_* variables. The environment wins
// over the file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"LISTEN":     &c.Listen,
		"LOG_LEVEL":  &c.LogLevel,
		"LOG_FORMAT": &c.LogFormat,
		"INJECTOR":   &c.Injector,
	}
	for key, field := range str {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*field = v
		}
	}
	if v, ok := lookup(envPrefix + "STALE_AFTER"); ok && v != "" {
		c.Sweep.StaleAfter = v
	}
	if v, ok := lookup(envPrefix + "READ_THRESHOLD"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config %sREAD_THRESHOLD: expected integer, got %q", envPrefix, v)
		}
		c.Sweep.ReadThreshold = n
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, "listen must not be empty")
	}
	if _, err := telemetry.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Injector {
	case InjectorTmux, InjectorLog:
	default:
		errs = append(errs, fmt.Sprintf("injector must be %q or %q, got %q", InjectorTmux, InjectorLog, c.Injector))
	}
	for _, spec := range []struct{ name, value string }{
		{"sweep.messages", c.Sweep.Messages},
		{"sweep.sessions", c.Sweep.Sessions},
	} {
		if _, err := cron.ParseStandard(spec.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", spec.name, err))
		}
	}
	if _, err := c.StaleAfter(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.TranscriptTimeout(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.TmuxSubmitDelay(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Hooks.MaxBodyBytes <= 0 {
		errs = append(errs, "hooks.max_body_bytes must be positive")
	}
	if c.Sweep.ReadThreshold < 0 {
		errs = append(errs, "sweep.read_threshold must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StaleAfter returns how long a session may stay idle before it is swept.
func (c *Config) StaleAfter() (time.Duration, error) {
	return parseDuration("sweep.stale_after", c.Sweep.StaleAfter, DefaultStaleAfter)
}

// TranscriptTimeout returns the transcript read deadline.
func (c *Config) TranscriptTimeout() (time.Duration, error) {
	return parseDuration("transcript.timeout", c.Transcript.Timeout, hooks.DefaultTranscriptTimeout)
}

// TmuxSubmitDelay returns the pause before Enter when typing into tmux.
func (c *Config) TmuxSubmitDelay() (time.Duration, error) {
	return parseDuration("tmux.submit_delay", c.Tmux.SubmitDelay, DefaultSubmitDelay)
}

// TranscriptReader returns the transcript limits as a reader.
func (c *Config) TranscriptReader() hooks.TranscriptReader {
	timeout, _ := c.TranscriptTimeout()
	return hooks.TranscriptReader{MaxBytes: c.Transcript.MaxBytes, Timeout: timeout}
}

func parseDuration(name, v string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, v)
	}
	return d, nil
}
