package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/agentbus/internal/coord"
	"github.com/szaher/agentbus/internal/directory"
	"github.com/szaher/agentbus/internal/events"
	"github.com/szaher/agentbus/internal/hooks"
	"github.com/szaher/agentbus/internal/mcp"
	"github.com/szaher/agentbus/internal/message"
	"github.com/szaher/agentbus/internal/session"
	"github.com/szaher/agentbus/internal/telemetry"
	"github.com/szaher/agentbus/internal/tools"
)

// Runtime manages the full lifecycle of the agentbus service.
type Runtime struct {
	config    *Config
	dir       *directory.Memory
	svc       *coord.Service
	tools     *tools.Handler
	server    *Server
	scheduler *cron.Cron
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// Options configures the runtime.
type Options struct {
	Logger  *slog.Logger
	Version string
	// Events, when set, receives every coordination event as a JSON line.
	Events io.Writer
	// Injector overrides the injector chosen by the configuration.
	Injector directory.Injector
}

// New creates a runtime from the given config.
func New(config *Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	injector := opts.Injector
	if injector == nil {
		injector = newInjector(config, logger)
	}
	dir := directory.NewMemory(directory.WithInjector(injector), directory.WithLogger(logger))
	if err := dir.Reload(config.Workspaces); err != nil {
		return nil, fmt.Errorf("load workspaces: %w", err)
	}

	var emitter events.Emitter = events.LogEmitter{Logger: logger}
	if opts.Events != nil {
		emitter = events.MultiEmitter{emitter, events.NewJSONLEmitter(opts.Events)}
	}

	store := message.NewStore(message.WithThreshold(config.Sweep.ReadThreshold))
	sessions := session.NewRegistry()
	resolver := hooks.NewResolver(dir,
		hooks.WithTranscriptReader(config.TranscriptReader()),
		hooks.WithLogger(logger),
	)
	svc := coord.New(dir,
		coord.WithMessageStore(store),
		coord.WithSessionRegistry(sessions),
		coord.WithResolver(resolver),
		coord.WithEmitter(emitter),
		coord.WithLogger(logger),
	)

	metrics := telemetry.NewMetrics()
	metrics.RegisterState(telemetry.StateFuncs{
		Sessions:       sessions.Len,
		Messages:       store.Len,
		UnreadMessages: store.UnreadCount,
		Agents: func() int {
			all, _ := dir.Agents(context.Background())
			return len(all)
		},
	})

	handler := tools.NewHandler(svc, tools.WithMetrics(metrics), tools.WithLogger(logger))
	serverOpts := []ServerOption{
		WithLogger(logger),
		WithMetrics(metrics),
		WithVersion(opts.Version),
		WithMaxHookBody(config.Hooks.MaxBodyBytes),
		WithMCPHandler(mcp.NewHandler(mcp.NewServer(handler, opts.Version))),
		WithWorkspaces(dir.Workspaces),
	}
	if config.Hooks.RateLimit.Enabled() {
		serverOpts = append(serverOpts, WithHookRateLimit(NewRateLimiter(config.Hooks.RateLimit)))
	}
	server := NewServer(svc, handler, serverOpts...)

	rt := &Runtime{
		config:  config,
		dir:     dir,
		svc:     svc,
		tools:   handler,
		server:  server,
		metrics: metrics,
		logger:  logger,
	}
	scheduler, err := rt.newScheduler()
	if err != nil {
		return nil, err
	}
	rt.scheduler = scheduler
	return rt, nil
}

func newInjector(config *Config, logger *slog.Logger) directory.Injector {
	if config.Injector == InjectorTmux {
		delay, _ := config.TmuxSubmitDelay()
		return &directory.TmuxInjector{SubmitDelay: delay}
	}
	return directory.NewLogInjector(logger)
}

// newScheduler registers the housekeeping jobs.
func (rt *Runtime) newScheduler() (*cron.Cron, error) {
	staleAfter, err := rt.config.StaleAfter()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLogger(cronLogger{rt.logger}))
	if _, err := c.AddFunc(rt.config.Sweep.Messages, func() {
		if n := rt.svc.SweepMessages(); n > 0 {
			rt.logger.Debug("read messages removed", "count", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule message sweep: %w", err)
	}
	if _, err := c.AddFunc(rt.config.Sweep.Sessions, func() {
		ctx := telemetry.WithCorrelationID(context.Background(), "")
		rt.svc.SweepSessions(ctx, staleAfter)
	}); err != nil {
		return nil, fmt.Errorf("schedule session sweep: %w", err)
	}
	return c, nil
}

// Service returns the coordination service.
func (rt *Runtime) Service() *coord.Service { return rt.svc }

// Handler returns the HTTP handler.
func (rt *Runtime) Handler() http.Handler { return rt.server.Handler() }

// Run serves HTTP, runs the sweep scheduler and watches the config file
// until ctx is cancelled or a component fails.
func (rt *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := rt.server.ListenAndServe(rt.config.Listen)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	rt.scheduler.Start()
	g.Go(func() error {
		<-ctx.Done()
		rt.shutdown()
		return nil
	})

	if rt.config.Path != "" {
		g.Go(func() error {
			return rt.watchConfig(ctx)
		})
	}

	return g.Wait()
}

func (rt *Runtime) shutdown() {
	rt.logger.Info("shutting down agentbus")
	stopped := rt.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.server.Shutdown(ctx); err != nil {
		rt.logger.Warn("server shutdown", "error", err)
	}
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// ReloadWorkspaces re-reads the workspace section of the config file.
func (rt *Runtime) ReloadWorkspaces() error {
	specs, err := LoadWorkspaces(rt.config.Path)
	if err != nil {
		return err
	}
	if err := rt.dir.Reload(specs); err != nil {
		return fmt.Errorf("reload workspaces: %w", err)
	}
	rt.config.Workspaces = specs
	rt.logger.Info("workspaces reloaded", "workspaces", len(specs))
	return nil
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
