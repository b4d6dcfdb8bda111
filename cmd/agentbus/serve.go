package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/agentbus/internal/runtime"
	"github.com/szaher/agentbus/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		logLevel   string
		logFormat  string
		eventsFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agentbus server",
		Long: `Starts the HTTP server exposing the MCP tool endpoint (/mcp), the JSON tool
API (/v1/tools), the hook endpoint (/hooks), health and metrics. The
workspace section of the config file is reloaded when the file changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := runtime.LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, err := telemetry.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger := telemetry.NewLogger(os.Stderr, level, cfg.LogFormat)

			opts := runtime.Options{Logger: logger, Version: version}
			if eventsFile != "" {
				f, err := os.OpenFile(eventsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open events file: %w", err)
				}
				defer f.Close()
				opts.Events = f
			}

			rt, err := runtime.New(cfg, opts)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return rt.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("AGENTBUS_CONFIG"), "Path to agentbus.yaml")
	cmd.Flags().StringVar(&listen, "listen", runtime.DefaultListen, "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", telemetry.FormatJSON, "Log format (json, text)")
	cmd.Flags().StringVar(&eventsFile, "events-file", "", "Append coordination events as JSON lines to this file")

	return cmd
}
