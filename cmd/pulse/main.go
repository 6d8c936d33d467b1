package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/rzbill/pulse/internal/cmd/client"
	serverrun "github.com/rzbill/pulse/internal/cmd/server"
	cfgpkg "github.com/rzbill/pulse/internal/config"
	logpkg "github.com/rzbill/pulse/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI
	// Respect PULSE_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("PULSE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by net/http) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "pulse",
		Short: "Pulse runtime CLI",
		Long:  "Pulse is a single-binary analytics and feature-flag server. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start pulse server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			httpAddr, _ := cmd.Flags().GetString("http")
			dbURL, _ := cmd.Flags().GetString("db")
			configPath, _ := cmd.Flags().GetString("config")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			flushMs, _ := cmd.Flags().GetInt("flush-interval-ms")
			ensureSchema, _ := cmd.Flags().GetBool("ensure-schema")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg := cfgpkg.Default()
			if configPath != "" {
				loaded, err := cfgpkg.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			cfgpkg.FromEnv(&cfg)
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
			if batchSize > 0 {
				cfg.BatchSize = batchSize
			}
			if flushMs > 0 {
				cfg.FlushIntervalMs = flushMs
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("database url is required; use --db or PULSE_DATABASE_URL")
			}
			if logLevel != "" {
				_ = os.Setenv("PULSE_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("PULSE_LOG_FORMAT", logFormat)
			}
			if err := serverrun.Run(ctx, serverrun.Options{
				HTTPAddr:     httpAddr,
				EnsureSchema: ensureSchema,
				Config:       cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("db", os.Getenv("PULSE_DATABASE_URL"), "Postgres connection URL")
	serverStartCmd.Flags().String("config", "", "Path to JSON config file")
	serverStartCmd.Flags().Int("batch-size", 0, "Event batch size override")
	serverStartCmd.Flags().Int("flush-interval-ms", 0, "Event flush interval override in ms")
	serverStartCmd.Flags().Bool("ensure-schema", false, "Create database tables on startup if missing")
	serverStartCmd.Flags().String("log-level", os.Getenv("PULSE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("PULSE_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client commands (track, identify, flags)
	rootCmd.AddCommand(clientcmd.NewTrackCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewIdentifyCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewFlagsCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("PULSE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
