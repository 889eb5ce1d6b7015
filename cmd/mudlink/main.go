// Command mudlink connects to a MUD and runs a scripted session on the
// terminal.
//
// It starts:
// - the connection engine (telnet, MCCP, GMCP) feeding the session loop,
// - the Lua main module, optionally reloaded when its files change,
// - a console display on stdout and a command reader on stdin, and
// - an optional plain-text status endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"mudlink/internal/client"
	"mudlink/internal/config"
)

const version = "0.1.0"

func fatal(msg string, err error, attrs ...any) {
	args := make([]any, 0, 2+len(attrs))
	args = append(args, "err", err)
	args = append(args, attrs...)
	slog.Error(msg, args...)
	os.Exit(1)
}

func newRootCmd(runID string, logger *clog.Logger) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:     "mudlink",
		Short:   "mudlink - scriptable MUD client",
		Long:    "mudlink connects to a MUD server, runs Lua triggers and aliases over the session and renders it in true colour.",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if cfg.Debug {
				logger.SetLevel(clog.DebugLevel)
			}
			return run(cfg, runID)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (default config.yaml in . or config/)")
	f.String("host", "", "server host")
	f.Int("port", 23, "server port")
	f.String("encoding", "utf-8", "server character encoding")
	f.String("module", "", "Lua main module")
	f.Int("width", 100, "wrap column (0 disables wrapping)")
	f.Bool("debug", false, "debug logging")
	return cmd
}

func main() {
	// Set up logging first so early failures are captured consistently.
	runID := client.MakeRunID()
	logger := clog.NewWithOptions(os.Stderr, clog.Options{
		ReportTimestamp: true,
		Level:           clog.InfoLevel,
	})
	slog.SetDefault(slog.New(logger).With("run_id", runID))

	if err := newRootCmd(runID, logger).Execute(); err != nil {
		fatal("mudlink failed", err)
	}
}

func run(cfg config.Config, runID string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Shutdown watch: once a shutdown signal is received, allow a bounded window
	// for goroutines to exit cleanly before forcing termination.
	go func() {
		<-ctx.Done()
		t := time.NewTimer(60 * time.Second)
		defer t.Stop()
		<-t.C
		slog.Error("shutdown timed out after 60s, forcing exit")
		os.Exit(2)
	}()

	slog.Info(
		"starting mudlink",
		"addr", cfg.Addr(),
		"encoding", cfg.Encoding,
		"module", cfg.ModulePath,
		"status_port", cfg.StatusPort,
	)

	s, err := newSession(ctx, cfg, runID)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("session ended")
	return nil
}
