// Package main implements the entry point for the control-room ingestion
// service. It connects to the simulator's telemetry stream, maintains the
// windowed signal buffers and anomaly feed, optionally mirrors accepted
// updates to NATS, and serves metrics and health over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/control"
	"github.com/Martiniu70/control-room-sub000/fanout"
	"github.com/Martiniu70/control-room-sub000/ingest"
	"github.com/Martiniu70/control-room-sub000/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "control-room"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	// The NATS mirror is optional; an unreachable broker degrades to no
	// mirroring rather than blocking ingestion
	natsConn, err := fanout.Dial(cfg.NATS, logger, metrics)
	if err != nil {
		slog.Warn("NATS mirror unavailable, continuing without fan-out", "error", err)
	}
	mirror := fanout.NewMirror(natsConn, cfg.NATS.SubjectPrefix, logger, metrics)
	defer mirror.Close(5 * time.Second)

	var publisher ingest.Publisher
	if mirror.Enabled() {
		publisher = mirror
	}

	session, err := ingest.NewSession(cfg, config.DefaultChannels(), logger, registry, publisher)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	controlClient, err := control.NewClient(cfg.Control, logger, metrics)
	if err != nil {
		return fmt.Errorf("create control client: %w", err)
	}

	return runWithSignalHandling(cliCfg, cfg, session, controlClient, registry, logger)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting control-room (telemetry ingestion)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// runWithSignalHandling starts the session and servers and handles shutdown
// signals.
func runWithSignalHandling(
	cliCfg *CLIConfig,
	cfg *config.Config,
	session *ingest.Session,
	controlClient *control.Client,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := session.Initialize(); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	if err := session.Start(signalCtx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	// Prime the control surface snapshot; the stream works without it
	fetchCtx, fetchCancel := context.WithTimeout(signalCtx, cfg.Control.StatusTimeout)
	if _, err := controlClient.FetchStatus(fetchCtx); err != nil {
		slog.Warn("initial control status fetch failed", "error", err)
	}
	fetchCancel()

	server := newObsServer(cfg.Server.Addr, session, controlClient, registry, logger)

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		return server.Run(gctx, cliCfg.ShutdownTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down session")
		return session.Stop(cliCfg.ShutdownTimeout)
	})

	slog.Info("control-room started", "stream", cfg.Stream.URL, "server", cfg.Server.Addr)

	if err := g.Wait(); err != nil && err != context.Canceled {
		return fmt.Errorf("shutdown: %w", err)
	}

	slog.Info("control-room shutdown complete")
	return nil
}
