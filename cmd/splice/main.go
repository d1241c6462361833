// Package main implements the splice command: it reads from one or more
// sources and copies every chunk to many writers, optionally through seams.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/splice/component"
	"github.com/c360/splice/componentregistry"
	"github.com/c360/splice/config"
	"github.com/c360/splice/engine"
	"github.com/c360/splice/health"
	"github.com/c360/splice/metric"
	"github.com/c360/splice/natsclient"
	"github.com/c360/splice/pipeline"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "splice"
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

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "readers", len(cfg.Readers))
		return nil
	}

	ctx := context.Background()
	metricsRegistry := metric.NewMetricsRegistry()

	shared, err := connectNATS(ctx, cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}
	if shared != nil {
		defer func() { _ = shared.Close(context.Background()) }()
	}

	o, err := buildOrchestrator(cfg, shared, logger, metricsRegistry)
	if err != nil {
		return err
	}

	server, err := startMetricsServer(cfg, metricsRegistry, o, logger)
	if err != nil {
		return err
	}
	if server != nil {
		defer func() { _ = server.Stop(context.Background()) }()
	}

	printBanner(logger, o)
	return runWithSignalHandling(ctx, o, metricsRegistry, logger, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	return cliCfg, logger, false, nil
}

// initializeConfiguration loads the pipeline file, if any, and appends the
// reader given on the command line.
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg := config.Default()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cliCfg.Reader != "" {
		cfg.Readers = append(cfg.Readers, config.ReaderConfig{URI: cliCfg.Reader, Writers: cliCfg.Writers})
	}
	if cliCfg.MetricsPort >= 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}
	if cliCfg.NATSURL != "" {
		cfg.NATS.URL = cliCfg.NATSURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// connectNATS dials the shared connection when one is configured. Without
// it every nats:// endpoint dials its own.
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*natsclient.Client, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}

	logger.Info("Connecting to NATS", "url", cfg.NATS.URL)
	connCtx, cancel := context.WithTimeout(ctx, cfg.NATS.ConnectTimeout+10*time.Second)
	defer cancel()

	client, err := natsclient.Dial(connCtx, cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

// buildOrchestrator registers the built-in kinds with the configured tuning
// and adds every reader tree.
func buildOrchestrator(
	cfg *config.Config,
	shared *natsclient.Client,
	logger *slog.Logger,
	metricsRegistry *metric.MetricsRegistry,
) (*engine.Orchestrator, error) {
	registry := pipeline.NewRegistry()
	if err := componentregistry.RegisterWithTuning(registry, cfg.Tuning()); err != nil {
		return nil, fmt.Errorf("register endpoint kinds: %w", err)
	}

	deps := component.Dependencies{
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Runtime:         component.NewRuntime(cfg.Runtime.Workers, cfg.Runtime.QueueSize, logger, metricsRegistry),
	}
	if shared != nil {
		deps.NATSClient = shared
	}

	o := engine.New(registry, deps)
	nodes, err := cfg.Topologies()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if _, err := o.AddTopology(n); err != nil {
			return nil, fmt.Errorf("build reader %s: %w", n.Endpoint, err)
		}
	}
	return o, nil
}

// startMetricsServer exposes /metrics and /health when a port is set.
func startMetricsServer(
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	o *engine.Orchestrator,
	logger *slog.Logger,
) (*metric.Server, error) {
	if cfg.Metrics.Port == 0 {
		return nil, nil
	}
	server := metric.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path, registry)
	server.SetHealthHandler(health.Handler(o.Status))
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	logger.Info("Metrics server listening", "address", server.Address(), "path", cfg.Metrics.Path)
	return server, nil
}

// printBanner logs one line for the process and one per reader.
func printBanner(logger *slog.Logger, o *engine.Orchestrator) {
	readers := o.Readers()
	logger.Info("Starting splice", "version", Version, "build_time", BuildTime, "readers", len(readers))
	for _, r := range readers {
		writers, seams := r.Topology().Count()
		logger.Info("Reader configured", "reader", r.Description(), "writers", writers, "seams", seams)
	}
}

// runWithSignalHandling runs the orchestrator until every reader has
// stopped, acting on signals meanwhile.
func runWithSignalHandling(
	ctx context.Context,
	o *engine.Orchestrator,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
	timeout time.Duration,
) error {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(sigs)

	if err := o.Run(ctx); err != nil {
		return fmt.Errorf("start readers: %w", err)
	}

	h := newSignalHandler(o, logger, timeout)
	for {
		select {
		case sig := <-sigs:
			h.handle(sig)
		case <-o.Done():
			// A restart closes the old run's Done before starting the new one.
			h.wait()
			select {
			case <-o.Done():
				return finalStatus(o, registry, logger)
			default:
			}
		}
	}
}

// finalStatus logs the outcome with the process-wide traffic totals.
func finalStatus(o *engine.Orchestrator, registry *metric.MetricsRegistry, logger *slog.Logger) error {
	st := o.Status()
	attrs := []any{"status", st.Status, "message", st.Message}
	if totals, err := registry.Totals("splice_"); err == nil {
		for _, name := range []string{"splice_chunks_published_total", "splice_bytes_published_total", "splice_bytes_written_total"} {
			attrs = append(attrs, strings.TrimPrefix(name, "splice_"), totals[name])
		}
	}
	logger.Info("Splice finished", attrs...)
	if st.IsUnhealthy() {
		return errors.New("every reader failed")
	}
	return nil
}
