package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	MetricsPort     int
	NATSURL         string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool

	// Endpoints given on the command line: a reader followed by its writers.
	Reader  string
	Writers []string
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config", getEnv("SPLICE_CONFIG", ""),
		"Path to a pipeline file, .json or .yaml (env: SPLICE_CONFIG)")
	fs.StringVar(&cfg.ConfigPath, "c", getEnv("SPLICE_CONFIG", ""),
		"Path to a pipeline file, .json or .yaml (env: SPLICE_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("SPLICE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SPLICE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("SPLICE_LOG_FORMAT", "text"),
		"Log format: json, text (env: SPLICE_LOG_FORMAT)")

	fs.IntVar(&cfg.MetricsPort, "metrics-port", getEnvInt("SPLICE_METRICS_PORT", -1),
		"Prometheus and health port, 0 disables, -1 keeps the pipeline file value (env: SPLICE_METRICS_PORT)")
	fs.StringVar(&cfg.NATSURL, "nats", getEnv("SPLICE_NATS_URL", ""),
		"Shared NATS server for nats:// endpoints (env: SPLICE_NATS_URL)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDuration("SPLICE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"How long Stop may take to drain (env: SPLICE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printDetailedHelp(fs.Output(), fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Reader = rest[0]
		cfg.Writers = rest[1:]
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath == "" && cfg.Reader == "" {
		return fmt.Errorf("nothing to run: give -config or a reader and writers")
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.MetricsPort < -1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - splice one reader into many writers

Usage: %s [options] [reader [writer...]]

Options:
`, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Endpoints:
  path, file://path        file
  udp://host:port          UDP, multicast groups are joined
  pipe:command             stdout of a shell command (reader only)
  nats://host:port/subj    NATS subject
  ws://host:port/path      WebSocket clients (writer only)
  http(s)://...            POST per chunk (writer only)

Examples:
  # Copy a capture to a multicast group and a local file
  %s capture.ts udp://239.1.1.1:5000 copy.ts

  # Run a pipeline file with debug logging
  %s -config pipeline.yaml -log-level debug

  # Validate a pipeline file only
  %s -config pipeline.yaml -validate

Signals:
  INT, TERM  drain and stop (a second INT within 5s aborts)
  QUIT       drain and stop
  HUP        restart every reader

Version: %s
Build: %s
`, appName, appName, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
