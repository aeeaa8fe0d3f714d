// Package main runs the streamagent device agent: adapters stream device
// data in, the HTTP gateway serves probe, current, sample and asset
// requests, and optional sinks forward every observation to NATS or MQTT.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/streamagent/agent"
	"github.com/c360/streamagent/config"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamagent"
)

func main() {
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
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(firstNonEmpty(cliCfg.LogLevel, cfg.Log.Level), firstNonEmpty(cliCfg.LogFormat, cfg.Log.Format))
	slog.SetDefault(logger)

	slog.Info("Starting streamagent",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"devices_file", cfg.DevicesFile)

	metricsRegistry := metric.NewMetricsRegistry()
	a, err := agent.Load(cfg, agent.Deps{
		MetricsRegistry: metricsRegistry,
		Monitor:         health.NewMonitor(metricsRegistry.CoreMetrics()),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "devices", len(a.Registry().Devices()))
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		return err
	}
	slog.Info("Shutdown complete")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
