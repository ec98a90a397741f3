package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		outputDir   string
		synthMode   string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "chekaru.yaml", "Path to configuration file")
	flag.StringVar(&outputDir, "output-dir", "", "Override the configured WAV output directory")
	flag.StringVar(&synthMode, "synth-mode", "", "Override the synthesis backend (mock, exec, http)")
	flag.StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := applyFlagOverrides(&cfg, outputDir, synthMode, logLevel); err != nil {
		bootLogger.Error("invalid flag", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Telemetry.LogLevel)}))

	rt := runtime.New(cfg, version, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// applyFlagOverrides layers command-line overrides on top of the loaded
// config, after file and environment processing.
func applyFlagOverrides(cfg *config.Config, outputDir, synthMode, logLevel string) error {
	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}
	if synthMode != "" {
		switch synthMode {
		case "mock", "exec", "http":
			cfg.Synth.Mode = synthMode
		default:
			return fmt.Errorf("unknown synth mode %q", synthMode)
		}
	}
	if logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
