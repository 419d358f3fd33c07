// Package main provides the livestream-viewer CLI entry point.
//
// livestream-viewer keeps a display showing the live feed while it is
// healthy, an off-air video while the broadcast is down and an offline
// video while there is no network at all.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-livestream-viewer/internal/config"
	"github.com/randomizedcoder/go-livestream-viewer/internal/logging"
	"github.com/randomizedcoder/go-livestream-viewer/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/livestream-viewer
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("livestream-viewer %s\n", version)
			return 0
		}
	}

	// Parse settings file and command-line flags
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.New(logging.Options{
			Format:  cfg.LogFormat,
			Level:   "info",
			Verbose: cfg.Verbose,
		})
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error:\n%v\n", err)
		return 1
	}

	orch := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		if err := orch.PrintCommands(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	logger.Info("starting",
		"version", version,
		"livestream_url", cfg.LivestreamURL,
		"player_path", cfg.VideoPlayerPath,
		"test_mode", cfg.TestModeEnabled,
		"grace_period", cfg.GracePeriod().String(),
		"poll_delay", cfg.PollDelay().String(),
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        livestream-viewer                          ║")
	fmt.Println("║        Live feed, off-air and offline display supervisor          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Stream:      %s\n", cfg.LivestreamURL)
	fmt.Printf("  Videos:      %s/*.%s\n", cfg.VideoPath, cfg.VideoExtension)
	if cfg.VideoPlayerPath != "" {
		fmt.Printf("  Player:      ffplay from %s\n", cfg.VideoPlayerPath)
	} else {
		fmt.Println("  Player:      omxplayer from PATH")
	}
	fmt.Printf("  Checks:      %ds capture, every %ds\n", cfg.HealthCheckGracePeriod, cfg.HealthCheckDelay)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.TestModeEnabled {
		fmt.Println("  Mode:        TEST (windowed)")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
