package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// flagValues receives parsed flags before they are layered over the file.
type flagValues struct {
	configPath      string
	url             string
	testMode        bool
	playerPath      string
	playerArgs      string
	grace           int
	delay           int
	retries         int
	probeDir        string
	metricsAddr     string
	verbose         bool
	logFormat       string
	stopTimeout     time.Duration
	httpTimeout     time.Duration
	tui             bool
	printCmd        bool
	skipPreflight   bool
	strictPreflight bool
}

// ParseFlags builds the run configuration from defaults, the settings file
// and command-line flags, in that order of precedence (flags win).
// Only flags that were explicitly set override file values.
func ParseFlags(args []string) (*Config, error) {
	return parseFlags(args, os.Stderr)
}

func parseFlags(args []string, output io.Writer) (*Config, error) {
	defaults := DefaultConfig()
	var v flagValues

	fs := flag.NewFlagSet("livestream-viewer", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `livestream-viewer - keeps a display on the live feed, off-air or offline video

Usage:
  livestream-viewer [flags]

Settings:
`)
		printFlagCategory(fs, output, []string{"config", "url"})

		fmt.Fprintf(output, "\nPlayer:\n")
		printFlagCategory(fs, output, []string{"player-path", "player-args", "test", "stop-timeout"})

		fmt.Fprintf(output, "\nHealth Check:\n")
		printFlagCategory(fs, output, []string{"grace", "delay", "retries", "probe-dir", "http-timeout"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "v", "log-format", "tui"})

		fmt.Fprintf(output, "\nDiagnostics:\n")
		printFlagCategory(fs, output, []string{"print-cmd", "skip-preflight", "strict-preflight"})

		fmt.Fprintf(output, `
Flags override values from the settings file.

Examples:
  # Run with settings from livestream-viewer.yaml
  livestream-viewer

  # Try a stream in a small window
  livestream-viewer -test -url rtmp://live.example.com/app/stream

  # Show the player commands that would be used
  livestream-viewer --print-cmd
`)
	}

	// Settings
	fs.StringVar(&v.configPath, "config", defaults.ConfigPath, "Path to the YAML settings file")
	fs.StringVar(&v.url, "url", "", "Livestream URL (overrides livestream_url)")

	// Player
	fs.StringVar(&v.playerPath, "player-path", "", "Directory holding ffmpeg/ffplay (enables explicit-path mode)")
	fs.StringVar(&v.playerArgs, "player-args", "", "Extra arguments appended to every player command")
	fs.BoolVar(&v.testMode, "test", false, "Test mode: play in a small window instead of full screen")
	fs.DurationVar(&v.stopTimeout, "stop-timeout", defaults.StopTimeout, "Time to wait after SIGTERM before SIGKILL")

	// Health check
	fs.IntVar(&v.grace, "grace", defaults.HealthCheckGracePeriod, "Seconds a capture runs per probe attempt")
	fs.IntVar(&v.delay, "delay", defaults.HealthCheckDelay, "Seconds between health checks")
	fs.IntVar(&v.retries, "retries", defaults.HealthCheckRetries, "Probe attempts per health check")
	fs.StringVar(&v.probeDir, "probe-dir", defaults.ProbeDirectory, "Directory for captured probe frames")
	fs.DurationVar(&v.httpTimeout, "http-timeout", defaults.HTTPTimeout, "Timeout for the internet test and URL resolution")

	// Observability
	fs.StringVar(&v.metricsAddr, "metrics", defaults.MetricsAddr, `Prometheus metrics address ("" disables)`)
	fs.BoolVar(&v.verbose, "v", false, "Verbose logging")
	fs.StringVar(&v.logFormat, "log-format", defaults.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&v.tui, "tui", false, "Show a live status dashboard in the terminal")

	// Diagnostics (double-dash convention)
	fs.BoolVar(&v.printCmd, "print-cmd", false, "Print the player and capture commands and exit")
	fs.BoolVar(&v.skipPreflight, "skip-preflight", false, "Skip preflight checks")
	fs.BoolVar(&v.strictPreflight, "strict-preflight", false, "Exit when a preflight check fails")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.ConfigPath = v.configPath
	if err := LoadFile(cfg, cfg.ConfigPath); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.LivestreamURL = v.url
		case "player-path":
			cfg.VideoPlayerPath = v.playerPath
		case "player-args":
			cfg.VideoPlayerArguments = v.playerArgs
		case "stop-timeout":
			cfg.StopTimeout = v.stopTimeout
		case "grace":
			cfg.HealthCheckGracePeriod = v.grace
		case "delay":
			cfg.HealthCheckDelay = v.delay
		case "retries":
			cfg.HealthCheckRetries = v.retries
		case "probe-dir":
			cfg.ProbeDirectory = v.probeDir
		case "http-timeout":
			cfg.HTTPTimeout = v.httpTimeout
		case "metrics":
			cfg.MetricsAddr = v.metricsAddr
		case "log-format":
			cfg.LogFormat = v.logFormat
		}
	})

	// Command-line only
	cfg.TestModeEnabled = v.testMode
	cfg.Verbose = v.verbose
	cfg.TUIEnabled = v.tui
	cfg.PrintCmd = v.printCmd
	cfg.SkipPreflight = v.skipPreflight
	cfg.StrictPreflight = v.strictPreflight

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := time.ParseDuration(f.DefValue); err == nil && strings.ContainsAny(f.DefValue, "hms") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
