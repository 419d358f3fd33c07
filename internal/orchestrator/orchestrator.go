// Package orchestrator wires the viewer components together and runs them
// until the process is told to stop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-livestream-viewer/internal/config"
	"github.com/randomizedcoder/go-livestream-viewer/internal/logging"
	"github.com/randomizedcoder/go-livestream-viewer/internal/metrics"
	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
	"github.com/randomizedcoder/go-livestream-viewer/internal/preflight"
	"github.com/randomizedcoder/go-livestream-viewer/internal/probe"
	"github.com/randomizedcoder/go-livestream-viewer/internal/process"
	"github.com/randomizedcoder/go-livestream-viewer/internal/reachability"
	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
	"github.com/randomizedcoder/go-livestream-viewer/internal/supervisor"
	"github.com/randomizedcoder/go-livestream-viewer/internal/tui"
	"github.com/randomizedcoder/go-livestream-viewer/internal/viewer"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 10 * time.Second

// Options holds the parts of an Orchestrator that do not come from Config.
type Options struct {
	// Version is reported by the info metric.
	Version string

	// Output receives preflight results and the exit summary (default: stdout).
	Output io.Writer

	// Table lists and kills OS processes (default: process.SystemTable).
	Table process.Table
}

// Orchestrator coordinates all components of the viewer.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	backend       player.Backend
	table         process.Table
	reach         *reachability.Checker
	supervisor    *supervisor.Supervisor
	prober        *probe.Prober
	machine       *viewer.Machine
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Table == nil {
		opts.Table = process.SystemTable{}
	}

	backend := player.SelectBackend(cfg.VideoPlayerPath)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: opts.Version,
		LiveURL: cfg.LivestreamURL,
		Backend: backend.Program,
	}, registry)

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		out:      opts.Output,
		backend:  backend,
		table:    opts.Table,
		registry: registry,
		metrics:  collector,
	}

	o.reach = reachability.New(reachability.Options{
		Timeout: cfg.HTTPTimeout,
		Logger:  logging.ForComponent(logger, "reachability"),
	})

	o.supervisor = supervisor.New(supervisor.Config{
		PlayerDir:   cfg.VideoPlayerPath,
		StopTimeout: cfg.StopTimeout,
		Table:       opts.Table,
		Logger:      logging.ForComponent(logger, "supervisor"),
		Callbacks: supervisor.Callbacks{
			OnStart:       collector.PlayerStarted,
			OnStartFailed: collector.PlayerStartFailed,
			OnStop:        collector.PlayerStopped,
			OnSweep:       collector.RecordSweep,
		},
	})

	o.prober = probe.New(probe.Config{
		Dir:         cfg.ProbeDirectory,
		GracePeriod: cfg.GracePeriod(),
		Retries:     cfg.HealthCheckRetries,
		PlayerDir:   cfg.VideoPlayerPath,
		Logger:      logging.ForComponent(logger, "probe"),
	}, o.supervisor)

	o.machine = viewer.New(viewer.Config{
		LiveURL:         cfg.LivestreamURL,
		ResolveLiveURL:  cfg.EvaluateLivestreamURL,
		InternetTestURL: cfg.InternetTestURL,
		PollDelay:       cfg.PollDelay(),
		Player:          playerOptions(cfg),
		StopTimeout:     cfg.StopTimeout,
		Logger:          logging.ForComponent(logger, "viewer"),
		Callbacks: viewer.Callbacks{
			OnProbe:        collector.RecordProbe,
			OnReachability: collector.RecordReachability,
			OnTransition:   collector.RecordTransition,
		},
	}, o.prober, o.reach, o.reach, o.supervisor)

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(metrics.ServerConfig{
			Addr:     cfg.MetricsAddr,
			Gatherer: registry,
			Status:   func() any { return o.Status() },
			Ready:    o.ready,
			Logger:   logging.ForComponent(logger, "metrics"),
		})
	}

	return o
}

// RunStatus is the JSON document served on /status.
type RunStatus struct {
	viewer.Status

	PlayerState   string `json:"player_state"`
	PlayerActive  bool   `json:"player_active"`
	PlayerCommand string `json:"player_command,omitempty"`
}

// Status combines the state machine snapshot with the supervisor view.
func (o *Orchestrator) Status() RunStatus {
	ps := o.supervisor.State()
	rs := RunStatus{
		Status:       o.machine.Status(),
		PlayerState:  ps.String(),
		PlayerActive: ps.IsActive(),
	}
	if cmd, ok := o.supervisor.TrackedCommand(); ok {
		rs.PlayerCommand = cmd.String()
	}
	return rs
}

// ready reports whether a transition has been made and the player has not
// died or failed to start since.
func (o *Orchestrator) ready() bool {
	return o.machine.State() != state.Unset && !o.supervisor.State().NeedsRestart()
}

// playerOptions maps the run configuration onto the resolver inputs.
func playerOptions(cfg *config.Config) player.Options {
	return player.Options{
		LiveURL:        cfg.LivestreamURL,
		VideoPath:      cfg.VideoPath,
		VideoExtension: cfg.VideoExtension,
		PlayerDir:      cfg.VideoPlayerPath,
		TestMode:       cfg.TestModeEnabled,
		ExtraArgs:      cfg.VideoPlayerArguments,
	}
}

// Run executes the viewer. It blocks until ctx is cancelled, a signal
// arrives or the dashboard is closed. Failed preflight checks and an
// unavailable metrics address are logged and the loop still starts, unless
// StrictPreflight is set.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	ctx, cancel := o.notifyContext(ctx)
	defer cancel()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, o.preflightOptions())
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			if o.config.StrictPreflight {
				return errors.New("preflight checks failed (use --skip-preflight to override)")
			}
			o.logger.Warn("preflight_failed", "checks", result.Failed())
		}
	}

	// Start metrics server
	server := o.metricsServer
	if server != nil {
		if err := server.Start(); err != nil {
			o.logger.Error("metrics_server_start_failed", "addr", o.config.MetricsAddr, "error", err)
			server = nil
		}
	}

	// Clear leftovers from a previous run before the first transition
	if killed := o.supervisor.SweepRogue(ctx); killed > 0 {
		o.logger.Info("startup_sweep", "killed", killed)
	}

	var tuiDone chan struct{}
	var program *tea.Program
	if o.config.TUIEnabled {
		program, tuiDone = o.startTUI(ctx, cancel)
	}

	o.machine.Run(ctx)

	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	// Print exit summary
	o.printExitSummary()

	return nil
}

// notifyContext returns a child of parent that is cancelled on SIGTERM or
// SIGINT. Signal delivery stops once the child is done.
func (o *Orchestrator) notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			o.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// startTUI runs the dashboard in the background. Closing it cancels the run.
func (o *Orchestrator) startTUI(ctx context.Context, cancel context.CancelFunc) (*tea.Program, chan struct{}) {
	model := tui.New(tui.Config{
		LiveURL:     o.config.LivestreamURL,
		Backend:     o.backend.Program,
		MetricsAddr: o.config.MetricsAddr,
		Status:      o.machine,
		Summary:     o.metrics,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			o.logger.Warn("tui_error", "error", err)
		}
		cancel()
	}()
	return program, done
}

func (o *Orchestrator) preflightOptions() preflight.Options {
	return preflight.Options{
		PlayerDir:      o.config.VideoPlayerPath,
		Renderer:       o.backend.Program,
		Capture:        probe.CaptureCommand("", o.config.VideoPlayerPath).Program,
		VideoPath:      o.config.VideoPath,
		VideoExtension: o.config.VideoExtension,
		ProbeDir:       o.config.ProbeDirectory,
		Table:          o.table,
	}
}

// PrintCommands writes the player command for every target state and the
// capture command, without running anything.
func (o *Orchestrator) PrintCommands(w io.Writer) error {
	opts := playerOptions(o.config)

	fmt.Fprintf(w, "# Renderer: %s (%s)\n", o.backend.Program, o.backend.Mode)
	for _, s := range state.Targets {
		cmd, err := player.Resolve(s, opts)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", s, err)
		}
		fmt.Fprintf(w, "\n# %s\n%s\n", s, cmd)
	}

	capture := probe.CaptureCommand(o.config.LivestreamURL, o.config.VideoPlayerPath)
	fmt.Fprintf(w, "\n# Health check (run in %s)\n%s\n", o.config.ProbeDirectory, capture)
	return nil
}

// printExitSummary prints a summary of the run.
func (o *Orchestrator) printExitSummary() {
	summary := o.metrics.GenerateSummary()
	w := o.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                     livestream-viewer Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(w, "Final State:            %s\n", summary.FinalState)
	fmt.Fprintf(w, "Transitions:            %d\n", summary.Transitions)
	fmt.Fprintln(w)

	if len(summary.TimeInState) > 0 {
		fmt.Fprintln(w, "Time in State:")
		for _, s := range append([]state.State{state.Unset}, state.Targets...) {
			if d, ok := summary.TimeInState[s]; ok {
				fmt.Fprintf(w, "  %-20s  %s\n", s.String()+":", formatDuration(d))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Health Checks:")
	fmt.Fprintf(w, "  Healthy Probes:       %d\n", summary.HealthyProbes)
	fmt.Fprintf(w, "  Unhealthy Probes:     %d\n", summary.UnhealthyProbes)
	fmt.Fprintf(w, "  Offline Checks:       %d\n", summary.OfflineChecks)
	if summary.HealthyProbes+summary.UnhealthyProbes > 0 {
		fmt.Fprintf(w, "  Probe P50 (median):   %s\n", summary.ProbeP50.Round(time.Millisecond))
		fmt.Fprintf(w, "  Probe P95:            %s\n", summary.ProbeP95.Round(time.Millisecond))
		fmt.Fprintf(w, "  Probe P99:            %s\n", summary.ProbeP99.Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Player:")
	fmt.Fprintf(w, "  Starts:               %d\n", summary.PlayerStarts)
	fmt.Fprintf(w, "  Failed Starts:        %d\n", summary.FailedStarts)
	fmt.Fprintf(w, "  Rogue Kills:          %d\n", summary.SweptProcesses)
	if summary.UptimeP50 > 0 || summary.UptimeP95 > 0 {
		fmt.Fprintf(w, "  Uptime P50:           %s\n", formatDuration(summary.UptimeP50))
		fmt.Fprintf(w, "  Uptime P95:           %s\n", formatDuration(summary.UptimeP95))
	}
	fmt.Fprintln(w)

	if len(summary.ExitCodes) > 0 {
		codes := make([]int, 0, len(summary.ExitCodes))
		for code := range summary.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		fmt.Fprintln(w, "Exit Codes:")
		for _, code := range codes {
			fmt.Fprintf(w, "  %3d %-16s %d\n", code, metrics.ExitCodeLabel(code), summary.ExitCodes[code])
		}
		fmt.Fprintln(w)
	}

	if o.config.MetricsAddr != "" {
		fmt.Fprintf(w, "Metrics endpoint was: http://%s/metrics\n", o.config.MetricsAddr)
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Machine returns the state machine for external access.
func (o *Orchestrator) Machine() *viewer.Machine {
	return o.machine
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the Prometheus registry holding the viewer metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
