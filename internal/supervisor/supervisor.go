// Package supervisor owns the single tracked player process. It starts and
// stops players, runs short-lived helper processes for the stream probe and
// sweeps leftover renderer and capture processes by name.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/randomizedcoder/go-livestream-viewer/internal/logging"
	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
	"github.com/randomizedcoder/go-livestream-viewer/internal/process"
)

// DefaultStopTimeout is how long a process gets to exit after SIGTERM.
const DefaultStopTimeout = 5 * time.Second

// DefaultKnownNames are the renderer and capture programs swept by name.
var DefaultKnownNames = []string{"ffmpeg", "ffplay", "omxplayer"}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStart is called when a tracked player starts.
	OnStart func(program string, pid int)

	// OnStartFailed is called when a tracked player could not be started.
	OnStartFailed func(program string, err error)

	// OnStop is called when a tracked player is released, whether it was
	// terminated or had already exited.
	OnStop func(program string, pid int, exitCode int, uptime time.Duration)

	// OnSweep is called for every rogue process the sweep tried to kill.
	OnSweep func(name string, pid int32, err error)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	// PlayerDir is searched for ExplicitPath programs.
	PlayerDir string

	// StopTimeout is the grace time between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	// KnownNames are matched against process names by the sweep.
	KnownNames []string

	// Table lists and kills OS processes (default: process.SystemTable).
	Table process.Table

	Logger    *slog.Logger
	Callbacks Callbacks
}

// Supervisor manages the tracked player. The tracked handle never leaves
// the Supervisor; callers see it only through TrackedAlive, TrackedPID and
// State.
type Supervisor struct {
	playerDir   string
	stopTimeout time.Duration
	knownNames  []string
	table       process.Table
	logger      *slog.Logger
	callbacks   Callbacks
	selfPID     int32

	mu      sync.RWMutex
	tracked *process.Handle
	command player.Command
	state   State
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if len(cfg.KnownNames) == 0 {
		cfg.KnownNames = DefaultKnownNames
	}
	if cfg.Table == nil {
		cfg.Table = process.SystemTable{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Supervisor{
		playerDir:   cfg.PlayerDir,
		stopTimeout: cfg.StopTimeout,
		knownNames:  cfg.KnownNames,
		table:       cfg.Table,
		logger:      cfg.Logger,
		callbacks:   cfg.Callbacks,
		selfPID:     int32(os.Getpid()),
		state:       StateIdle,
	}
}

// StartTracked stops the current player and sweeps, then starts cmd as the
// new tracked player. On error no process is running and the error has
// been logged.
func (s *Supervisor) StartTracked(ctx context.Context, cmd player.Command) error {
	s.StopTracked(ctx)

	s.setState(StateStarting)

	h, err := s.Spawn(cmd, "")
	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("player_start_failed",
			"program", cmd.Program,
			"mode", cmd.Mode.String(),
			"args", cmd.Args,
			"error", err,
		)
		if s.callbacks.OnStartFailed != nil {
			s.callbacks.OnStartFailed(cmd.Program, err)
		}
		return err
	}

	s.mu.Lock()
	s.tracked = h
	s.command = cmd
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("player_started",
		"program", cmd.Program,
		"pid", h.PID(),
		"media", cmd.Media,
		"loop", cmd.Loop,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(cmd.Program, h.PID())
	}
	return nil
}

// StopTracked terminates the tracked player if it is alive, then sweeps
// rogue processes. Errors are logged, never returned.
func (s *Supervisor) StopTracked(ctx context.Context) {
	s.mu.Lock()
	h := s.tracked
	s.tracked = nil
	if h != nil {
		s.state = StateStopping
	}
	s.mu.Unlock()

	if h != nil {
		s.release(h)
		s.setState(StateIdle)
	}

	s.SweepRogue(ctx)
}

// release terminates h if needed and reports it as stopped.
func (s *Supervisor) release(h *process.Handle) {
	if h.Alive() {
		s.logger.Info("stopping_player",
			"program", h.Program(),
			"pid", h.PID(),
		)
		if err := s.Terminate(h); err != nil {
			s.logger.Warn("player_stop_error",
				"program", h.Program(),
				"pid", h.PID(),
				"error", err,
			)
		}
	} else {
		s.logger.Info("player_already_exited",
			"program", h.Program(),
			"pid", h.PID(),
			"exit_code", h.ExitCode(),
		)
	}

	if s.callbacks.OnStop != nil {
		s.callbacks.OnStop(h.Program(), h.PID(), h.ExitCode(), time.Since(h.StartedAt()))
	}
}

// Spawn builds and starts cmd in workDir without tracking it. Output is
// logged as subprocess_output and kept for Handle.RecentOutput.
func (s *Supervisor) Spawn(cmd player.Command, workDir string) (*process.Handle, error) {
	execCmd, err := process.Build(cmd, s.playerDir, workDir)
	if err != nil {
		return nil, err
	}

	out := logging.NewOutputHandler(cmd.Program, s.logger)
	h, err := process.Start(execCmd, cmd.Program, out)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("process_spawned",
		"program", cmd.Program,
		"pid", h.PID(),
		"command", cmd.String(),
		"dir", workDir,
	)
	return h, nil
}

// Terminate stops h with SIGTERM, then SIGKILL after the stop timeout.
// A forced kill is logged and not treated as an error.
func (s *Supervisor) Terminate(h *process.Handle) error {
	if h == nil {
		return nil
	}

	err := h.Terminate(s.stopTimeout)
	if errors.Is(err, process.ErrKilled) {
		s.logger.Warn("force_killed_process",
			"program", h.Program(),
			"pid", h.PID(),
			"timeout", s.stopTimeout,
		)
		return nil
	}
	return err
}

// SweepRogue kills every process whose name matches a known renderer or
// capture program, except this process itself. It returns how many were
// killed. Failures are logged.
func (s *Supervisor) SweepRogue(ctx context.Context) int {
	procs, err := s.table.Processes(ctx)
	if err != nil {
		s.logger.Warn("process_sweep_failed", "error", err)
		return 0
	}

	killed := 0
	for _, p := range procs {
		if p.PID == s.selfPID || !process.MatchName(p.Name, s.knownNames) {
			continue
		}

		err := s.table.Kill(ctx, p.PID)
		if err != nil {
			s.logger.Warn("rogue_process_kill_failed",
				"name", p.Name,
				"pid", p.PID,
				"error", err,
			)
		} else {
			killed++
			s.logger.Warn("rogue_process_killed",
				"name", p.Name,
				"pid", p.PID,
			)
		}

		if s.callbacks.OnSweep != nil {
			s.callbacks.OnSweep(p.Name, p.PID, err)
		}
	}

	return killed
}

// TrackedAlive reports whether the tracked player is running.
func (s *Supervisor) TrackedAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracked != nil && s.tracked.Alive()
}

// TrackedPID returns the tracked player's pid, or 0 if none is tracked.
func (s *Supervisor) TrackedPID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tracked == nil {
		return 0
	}
	return s.tracked.PID()
}

// TrackedCommand returns the command of the tracked player.
func (s *Supervisor) TrackedCommand() (player.Command, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tracked == nil {
		return player.Command{}, false
	}
	return s.command, true
}

// State returns the current state of the tracked player.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateRunning && s.tracked != nil && !s.tracked.Alive() {
		return StateExited
	}
	return s.state
}

// setState updates the state.
func (s *Supervisor) setState(newState State) {
	s.mu.Lock()
	s.state = newState
	s.mu.Unlock()
}
