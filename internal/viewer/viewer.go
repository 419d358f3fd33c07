// Package viewer runs the control loop that keeps the display on the right
// source: the livestream when it is healthy, otherwise a looping placeholder
// chosen by whether the network is reachable at all.
package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-livestream-viewer/internal/player"
	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
)

const (
	// defaultStopTimeout is assumed when Config.StopTimeout is unset.
	defaultStopTimeout = 5 * time.Second

	// shutdownMargin covers the sweep after the tracked player is stopped.
	shutdownMargin = 5 * time.Second
)

// shutdownBudget bounds the final stop and sweep after cancellation. A stop
// may wait twice: once for SIGTERM and once after SIGKILL.
func shutdownBudget(stopTimeout time.Duration) time.Duration {
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	return 2*stopTimeout + shutdownMargin
}

// Prober decides whether the livestream is producing frames.
type Prober interface {
	IsStreamHealthy(ctx context.Context, url string) bool
}

// Reachability checks an unrelated endpoint. A nil error means reachable.
type Reachability interface {
	Check(ctx context.Context, url string) error
}

// URLResolver follows redirects on the live URL. It falls back to the
// literal URL on failure.
type URLResolver interface {
	ResolveOrDefault(ctx context.Context, url string) string
}

// Supervisor owns the tracked player. StartTracked stops the previous player
// before starting the new one.
type Supervisor interface {
	StartTracked(ctx context.Context, cmd player.Command) error
	StopTracked(ctx context.Context)
	TrackedAlive() bool
	TrackedPID() int
}

// Callbacks contains optional hooks for loop events.
type Callbacks struct {
	// OnProbe is called after every stream probe.
	OnProbe func(healthy bool, duration time.Duration)

	// OnReachability is called after every fallback reachability check.
	OnReachability func(reachable bool)

	// OnTransition is called after every executed transition. err is the
	// start error, if any.
	OnTransition func(from, to state.State, err error)
}

// Config holds configuration for creating a Machine.
type Config struct {
	// LiveURL is the configured livestream URL.
	LiveURL string

	// ResolveLiveURL follows redirects on LiveURL before every probe.
	ResolveLiveURL bool

	// InternetTestURL is checked when the stream is unhealthy.
	InternetTestURL string

	// PollDelay is the idle time between iterations.
	PollDelay time.Duration

	// Player carries the static parts of every resolved command. Its
	// LiveURL is replaced per transition.
	Player player.Options

	// StopTimeout is the supervisor's per-signal stop timeout. The final
	// shutdown is bounded by a budget derived from it.
	StopTimeout time.Duration

	Logger    *slog.Logger
	Callbacks Callbacks
}

// Status is a point-in-time view of the machine for dashboards.
type Status struct {
	State       state.State `json:"state"`
	Since       time.Time   `json:"since"`
	LiveURL     string      `json:"live_url"`
	TrackedPID  int         `json:"tracked_pid"`
	Iterations  int         `json:"iterations"`
	Transitions int         `json:"transitions"`

	LastProbe   time.Time `json:"last_probe"`
	LastHealthy bool      `json:"last_healthy"`
	LastOnline  bool      `json:"last_online"`
	LastError   string    `json:"last_error,omitempty"`
	PlayerAlive bool      `json:"player_alive"`
}

// Machine is the viewer state machine. Run, Step and Transition must be
// called from a single goroutine; Status may be called from any.
type Machine struct {
	liveURL      string
	resolveLive  bool
	internetURL  string
	pollDelay    time.Duration
	shutdown     time.Duration
	playerOpts   player.Options
	prober       Prober
	reachability Reachability
	resolver     URLResolver
	sup          Supervisor
	logger       *slog.Logger
	callbacks    Callbacks

	mu     sync.RWMutex
	status Status
}

// New creates a Machine in the Unset state. resolver may be nil when
// ResolveLiveURL is false.
func New(cfg Config, prober Prober, reach Reachability, resolver URLResolver, sup Supervisor) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{
		liveURL:      cfg.LiveURL,
		resolveLive:  cfg.ResolveLiveURL && resolver != nil,
		internetURL:  cfg.InternetTestURL,
		pollDelay:    cfg.PollDelay,
		shutdown:     shutdownBudget(cfg.StopTimeout),
		playerOpts:   cfg.Player,
		prober:       prober,
		reachability: reach,
		resolver:     resolver,
		sup:          sup,
		logger:       cfg.Logger,
		callbacks:    cfg.Callbacks,
		status: Status{
			State:   state.Unset,
			Since:   time.Now(),
			LiveURL: cfg.LiveURL,
		},
	}
}

// Run transitions to OffAir, then probes and transitions every poll delay
// until ctx is cancelled. It stops the tracked player before returning.
func (m *Machine) Run(ctx context.Context) {
	m.logger.Info("viewer_starting",
		"live_url", m.liveURL,
		"internet_test_url", m.internetURL,
		"poll_delay", m.pollDelay,
	)

	if _, err := m.Transition(ctx, state.OffAir, m.liveURL); err != nil && ctx.Err() == nil {
		m.logger.Error("initial_transition_failed", "error", err)
	}

	for ctx.Err() == nil {
		m.Step(ctx)
		if !sleep(ctx, m.pollDelay) {
			break
		}
	}

	m.logger.Info("viewer_stopping", "state", m.State().String())

	stopCtx, cancel := context.WithTimeout(context.Background(), m.shutdown)
	defer cancel()
	m.sup.StopTracked(stopCtx)

	m.logger.Info("viewer_stopped")
}

// Step runs one iteration: probe, fall back to the reachability check,
// then transition if needed. It returns the target state, or Unset if ctx
// was cancelled before a target could be decided.
func (m *Machine) Step(ctx context.Context) state.State {
	m.mu.Lock()
	m.status.Iterations++
	m.mu.Unlock()

	url := m.liveURL
	if m.resolveLive {
		url = m.resolver.ResolveOrDefault(ctx, m.liveURL)
	}

	start := time.Now()
	healthy := m.prober.IsStreamHealthy(ctx, url)
	if m.callbacks.OnProbe != nil {
		m.callbacks.OnProbe(healthy, time.Since(start))
	}

	m.mu.Lock()
	m.status.LastProbe = time.Now()
	m.status.LastHealthy = healthy
	m.mu.Unlock()

	if ctx.Err() != nil {
		return state.Unset
	}

	target := state.Livestream
	if !healthy {
		target = state.Offline
		if m.isOnline(ctx) {
			target = state.OffAir
		}
		// A cancelled check reports unreachable; do not act on it.
		if ctx.Err() != nil {
			return state.Unset
		}
	}

	m.logger.Debug("target_state",
		"target", target.String(),
		"current", m.State().String(),
		"healthy", healthy,
		"url", url,
	)

	if _, err := m.Transition(ctx, target, url); err != nil {
		m.logger.Error("transition_failed", "target", target.String(), "error", err)
	}
	return target
}

// isOnline reports whether the internet test URL answered with success.
func (m *Machine) isOnline(ctx context.Context) bool {
	err := m.reachability.Check(ctx, m.internetURL)
	online := err == nil
	if err != nil {
		m.logger.Warn("reachability_check_failed",
			"url", m.internetURL,
			"error", err,
		)
	}

	m.mu.Lock()
	m.status.LastOnline = online
	m.mu.Unlock()

	if m.callbacks.OnReachability != nil {
		m.callbacks.OnReachability(online)
	}
	return online
}

// Transition switches the display to target. It is a no-op returning false
// when target is already current and the tracked player is alive. A start
// failure is returned but the state is still updated, so the next
// iteration retries through the dead-player path. A cancelled ctx returns
// its error without touching the state.
func (m *Machine) Transition(ctx context.Context, target state.State, liveURL string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	current := m.State()
	if target == current && m.sup.TrackedAlive() {
		return false, nil
	}

	opts := m.playerOpts
	opts.LiveURL = liveURL
	cmd, err := player.Resolve(target, opts)
	if err != nil {
		return false, err
	}

	if target == current {
		m.logger.Warn("player_died", "state", current.String())
	}
	m.logger.Info("state_transition",
		"from", current.String(),
		"to", target.String(),
		"command", cmd.String(),
	)

	m.mu.Lock()
	m.status.State = target
	m.status.Since = time.Now()
	m.status.Transitions++
	if target == state.Livestream {
		m.status.LiveURL = liveURL
	}
	m.mu.Unlock()

	err = m.sup.StartTracked(ctx, cmd)
	if err != nil {
		err = fmt.Errorf("start %s player: %w", target, err)
	}

	m.mu.Lock()
	m.status.LastError = ""
	if err != nil {
		m.status.LastError = err.Error()
	}
	m.mu.Unlock()

	if m.callbacks.OnTransition != nil {
		m.callbacks.OnTransition(current, target, err)
	}
	return true, err
}

// State returns the current display state.
func (m *Machine) State() state.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.State
}

// Status returns a snapshot of the machine.
func (m *Machine) Status() Status {
	m.mu.RLock()
	s := m.status
	m.mu.RUnlock()

	s.TrackedPID = m.sup.TrackedPID()
	s.PlayerAlive = m.sup.TrackedAlive()
	return s
}

// sleep waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
