// Package metrics provides Prometheus metrics for livestream-viewer.
//
// Metrics cover three areas:
//   - Display: current state and transitions between states
//   - Health checks: stream probes and the fallback reachability check
//   - Processes: tracked player lifecycle and the rogue process sweep
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
)

const namespace = "livestream_viewer"

// digestCompression keeps each digest at roughly 100 centroids.
const digestCompression = 100

// CollectorConfig holds the static labels of the info metric.
type CollectorConfig struct {
	Version string
	LiveURL string
	Backend string
}

// Collector manages all Prometheus metrics for the viewer.
type Collector struct {
	// --- Display ---
	info               *prometheus.GaugeVec
	currentState       *prometheus.GaugeVec
	transitionsTotal   *prometheus.CounterVec
	transitionFailures prometheus.Counter

	// --- Health checks ---
	probesTotal        *prometheus.CounterVec
	probeDuration      prometheus.Histogram
	probeDurationP50   prometheus.Gauge
	probeDurationP95   prometheus.Gauge
	reachabilityChecks *prometheus.CounterVec

	// --- Processes ---
	playerUp            prometheus.Gauge
	playerStartsTotal   *prometheus.CounterVec
	playerFailuresTotal *prometheus.CounterVec
	playerExitsTotal    *prometheus.CounterVec
	playerUptime        prometheus.Histogram
	sweepKillsTotal     *prometheus.CounterVec
	sweepFailuresTotal  prometheus.Counter

	startTime time.Time

	mu              sync.Mutex
	probeDigest     *tdigest.TDigest
	uptimeDigest    *tdigest.TDigest
	transitions     int64
	failedStarts    int64
	starts          int64
	healthyProbes   int64
	unhealthyProbes int64
	offlineChecks   int64
	swept           int64
	exitCodes       map[int]int64
	timeInState     map[state.State]time.Duration
	current         state.State
	currentSince    time.Time
}

// NewCollector creates a collector registered with the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the viewer (value always 1)",
			},
			[]string{"version", "live_url", "backend"},
		),
		currentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Current display state (1 for the active state)",
			},
			[]string{"state"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Executed state transitions",
			},
			[]string{"from", "to"},
		),
		transitionFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transition_failures_total",
				Help:      "Transitions whose player did not start",
			},
		),
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Stream probes by verdict",
			},
			[]string{"result"}, // "healthy" | "unhealthy"
		),
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Stream probe duration including retries",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		probeDurationP50: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "probe_duration_p50_seconds",
				Help:      "Stream probe duration 50th percentile",
			},
		),
		probeDurationP95: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "probe_duration_p95_seconds",
				Help:      "Stream probe duration 95th percentile",
			},
		),
		reachabilityChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reachability_checks_total",
				Help:      "Fallback reachability checks by result",
			},
			[]string{"result"}, // "online" | "offline"
		),
		playerUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "player_up",
				Help:      "Whether a tracked player is running",
			},
		),
		playerStartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "player_starts_total",
				Help:      "Tracked player starts",
			},
			[]string{"program"},
		),
		playerFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "player_start_failures_total",
				Help:      "Tracked player starts that produced no process",
			},
			[]string{"program"},
		),
		playerExitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "player_exits_total",
				Help:      "Tracked player exits by exit code category",
			},
			[]string{"category"}, // "success" | "error" | "signal"
		),
		playerUptime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "player_uptime_seconds",
				Help:      "Tracked player uptime before release",
				Buckets:   []float64{1, 5, 30, 60, 300, 600, 1800, 3600, 7200, 86400},
			},
		),
		sweepKillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rogue_processes_killed_total",
				Help:      "Processes killed by the rogue sweep",
			},
			[]string{"name"},
		),
		sweepFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rogue_process_kill_failures_total",
				Help:      "Rogue sweep kills that failed",
			},
		),

		startTime:    time.Now(),
		probeDigest:  tdigest.NewWithCompression(digestCompression),
		uptimeDigest: tdigest.NewWithCompression(digestCompression),
		exitCodes:    make(map[int]int64),
		timeInState:  make(map[state.State]time.Duration),
		current:      state.Unset,
		currentSince: time.Now(),
	}

	registry.MustRegister(
		c.info,
		c.currentState,
		c.transitionsTotal,
		c.transitionFailures,
		c.probesTotal,
		c.probeDuration,
		c.probeDurationP50,
		c.probeDurationP95,
		c.reachabilityChecks,
		c.playerUp,
		c.playerStartsTotal,
		c.playerFailuresTotal,
		c.playerExitsTotal,
		c.playerUptime,
		c.sweepKillsTotal,
		c.sweepFailuresTotal,
	)

	c.info.WithLabelValues(cfg.Version, cfg.LiveURL, cfg.Backend).Set(1)
	c.setStateGauge(state.Unset)

	return c
}

// =============================================================================
// Display
// =============================================================================

// RecordTransition records an executed transition. err is the player start
// error, if any.
func (c *Collector) RecordTransition(from, to state.State, err error) {
	c.transitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	if err != nil {
		c.transitionFailures.Inc()
	}
	c.setStateGauge(to)

	now := time.Now()
	c.mu.Lock()
	c.transitions++
	c.timeInState[c.current] += now.Sub(c.currentSince)
	c.current = to
	c.currentSince = now
	c.mu.Unlock()
}

func (c *Collector) setStateGauge(active state.State) {
	for _, s := range append([]state.State{state.Unset}, state.Targets...) {
		v := 0.0
		if s == active {
			v = 1
		}
		c.currentState.WithLabelValues(s.String()).Set(v)
	}
}

// =============================================================================
// Health checks
// =============================================================================

// RecordProbe records one stream probe.
func (c *Collector) RecordProbe(healthy bool, d time.Duration) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	c.probesTotal.WithLabelValues(result).Inc()
	c.probeDuration.Observe(d.Seconds())

	c.mu.Lock()
	if healthy {
		c.healthyProbes++
	} else {
		c.unhealthyProbes++
	}
	c.probeDigest.Add(d.Seconds(), 1)
	p50 := c.probeDigest.Quantile(0.50)
	p95 := c.probeDigest.Quantile(0.95)
	c.mu.Unlock()

	c.probeDurationP50.Set(p50)
	c.probeDurationP95.Set(p95)
}

// RecordReachability records one fallback reachability check.
func (c *Collector) RecordReachability(online bool) {
	result := "offline"
	if online {
		result = "online"
	}
	c.reachabilityChecks.WithLabelValues(result).Inc()

	if !online {
		c.mu.Lock()
		c.offlineChecks++
		c.mu.Unlock()
	}
}

// =============================================================================
// Processes
// =============================================================================

// PlayerStarted records a tracked player start.
func (c *Collector) PlayerStarted(program string, _ int) {
	c.playerStartsTotal.WithLabelValues(program).Inc()
	c.playerUp.Set(1)

	c.mu.Lock()
	c.starts++
	c.mu.Unlock()
}

// PlayerStartFailed records a tracked player start that produced no process.
func (c *Collector) PlayerStartFailed(program string, _ error) {
	c.playerFailuresTotal.WithLabelValues(program).Inc()
	c.playerUp.Set(0)

	c.mu.Lock()
	c.failedStarts++
	c.mu.Unlock()
}

// PlayerStopped records the release of a tracked player.
func (c *Collector) PlayerStopped(_ string, _ int, exitCode int, uptime time.Duration) {
	c.playerExitsTotal.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.playerUptime.Observe(uptime.Seconds())
	c.playerUp.Set(0)

	c.mu.Lock()
	c.exitCodes[exitCode]++
	c.uptimeDigest.Add(uptime.Seconds(), 1)
	c.mu.Unlock()
}

// RecordSweep records one kill attempt by the rogue sweep.
func (c *Collector) RecordSweep(name string, _ int32, err error) {
	if err != nil {
		c.sweepFailuresTotal.Inc()
		return
	}
	c.sweepKillsTotal.WithLabelValues(name).Inc()

	c.mu.Lock()
	c.swept++
	c.mu.Unlock()
}

// ExitCategory groups an exit code as success, error or signal.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	FinalState      state.State
	Transitions     int64
	HealthyProbes   int64
	UnhealthyProbes int64
	OfflineChecks   int64
	PlayerStarts    int64
	FailedStarts    int64
	SweptProcesses  int64
	ExitCodes       map[int]int64
	TimeInState     map[state.State]time.Duration

	ProbeP50 time.Duration
	ProbeP95 time.Duration
	ProbeP99 time.Duration

	UptimeP50 time.Duration
	UptimeP95 time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	s := &Summary{
		Duration:        now.Sub(c.startTime),
		FinalState:      c.current,
		Transitions:     c.transitions,
		HealthyProbes:   c.healthyProbes,
		UnhealthyProbes: c.unhealthyProbes,
		OfflineChecks:   c.offlineChecks,
		PlayerStarts:    c.starts,
		FailedStarts:    c.failedStarts,
		SweptProcesses:  c.swept,
		ExitCodes:       make(map[int]int64, len(c.exitCodes)),
		TimeInState:     make(map[state.State]time.Duration, len(c.timeInState)+1),
	}

	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	for st, d := range c.timeInState {
		s.TimeInState[st] = d
	}
	s.TimeInState[c.current] += now.Sub(c.currentSince)

	if c.healthyProbes+c.unhealthyProbes > 0 {
		s.ProbeP50 = seconds(c.probeDigest.Quantile(0.50))
		s.ProbeP95 = seconds(c.probeDigest.Quantile(0.95))
		s.ProbeP99 = seconds(c.probeDigest.Quantile(0.99))
	}
	if len(c.exitCodes) > 0 {
		s.UptimeP50 = seconds(c.uptimeDigest.Quantile(0.50))
		s.UptimeP95 = seconds(c.uptimeDigest.Quantile(0.95))
	}

	return s
}

// TotalProbes returns the number of recorded probes.
func (c *Collector) TotalProbes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthyProbes + c.unhealthyProbes
}

// TotalTransitions returns the number of recorded transitions.
func (c *Collector) TotalTransitions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitions
}

// =============================================================================
// Helper Functions
// =============================================================================

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// ExitCodeLabel returns a human-readable label for common exit codes.
func ExitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		if code > 128 {
			return "(signal " + strconv.Itoa(code-128) + ")"
		}
		return ""
	}
}
