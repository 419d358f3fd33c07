package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestCollector creates a collector with an isolated registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	c := NewCollectorWithRegistry(CollectorConfig{
		Version: "test",
		LiveURL: "rtmp://live.example.com/app/stream",
		Backend: "omxplayer",
	}, registry)
	return c, registry
}

// findMetric returns the metric in family name whose labels include all of
// labels, or nil.
func findMetric(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metrics
				}
			}
			return m
		}
	}
	return nil
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, registry, name, labels)
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, registry, name, labels)
	if m == nil {
		t.Fatalf("gauge %s%v not found", name, labels)
	}
	return m.GetGauge().GetValue()
}

// =============================================================================
// Tests: NewCollector
// =============================================================================

func TestNewCollector_Info(t *testing.T) {
	_, registry := newTestCollector(t)

	v := gaugeValue(t, registry, "livestream_viewer_info", map[string]string{
		"version": "test",
		"backend": "omxplayer",
	})
	if v != 1 {
		t.Errorf("info = %v, want 1", v)
	}
}

func TestNewCollector_StartsUnset(t *testing.T) {
	_, registry := newTestCollector(t)

	for _, s := range []state.State{state.Unset, state.OffAir, state.Livestream, state.Offline} {
		want := 0.0
		if s == state.Unset {
			want = 1
		}
		got := gaugeValue(t, registry, "livestream_viewer_state", map[string]string{"state": s.String()})
		if got != want {
			t.Errorf("state{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	c1, r1 := newTestCollector(t)
	_, r2 := newTestCollector(t)

	c1.RecordProbe(true, time.Second)

	if v := counterValue(t, r1, "livestream_viewer_probes_total", map[string]string{"result": "healthy"}); v != 1 {
		t.Errorf("registry 1 probes = %v, want 1", v)
	}
	if v := counterValue(t, r2, "livestream_viewer_probes_total", map[string]string{"result": "healthy"}); v != 0 {
		t.Errorf("registry 2 probes = %v, want 0", v)
	}
}

// =============================================================================
// Tests: Recording
// =============================================================================

func TestRecordTransition(t *testing.T) {
	c, registry := newTestCollector(t)

	c.RecordTransition(state.Unset, state.OffAir, nil)
	c.RecordTransition(state.OffAir, state.Livestream, errors.New("start failed"))

	if v := counterValue(t, registry, "livestream_viewer_transitions_total",
		map[string]string{"from": "OffAir", "to": "Livestream"}); v != 1 {
		t.Errorf("transitions{OffAir>Livestream} = %v, want 1", v)
	}
	if v := counterValue(t, registry, "livestream_viewer_transition_failures_total", nil); v != 1 {
		t.Errorf("transition failures = %v, want 1", v)
	}
	if v := gaugeValue(t, registry, "livestream_viewer_state", map[string]string{"state": "Livestream"}); v != 1 {
		t.Errorf("state{Livestream} = %v, want 1", v)
	}
	if v := gaugeValue(t, registry, "livestream_viewer_state", map[string]string{"state": "OffAir"}); v != 0 {
		t.Errorf("state{OffAir} = %v, want 0", v)
	}
	if got := c.TotalTransitions(); got != 2 {
		t.Errorf("TotalTransitions() = %d, want 2", got)
	}
}

func TestRecordProbe(t *testing.T) {
	c, registry := newTestCollector(t)

	for i := 1; i <= 10; i++ {
		c.RecordProbe(i%2 == 0, time.Duration(i)*time.Second)
	}

	if v := counterValue(t, registry, "livestream_viewer_probes_total", map[string]string{"result": "healthy"}); v != 5 {
		t.Errorf("healthy probes = %v, want 5", v)
	}
	if v := counterValue(t, registry, "livestream_viewer_probes_total", map[string]string{"result": "unhealthy"}); v != 5 {
		t.Errorf("unhealthy probes = %v, want 5", v)
	}

	h := findMetric(t, registry, "livestream_viewer_probe_duration_seconds", nil)
	if h == nil || h.GetHistogram().GetSampleCount() != 10 {
		t.Errorf("probe duration histogram = %v, want 10 samples", h)
	}

	p50 := gaugeValue(t, registry, "livestream_viewer_probe_duration_p50_seconds", nil)
	if p50 < 4 || p50 > 7 {
		t.Errorf("p50 = %v, want about 5.5", p50)
	}
	if got := c.TotalProbes(); got != 10 {
		t.Errorf("TotalProbes() = %d, want 10", got)
	}
}

func TestRecordReachability(t *testing.T) {
	c, registry := newTestCollector(t)

	c.RecordReachability(true)
	c.RecordReachability(false)
	c.RecordReachability(false)

	if v := counterValue(t, registry, "livestream_viewer_reachability_checks_total", map[string]string{"result": "online"}); v != 1 {
		t.Errorf("online = %v, want 1", v)
	}
	if v := counterValue(t, registry, "livestream_viewer_reachability_checks_total", map[string]string{"result": "offline"}); v != 2 {
		t.Errorf("offline = %v, want 2", v)
	}
	if got := c.GenerateSummary().OfflineChecks; got != 2 {
		t.Errorf("OfflineChecks = %d, want 2", got)
	}
}

func TestPlayerLifecycle(t *testing.T) {
	c, registry := newTestCollector(t)

	c.PlayerStarted("omxplayer", 100)
	if v := gaugeValue(t, registry, "livestream_viewer_player_up", nil); v != 1 {
		t.Errorf("player_up after start = %v, want 1", v)
	}

	c.PlayerStopped("omxplayer", 100, 143, time.Minute)
	if v := gaugeValue(t, registry, "livestream_viewer_player_up", nil); v != 0 {
		t.Errorf("player_up after stop = %v, want 0", v)
	}
	if v := counterValue(t, registry, "livestream_viewer_player_exits_total", map[string]string{"category": "signal"}); v != 1 {
		t.Errorf("signal exits = %v, want 1", v)
	}

	c.PlayerStartFailed("ffplay", errors.New("not found"))
	if v := counterValue(t, registry, "livestream_viewer_player_start_failures_total", map[string]string{"program": "ffplay"}); v != 1 {
		t.Errorf("start failures = %v, want 1", v)
	}
	if v := counterValue(t, registry, "livestream_viewer_player_starts_total", map[string]string{"program": "omxplayer"}); v != 1 {
		t.Errorf("starts = %v, want 1", v)
	}
}

func TestRecordSweep(t *testing.T) {
	c, registry := newTestCollector(t)

	c.RecordSweep("omxplayer.bin", 10, nil)
	c.RecordSweep("ffmpeg", 11, nil)
	c.RecordSweep("ffplay", 12, errors.New("permission denied"))

	if v := counterValue(t, registry, "livestream_viewer_rogue_processes_killed_total", map[string]string{"name": "ffmpeg"}); v != 1 {
		t.Errorf("ffmpeg kills = %v, want 1", v)
	}
	if v := counterValue(t, registry, "livestream_viewer_rogue_process_kill_failures_total", nil); v != 1 {
		t.Errorf("kill failures = %v, want 1", v)
	}
	if got := c.GenerateSummary().SweptProcesses; got != 2 {
		t.Errorf("SweptProcesses = %d, want 2", got)
	}
}

// =============================================================================
// Tests: Summary
// =============================================================================

func TestGenerateSummary(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordTransition(state.Unset, state.OffAir, nil)
	c.PlayerStarted("omxplayer", 1)
	c.RecordProbe(false, 2*time.Second)
	c.RecordProbe(true, 4*time.Second)
	c.RecordTransition(state.OffAir, state.Livestream, nil)
	c.PlayerStopped("omxplayer", 1, 143, 30*time.Second)
	c.PlayerStarted("omxplayer", 2)
	c.PlayerStartFailed("omxplayer", errors.New("boom"))

	s := c.GenerateSummary()

	if s.FinalState != state.Livestream {
		t.Errorf("FinalState = %v, want Livestream", s.FinalState)
	}
	if s.Transitions != 2 {
		t.Errorf("Transitions = %d, want 2", s.Transitions)
	}
	if s.HealthyProbes != 1 || s.UnhealthyProbes != 1 {
		t.Errorf("probes = %d/%d, want 1/1", s.HealthyProbes, s.UnhealthyProbes)
	}
	if s.PlayerStarts != 2 || s.FailedStarts != 1 {
		t.Errorf("starts = %d/%d, want 2/1", s.PlayerStarts, s.FailedStarts)
	}
	if s.ExitCodes[143] != 1 {
		t.Errorf("ExitCodes = %v, want 143:1", s.ExitCodes)
	}
	if s.ProbeP50 < 1900*time.Millisecond || s.ProbeP99 > 4100*time.Millisecond {
		t.Errorf("probe percentiles = %v/%v, want within [2s, 4s]", s.ProbeP50, s.ProbeP99)
	}
	if s.UptimeP50 != 30*time.Second {
		t.Errorf("UptimeP50 = %v, want 30s", s.UptimeP50)
	}
	if _, ok := s.TimeInState[state.Livestream]; !ok {
		t.Error("TimeInState missing the current state")
	}
	if s.Duration <= 0 {
		t.Error("Duration not set")
	}
}

func TestGenerateSummary_Empty(t *testing.T) {
	c, _ := newTestCollector(t)
	s := c.GenerateSummary()

	if s.ProbeP50 != 0 || s.UptimeP50 != 0 {
		t.Errorf("percentiles without samples = %v/%v, want 0", s.ProbeP50, s.UptimeP50)
	}
	if s.FinalState != state.Unset {
		t.Errorf("FinalState = %v, want Unset", s.FinalState)
	}
}

// =============================================================================
// Tests: Helpers
// =============================================================================

func TestExitCategory(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "success"},
		{1, "error"},
		{2, "error"},
		{128, "error"},
		{137, "signal"},
		{143, "signal"},
		{-1, "error"},
	}

	for _, tt := range tests {
		if got := ExitCategory(tt.code); got != tt.want {
			t.Errorf("ExitCategory(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{130, "(SIGINT)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{129, "(signal 1)"},
		{42, ""},
	}

	for _, tt := range tests {
		if got := ExitCodeLabel(tt.code); got != tt.want {
			t.Errorf("ExitCodeLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
