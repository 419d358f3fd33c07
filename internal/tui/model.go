package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-livestream-viewer/internal/metrics"
	"github.com/randomizedcoder/go-livestream-viewer/internal/viewer"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatusMsg carries an updated machine status.
type StatusMsg struct {
	Status viewer.Status
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// StatusSource provides the state machine snapshot.
type StatusSource interface {
	Status() viewer.Status
}

// SummarySource provides run counters. Optional.
type SummarySource interface {
	GenerateSummary() *metrics.Summary
}

// Config holds TUI configuration.
type Config struct {
	LiveURL     string
	Backend     string
	MetricsAddr string
	Status      StatusSource
	Summary     SummarySource
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	liveURL     string
	backend     string
	metricsAddr string

	// Current state
	status     viewer.Status
	hasStatus  bool
	summary    *metrics.Summary
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	statusSource  StatusSource
	summarySource SummarySource

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		liveURL:       cfg.LiveURL,
		backend:       cfg.Backend,
		metricsAddr:   cfg.MetricsAddr,
		statusSource:  cfg.Status,
		summarySource: cfg.Summary,
		startTime:     time.Now(),
		lastUpdate:    time.Now(),
		width:         80,
		height:        24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case StatusMsg:
		m.status = msg.Status
		m.hasStatus = true
		m.lastUpdate = time.Now()
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the latest snapshot from the sources.
func (m *Model) refresh() {
	if m.statusSource != nil {
		m.status = m.statusSource.Status()
		m.hasStatus = true
	}
	if m.summarySource != nil {
		m.summary = m.summarySource.GenerateSummary()
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the viewer started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Quitting reports whether the user asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}

// ProbeHealth returns the share of healthy probes (0.0 to 1.0).
func (m Model) ProbeHealth() float64 {
	if m.summary == nil {
		return 0
	}
	total := m.summary.HealthyProbes + m.summary.UnhealthyProbes
	if total == 0 {
		return 0
	}
	return float64(m.summary.HealthyProbes) / float64(total)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendStatus sends a status update to the TUI.
func SendStatus(p *tea.Program, status viewer.Status) {
	if p != nil {
		p.Send(StatusMsg{Status: status})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatAgo formats the time since t, or "never" for the zero time.
func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return formatDuration(time.Since(t)) + " ago"
}

// formatSeconds formats a duration in seconds with one decimal.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
