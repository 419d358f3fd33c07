package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// renderDashboard renders the whole screen.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderDisplay(),
		m.renderHealth(),
	}
	if m.summary != nil {
		sections = append(sections, m.renderCounters())
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" livestream-viewer │ %s │ Elapsed: %s ",
		m.status.State.String(),
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Display
// =============================================================================

func (m Model) renderDisplay() string {
	st := m.status

	pid := "-"
	if st.TrackedPID > 0 {
		pid = fmt.Sprintf("%d", st.TrackedPID)
	}

	lines := []string{
		sectionHeaderStyle.Render("Display"),
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("State:"), StateLabel(st.State)),
		RenderKeyValue("Since", formatAgo(st.Since)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Player:"),
			BoolLabel(st.PlayerAlive, "running", "not running"),
			dimStyle.Render(" pid "+pid),
		),
	}
	if m.backend != "" {
		lines = append(lines, RenderKeyValue("Backend", m.backend))
	}
	if st.LastError != "" {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Last error:"),
			valueBadStyle.Render(truncate(st.LastError, m.width-26)),
		))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Health
// =============================================================================

func (m Model) renderHealth() string {
	st := m.status

	lines := []string{
		sectionHeaderStyle.Render("Health Checks"),
		RenderKeyValue("Last probe", formatAgo(st.LastProbe)),
	}
	if !st.LastProbe.IsZero() {
		lines = append(lines,
			lipgloss.JoinHorizontal(lipgloss.Left,
				labelStyle.Render("Stream:"),
				BoolLabel(st.LastHealthy, "healthy", "no frames"),
			),
		)
		if !st.LastHealthy {
			lines = append(lines,
				lipgloss.JoinHorizontal(lipgloss.Left,
					labelStyle.Render("Internet:"),
					BoolLabel(st.LastOnline, "reachable", "unreachable"),
				),
			)
		}
	}
	lines = append(lines,
		RenderKeyValue("Iterations", fmt.Sprintf("%d", st.Iterations)),
		RenderKeyValue("Transitions", fmt.Sprintf("%d", st.Transitions)),
	)

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Counters
// =============================================================================

func (m Model) renderCounters() string {
	s := m.summary

	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}

	lines := []string{
		sectionHeaderStyle.Render("Run"),
		RenderKeyValue("Probes", fmt.Sprintf("%d healthy / %d unhealthy", s.HealthyProbes, s.UnhealthyProbes)),
		RenderProgressBar(m.ProbeHealth(), barWidth),
	}
	if s.HealthyProbes+s.UnhealthyProbes > 0 {
		lines = append(lines, RenderKeyValue("Probe time",
			fmt.Sprintf("p50 %s  p95 %s", formatSeconds(s.ProbeP50), formatSeconds(s.ProbeP95))))
	}
	lines = append(lines,
		RenderKeyValue("Player starts", fmt.Sprintf("%d (%d failed)", s.PlayerStarts, s.FailedStarts)),
		RenderKeyValue("Rogue kills", fmt.Sprintf("%d", s.SweptProcesses)),
	)

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{"q: quit", "r: refresh"}
	if m.metricsAddr != "" {
		shortcuts = append(shortcuts, "metrics: "+m.metricsAddr)
	}

	url := m.status.LiveURL
	if url == "" {
		url = m.liveURL
	}
	url = truncate(url, m.width-50)

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render("Stream: " + url)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	updated := dimStyle.Render("updated " + m.lastUpdate.Format(time.TimeOnly))

	return footerStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Left, left, strings.Repeat(" ", padding), right),
		updated,
	))
}
