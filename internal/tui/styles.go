// Package tui provides a live terminal dashboard for the viewer.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows the current display state, the last health check and
// the run counters.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-livestream-viewer/internal/state"
)

// =============================================================================
// Palette
// =============================================================================

var (
	accent    = lipgloss.Color("#2563EB") // Blue
	accentAlt = lipgloss.Color("#14B8A6") // Teal

	good = lipgloss.Color("#22C55E") // Green
	warn = lipgloss.Color("#EAB308") // Yellow
	bad  = lipgloss.Color("#DC2626") // Red

	fg      = lipgloss.Color("#F3F4F6")
	fgMuted = lipgloss.Color("#A1A1AA")
	fgDim   = lipgloss.Color("#71717A")
	edge    = lipgloss.Color("#3F3F46")
)

// bold returns a bold style in color c.
func bold(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(fgDim)
	footerStyle = lipgloss.NewStyle().Foreground(fgMuted).MarginTop(1)
	labelStyle  = lipgloss.NewStyle().Foreground(fgMuted).Width(20)

	headerStyle = bold(fg).Background(accent).Padding(0, 1).MarginBottom(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(edge).
			Padding(0, 1)

	sectionHeaderStyle = bold(accentAlt).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(edge)

	valueStyle     = bold(fg)
	valueGoodStyle = bold(good)
	valueWarnStyle = bold(warn)
	valueBadStyle  = bold(bad)

	barFullStyle  = lipgloss.NewStyle().Foreground(accent)
	barEmptyStyle = lipgloss.NewStyle().Foreground(edge)
)

// =============================================================================
// State Indicator
// =============================================================================

// StateStyle returns the style used for a display state.
func StateStyle(s state.State) lipgloss.Style {
	switch s {
	case state.Livestream:
		return valueGoodStyle
	case state.OffAir:
		return valueWarnStyle
	case state.Offline:
		return valueBadStyle
	default:
		return dimStyle
	}
}

// StateLabel returns a styled state name with a status dot.
func StateLabel(s state.State) string {
	return StateStyle(s).Render("● " + s.String())
}

// BoolLabel renders yes/no in good/bad colors.
func BoolLabel(v bool, yes, no string) string {
	if v {
		return valueGoodStyle.Render(yes)
	}
	return valueBadStyle.Render(no)
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders progress (0 to 1) as a bar of at least 10 cells
// followed by the percentage.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(progress*float64(width)), 0), width)

	return barFullStyle.Render(repeatChar('█', filled)) +
		barEmptyStyle.Render(repeatChar('░', width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	return strings.Repeat(string(char), count)
}
