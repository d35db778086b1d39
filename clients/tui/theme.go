// Package tui provides a terminal dashboard for pending approvals.
package tui

import "github.com/charmbracelet/lipgloss"

// Adaptive colors (light/dark terminal detection).
var (
	ColorTitle    = lipgloss.AdaptiveColor{Light: "#0070F3", Dark: "#79C0FF"}
	ColorLow      = lipgloss.AdaptiveColor{Light: "#065F46", Dark: "#7EE2B8"}
	ColorMedium   = lipgloss.AdaptiveColor{Light: "#92400E", Dark: "#FBBF24"}
	ColorHigh     = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FB923C"}
	ColorCritical = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#FF6B6B"}
	ColorMuted    = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	ColorStatusBg = lipgloss.AdaptiveColor{Light: "#F3F4F6", Dark: "#1F2937"}
	ColorStatusFg = lipgloss.AdaptiveColor{Light: "#374151", Dark: "#D1D5DB"}
	ColorSelected = lipgloss.AdaptiveColor{Light: "#E0E7FF", Dark: "#312E81"}
)

// Component styles.
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorTitle).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StatusBarStyle = lipgloss.NewStyle().
			Background(ColorStatusBg).
			Foreground(ColorStatusFg).
			Padding(0, 1)

	SelectedStyle = lipgloss.NewStyle().
			Background(ColorSelected)

	StoppedStyle = lipgloss.NewStyle().
			Foreground(ColorCritical).
			Bold(true)

	riskStyles = map[string]lipgloss.Style{
		"low":      lipgloss.NewStyle().Foreground(ColorLow),
		"medium":   lipgloss.NewStyle().Foreground(ColorMedium),
		"high":     lipgloss.NewStyle().Foreground(ColorHigh),
		"critical": lipgloss.NewStyle().Foreground(ColorCritical).Bold(true),
	}
)

// RiskStyle returns the style for a risk level, defaulting to medium.
func RiskStyle(level string) lipgloss.Style {
	if s, ok := riskStyles[level]; ok {
		return s
	}
	return riskStyles["medium"]
}
