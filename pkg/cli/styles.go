// Package cli provides terminal presentation helpers for the audioident
// command-line tools.
package cli

import "github.com/charmbracelet/lipgloss"

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Warn    lipgloss.Color // Attention color for skips and failures
	Dim     lipgloss.Color // Dimmed/secondary text color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Warn:    lipgloss.Color("#ff7b72"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Warn  lipgloss.Style
	Dim   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Warn:  lipgloss.NewStyle().Foreground(t.Warn),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}
