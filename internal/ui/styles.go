// Package ui renders batch progress on the console with lipgloss styling.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	Blue    = lipgloss.Color("#3B82F6")
	Green   = lipgloss.Color("#22C55E")
	Red     = lipgloss.Color("#EF4444")
	Amber   = lipgloss.Color("#F59E0B")
	DimGray = lipgloss.Color("#9CA3AF")
)

// Text styles.
var (
	// TitleStyle for the banner heading.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Blue)

	// SuccessStyle for per-item success lines and healthy summaries.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	// ErrorStyle for per-item failure lines and poor summaries.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	// WarningStyle for degraded summaries.
	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// DimStyle for paths and secondary detail.
	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	// BoxStyle frames the final summary block.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Blue).
			Padding(0, 1)
)
