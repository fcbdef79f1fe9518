// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLOR PALETTE
// =============================================================================

var (
	Purple  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

// Status glyphs.
const (
	IconLock    = "🔒"
	IconUnlock  = "🔓"
	IconWarning = "⚠"
	IconError   = "✗"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().Foreground(Purple).Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(TextSecondary).
			Italic(true)

	errorStyle = lipgloss.NewStyle().Foreground(Rose).Bold(true)

	okStyle = lipgloss.NewStyle().Foreground(Emerald).Bold(true)

	mutedStyle = lipgloss.NewStyle().Foreground(TextMuted)

	labelStyle = lipgloss.NewStyle().Foreground(TextPrimary).Bold(true)
)

// boxStyle returns the bordered dialog frame.
func boxStyle(border lipgloss.TerminalColor, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Padding(1, 3).
		Width(width).
		Align(lipgloss.Center)
}
