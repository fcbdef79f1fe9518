// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/invoicelock/internal/lockscreen"
)

// View implements tea.Model.
func (m Model) View() string {
	switch m.screen {
	case screenStartup:
		return m.viewDialog()
	case screenLocked:
		return m.viewLocked()
	}
	return m.viewWorkspace()
}

// dimensions returns the screen size, defaulting before the first resize.
func (m Model) dimensions() (width, height, boxWidth int) {
	width, height = m.width, m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}
	boxWidth = width - 8
	if boxWidth < 40 {
		boxWidth = 40
	}
	if boxWidth > 60 {
		boxWidth = 60
	}
	return width, height, boxWidth
}

// truncate cuts s to at most width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// place centers box on a dimmed background. While shaking, the box is
// nudged sideways on alternate frames.
func (m Model) place(box string) string {
	width, height, _ := m.dimensions()
	if m.shake%2 == 1 {
		box = lipgloss.NewStyle().MarginLeft(2).Render(box)
	}
	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		box,
		lipgloss.WithWhitespaceBackground(SurfaceDim),
	)
}

func (m Model) viewLocked() string {
	_, _, boxWidth := m.dimensions()
	state := m.overlay.State()

	var parts []string
	if m.fading {
		parts = append(parts, okStyle.Render(IconUnlock+" Unlocked"))
		return m.place(boxStyle(Emerald, boxWidth).Render(lipgloss.JoinVertical(lipgloss.Center, parts...)))
	}

	parts = append(parts,
		titleStyle.Render(IconLock+" Session Locked"),
		"",
		hintStyle.Width(boxWidth-8).Align(lipgloss.Center).Render(lockscreen.HintLockScreen),
		"",
		m.password.View(),
		"",
	)

	switch {
	case state.Verifying || m.submitting:
		parts = append(parts, mutedStyle.Render("Verifying..."))
	case state.HasError():
		parts = append(parts, errorStyle.Render(truncate(IconError+" "+state.Error, boxWidth-8)))
	default:
		parts = append(parts, mutedStyle.Render("Enter to "+strings.ToLower(lockscreen.LabelUnlock)))
	}
	if m.status != "" {
		parts = append(parts, "", mutedStyle.Render(truncate(m.status, boxWidth-8)))
	}

	border := Purple
	if state.HasError() {
		border = Rose
	}
	return m.place(boxStyle(border, boxWidth).Render(lipgloss.JoinVertical(lipgloss.Center, parts...)))
}

func (m Model) viewDialog() string {
	_, _, boxWidth := m.dimensions()
	state := m.dialog.State()

	if m.fading {
		return m.place(boxStyle(Emerald, boxWidth).Render(okStyle.Render(IconUnlock + " Welcome")))
	}

	title := "Welcome back"
	if state.Mode == lockscreen.ModeSetup {
		title = "Set up a password"
	}

	parts := []string{titleStyle.Render(title), ""}
	if state.Hint != "" {
		parts = append(parts, hintStyle.Width(boxWidth-8).Align(lipgloss.Center).Render(state.Hint), "")
	}
	parts = append(parts, m.password.View())
	if state.ShowConfirm {
		parts = append(parts, m.confirm.View())
	}
	parts = append(parts, "")

	switch {
	case state.Verifying || m.submitting:
		parts = append(parts, mutedStyle.Render("Verifying..."))
	case state.Error != "":
		parts = append(parts, errorStyle.Render(IconError+" "+state.Error))
	default:
		help := fmt.Sprintf("Enter: %s  Esc: cancel", state.SubmitLabel)
		if state.ShowConfirm {
			help = "Tab: next field  " + help
		}
		parts = append(parts, mutedStyle.Render(help))
	}

	border := Cyan
	if state.Error != "" {
		border = Rose
	}
	return m.place(boxStyle(border, boxWidth).Render(lipgloss.JoinVertical(lipgloss.Center, parts...)))
}

func (m Model) viewWorkspace() string {
	width, _, boxWidth := m.dimensions()

	var b strings.Builder
	b.WriteString(titleStyle.Render("invoicelock"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  draft invoice  locks this session: %d", m.locks)))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Notes"))
	b.WriteString("\n")
	b.WriteString(m.notes.View())
	b.WriteString("\n\n")

	if m.status != "" {
		b.WriteString(mutedStyle.Render(truncate(m.status, width)))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Width(width).Render("Ctrl+Q: quit  Ctrl+C: quit now"))

	if !m.confirmQuit {
		return b.String()
	}

	prompt := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(Amber).Bold(true).Render(IconWarning+" Quit invoicelock?"),
		"",
		mutedStyle.Render("y: quit  n: stay"),
	)
	return m.place(boxStyle(Amber, boxWidth).Render(prompt))
}
