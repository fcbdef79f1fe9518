// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the terminal host for invoicelock, built on Bubble Tea.
//
// The model owns three screens: the startup password dialog, the invoice
// workspace and the lock overlay. Idle timeouts arrive from the timer
// goroutine through an event channel and are turned into lock decisions
// by the coordinator.
//
// # Usage
//
//	m := ui.New(ui.Config{
//	    Coordinator: coord,
//	    Timer:       timer,
//	    Overlay:     overlay,
//	    Dialog:      dialog,
//	})
//	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())
//	_, err := p.Run()
package ui
