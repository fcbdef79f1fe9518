// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TimeoutMsg is delivered when the idle timer fires.
type TimeoutMsg struct {
	Elapsed time.Duration
}

// deferredRetryMsg re-evaluates a deferred lock.
type deferredRetryMsg struct{}

// shakeMsg starts the shake animation after a rejected password.
type shakeMsg struct{}

// shakeTickMsg advances the shake animation.
type shakeTickMsg struct{}

// fadeStartMsg starts the transition after an accepted password.
type fadeStartMsg struct{}

// fadeDoneMsg ends the transition.
type fadeDoneMsg struct{}

// submitDoneMsg reports the end of a password submission.
type submitDoneMsg struct {
	err error
}

const (
	shakeFrames   = 6
	shakeInterval = 50 * time.Millisecond
	fadeDuration  = 300 * time.Millisecond
)

// listen waits for the next event posted by a background goroutine.
func listen(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func shakeTick() tea.Cmd {
	return tea.Tick(shakeInterval, func(time.Time) tea.Msg { return shakeTickMsg{} })
}

func fadeTick() tea.Cmd {
	return tea.Tick(fadeDuration, func(time.Time) tea.Msg { return fadeDoneMsg{} })
}
