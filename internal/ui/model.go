// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/invoicelock/internal/lockscreen"
	"github.com/jeranaias/invoicelock/internal/security/coordinator"
	"github.com/jeranaias/invoicelock/internal/security/policy"
)

// Coordinator is the lock state machine the host drives.
type Coordinator interface {
	HandleInactivityTimeout(s policy.Snapshot) coordinator.TimeoutAction
	MarkLockShown()
	MarkShuttingDown()
	IsShuttingDown() bool
	DeferredRetryInterval() time.Duration
}

// IdleTimer is the inactivity timer the host feeds with activity.
type IdleTimer interface {
	Start()
	RegisterActivity()
	PauseForLock()
	ResumeAfterUnlock()
	OnTimeout(fn func(elapsed time.Duration)) (unsubscribe func())
}

// Config wires the model to the security core.
type Config struct {
	Coordinator Coordinator
	Timer       IdleTimer
	Overlay     *lockscreen.Overlay

	// Dialog is shown before the workspace when set. It must already be
	// initialized.
	Dialog *lockscreen.PasswordDialog

	Logger *slog.Logger
}

// screen is the active view.
type screen int

const (
	screenStartup screen = iota
	screenWorkspace
	screenLocked
)

// Model is the Bubble Tea model for the host application.
type Model struct {
	coord   Coordinator
	timer   IdleTimer
	overlay *lockscreen.Overlay
	dialog  *lockscreen.PasswordDialog
	log     *slog.Logger
	ctx     context.Context
	events  chan tea.Msg

	screen      screen
	width       int
	height      int
	ready       bool
	focused     bool
	confirmQuit bool
	submitting  bool
	fading      bool
	shake       int
	locks       int
	canceled    bool
	status      string

	password textinput.Model
	confirm  textinput.Model
	notes    textinput.Model
}

// New builds the model and subscribes to the timer and lock screen signals.
func New(cfg Config) Model {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	m := Model{
		coord:    cfg.Coordinator,
		timer:    cfg.Timer,
		overlay:  cfg.Overlay,
		dialog:   cfg.Dialog,
		log:      log,
		ctx:      context.Background(),
		events:   make(chan tea.Msg, 16),
		screen:   screenWorkspace,
		focused:  true,
		password: newPasswordInput("Password"),
		confirm:  newPasswordInput("Confirm password"),
		notes:    textinput.New(),
	}
	m.notes.Placeholder = "Invoice notes"
	m.notes.CharLimit = 500

	post := m.post
	m.timer.OnTimeout(func(elapsed time.Duration) { post(TimeoutMsg{Elapsed: elapsed}) })
	m.overlay.OnShake(func() { post(shakeMsg{}) })
	m.overlay.OnFadeOut(func() { post(fadeStartMsg{}) })
	m.overlay.OnUnlockSucceeded(m.timer.ResumeAfterUnlock)

	if m.dialog != nil {
		m.screen = screenStartup
		m.dialog.OnShake(func() { post(shakeMsg{}) })
		m.dialog.OnFadeOut(func() { post(fadeStartMsg{}) })
		m.password.Focus()
	} else {
		m.notes.Focus()
	}
	return m
}

func newPasswordInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 256
	ti.Width = 32
	return ti
}

// post queues msg for the update loop. It drops msg when the queue is full.
func (m Model) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
		m.log.Warn("ui event queue full, dropping event", "event", msg)
	}
}

// Canceled reports whether the user dismissed the startup dialog.
func (m Model) Canceled() bool { return m.canceled }

// Init starts the timer unless the startup dialog is pending.
func (m Model) Init() tea.Cmd {
	if m.screen == screenWorkspace {
		m.timer.Start()
	}
	return tea.Batch(listen(m.events), textinput.Blink)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		return m, nil

	case tea.FocusMsg:
		m.focused = true
		return m, nil

	case tea.BlurMsg:
		m.focused = false
		return m, nil

	case TimeoutMsg:
		m.log.Debug("idle timeout", "elapsed", msg.Elapsed)
		var cmd tea.Cmd
		m, cmd = m.handleTimeout()
		return m, tea.Batch(cmd, listen(m.events))

	case deferredRetryMsg:
		return m.handleTimeout()

	case shakeMsg:
		m.shake = shakeFrames
		return m, tea.Batch(shakeTick(), listen(m.events))

	case shakeTickMsg:
		if m.shake > 0 {
			m.shake--
		}
		if m.shake > 0 {
			return m, shakeTick()
		}
		return m, nil

	case fadeStartMsg:
		m.fading = true
		return m, tea.Batch(fadeTick(), listen(m.events))

	case fadeDoneMsg:
		return m.handleFadeDone()

	case submitDoneMsg:
		return m.handleSubmitDone(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// snapshot describes the host for the lock policy.
func (m Model) snapshot() policy.Snapshot {
	return policy.Snapshot{
		IsAlreadyLocked:    m.screen == screenLocked,
		HasBlockingModal:   m.confirmQuit || m.screen == screenStartup,
		IsShuttingDown:     m.coord.IsShuttingDown(),
		MainWindowReady:    m.ready,
		MainWindowActive:   m.focused,
		VisibleWindowCount: 1,
	}
}

func (m Model) handleTimeout() (Model, tea.Cmd) {
	switch m.coord.HandleInactivityTimeout(m.snapshot()) {
	case coordinator.ShowLock:
		return m.lock(), textinput.Blink
	case coordinator.Defer:
		return m, tea.Tick(m.coord.DeferredRetryInterval(), func(time.Time) tea.Msg {
			return deferredRetryMsg{}
		})
	}
	// The timer disarmed itself when it fired.
	if m.screen == screenWorkspace && !m.coord.IsShuttingDown() {
		m.timer.Start()
	}
	return m, nil
}

func (m Model) lock() Model {
	m.timer.PauseForLock()
	m.overlay.ShowLock()
	m.coord.MarkLockShown()

	m.screen = screenLocked
	m.confirmQuit = false
	m.fading = false
	m.locks++
	m.notes.Blur()
	m.password.Reset()
	m.password.Focus()
	return m
}

func (m Model) handleFadeDone() (tea.Model, tea.Cmd) {
	m.fading = false
	m.password.Reset()
	m.confirm.Reset()
	m.password.Blur()
	m.confirm.Blur()

	switch m.screen {
	case screenStartup:
		m.timer.Start()
	case screenLocked:
		m.overlay.CompleteFadeOut()
	default:
		return m, nil
	}
	m.screen = screenWorkspace
	m.notes.Focus()
	return m, textinput.Blink
}

func (m Model) handleSubmitDone(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.err != nil && !errors.Is(msg.err, lockscreen.ErrBusy) {
		m.log.Error("password submission failed", "error", msg.err)
	}
	if m.fading {
		return m, nil
	}
	m.password.Reset()
	m.confirm.Reset()
	m.confirm.Blur()
	m.password.Focus()
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenStartup:
		return m.handleStartupKey(msg)
	case screenLocked:
		return m.handleLockedKey(msg)
	}
	return m.handleWorkspaceKey(msg)
}

func (m Model) handleStartupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.dialog.Cancel()
		m.canceled = true
		return m.quit()

	case tea.KeyTab, tea.KeyShiftTab:
		if m.dialog.State().ShowConfirm {
			if m.password.Focused() {
				m.password.Blur()
				m.confirm.Focus()
			} else {
				m.confirm.Blur()
				m.password.Focus()
			}
		}
		return m, nil

	case tea.KeyEnter:
		if m.submitting || m.fading {
			return m, nil
		}
		m.submitting = true
		dialog, ctx := m.dialog, m.ctx
		password, confirm := m.password.Value(), m.confirm.Value()
		return m, func() tea.Msg {
			return submitDoneMsg{err: dialog.Submit(ctx, password, confirm)}
		}
	}

	var cmd tea.Cmd
	if m.confirm.Focused() {
		m.confirm, cmd = m.confirm.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) handleLockedKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if !m.overlay.CanClose() {
			m.status = "Unlock the session before quitting."
			return m, nil
		}
		return m.quit()

	case tea.KeyEnter:
		if m.submitting || m.fading {
			return m, nil
		}
		m.submitting = true
		overlay, ctx, password := m.overlay, m.ctx, m.password.Value()
		return m, func() tea.Msg {
			_, err := overlay.Submit(ctx, password)
			return submitDoneMsg{err: err}
		}
	}

	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)
	return m, cmd
}

func (m Model) handleWorkspaceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.timer.RegisterActivity()
	m.status = ""

	if m.confirmQuit {
		switch msg.String() {
		case "y", "Y", "enter":
			return m.quit()
		case "n", "N", "esc":
			m.confirmQuit = false
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()
	case tea.KeyCtrlQ:
		m.confirmQuit = true
		return m, nil
	}

	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.coord.MarkShuttingDown()
	return m, tea.Quit
}
