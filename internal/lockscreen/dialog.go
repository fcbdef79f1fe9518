// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/invoicelock/internal/security/auth"
	"github.com/jeranaias/invoicelock/internal/security/coordinator"
)

// Mode selects what the password dialog asks for.
type Mode int

const (
	ModeVerify Mode = iota
	ModeSetup
	ModeLockScreen
)

func (m Mode) String() string {
	switch m {
	case ModeSetup:
		return "setup"
	case ModeLockScreen:
		return "lock"
	default:
		return "verify"
	}
}

// Outcome is the final result of the dialog.
type Outcome int

const (
	Pending Outcome = iota
	Succeeded
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "Succeeded"
	case Canceled:
		return "Canceled"
	default:
		return "Pending"
	}
}

// Dialog hint and button texts.
const (
	HintSetup      = "Choose a password you will remember. Minimum 8 characters."
	HintLockScreen = "Session locked after inactivity. Enter your password to continue."

	LabelSetup  = "Set Password"
	LabelVerify = "Continue"
	LabelUnlock = "Unlock"
)

// PasswordStore is the part of the authenticator the dialog uses.
type PasswordStore interface {
	IsPasswordSet(ctx context.Context) (bool, error)
	SetPassword(ctx context.Context, password string) error
}

// DialogState is a snapshot of the dialog for rendering.
type DialogState struct {
	Mode        Mode
	Hint        string
	SubmitLabel string
	ShowConfirm bool
	Verifying   bool
	Error       string
	Outcome     Outcome
}

// PasswordDialog controls the startup password prompt. In setup mode it
// asks for a new password and its confirmation; otherwise it verifies.
type PasswordDialog struct {
	verifier   Verifier
	passwords  PasswordStore
	lockScreen bool
	opts       options

	mu        sync.Mutex
	mode      Mode
	verifying bool
	errMsg    string
	outcome   Outcome

	shake   signal
	fadeOut signal
}

// NewPasswordDialog returns a dialog. Call Initialize before use.
// lockScreen selects the re-authentication variant shown after inactivity.
func NewPasswordDialog(v Verifier, p PasswordStore, lockScreen bool, opts ...Option) *PasswordDialog {
	return &PasswordDialog{
		verifier:   v,
		passwords:  p,
		lockScreen: lockScreen,
		opts:       buildOptions(opts),
		shake:      signal{name: "ShakeRequested"},
		fadeOut:    signal{name: "FadeOutRequested"},
	}
}

// OnShake subscribes to rejected submissions.
func (d *PasswordDialog) OnShake(fn func()) (unsubscribe func()) { return d.shake.subscribe(fn) }

// OnFadeOut subscribes to a successful outcome.
func (d *PasswordDialog) OnFadeOut(fn func()) (unsubscribe func()) { return d.fadeOut.subscribe(fn) }

// Initialize picks the dialog mode.
func (d *PasswordDialog) Initialize(ctx context.Context) error {
	mode := ModeLockScreen
	if !d.lockScreen {
		set, err := d.passwords.IsPasswordSet(ctx)
		if err != nil {
			return fmt.Errorf("failed to check password state: %w", err)
		}
		mode = ModeVerify
		if !set {
			mode = ModeSetup
		}
	}

	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()
	return nil
}

// State returns the current dialog state.
func (d *PasswordDialog) State() DialogState {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := DialogState{
		Mode:      d.mode,
		Verifying: d.verifying,
		Error:     d.errMsg,
		Outcome:   d.outcome,
	}
	switch d.mode {
	case ModeSetup:
		s.Hint, s.SubmitLabel, s.ShowConfirm = HintSetup, LabelSetup, true
	case ModeLockScreen:
		s.Hint, s.SubmitLabel = HintLockScreen, LabelUnlock
	default:
		s.SubmitLabel = LabelVerify
	}
	return s
}

// Cancel closes the dialog without authenticating.
func (d *PasswordDialog) Cancel() {
	d.mu.Lock()
	if d.outcome != Pending {
		d.mu.Unlock()
		return
	}
	d.outcome = Canceled
	mode := d.mode
	d.mu.Unlock()

	if mode != ModeLockScreen {
		d.opts.rec.AppStartupAuth(mode.String(), false)
	}
}

// Submit handles the submit button. confirm is only read in setup mode.
func (d *PasswordDialog) Submit(ctx context.Context, password, confirm string) error {
	d.mu.Lock()
	if d.verifying {
		d.mu.Unlock()
		return ErrBusy
	}
	d.verifying = true
	d.errMsg = ""
	mode := d.mode
	d.mu.Unlock()

	var msg string
	var shake bool
	if mode == ModeSetup {
		msg, shake = d.setup(ctx, password, confirm)
	} else {
		msg, shake = d.verify(ctx, password)
	}

	d.mu.Lock()
	d.verifying = false
	d.errMsg = msg
	success := msg == "" && !shake
	if success {
		d.outcome = Succeeded
	}
	d.mu.Unlock()

	switch {
	case success:
		d.fadeOut.emit(uuid.Nil, d.opts.log, d.opts.rec)
	case shake:
		d.shake.emit(uuid.Nil, d.opts.log, d.opts.rec)
	}
	return nil
}

func (d *PasswordDialog) setup(ctx context.Context, password, confirm string) (string, bool) {
	if v := auth.ValidateNewPassword(password, confirm); v != auth.Valid {
		return v.Message(), true
	}
	if err := d.passwords.SetPassword(ctx, password); err != nil {
		d.opts.log.Error("failed to set password", "error", err)
		return fmt.Sprintf("Error setting password: %v", err), true
	}
	d.opts.rec.AppStartupAuth(ModeSetup.String(), true)
	return "", false
}

func (d *PasswordDialog) verify(ctx context.Context, password string) (string, bool) {
	res := d.verifier.TryUnlock(ctx, password)
	if res.Status != coordinator.UnlockSuccess {
		msg, shake := describe(res)
		// A failed attempt always leaves a message.
		if msg == "" {
			msg = coordinator.MsgInvalidPassword
		}
		return msg, shake
	}
	d.opts.rec.AppStartupAuth(ModeVerify.String(), true)
	return "", false
}
