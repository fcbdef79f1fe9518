// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lockscreen holds the presentation logic behind the lock overlay
// and the startup password dialog. Rendering lives elsewhere; controllers
// here expose state plus three signals the view reacts to:
//
//   - shake: the submitted password was rejected
//   - fade-out: the password was accepted and the view should animate away
//   - unlock succeeded: the overlay is gone and the session resumes
package lockscreen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/invoicelock/internal/security/audit"
	"github.com/jeranaias/invoicelock/internal/security/coordinator"
	"github.com/jeranaias/invoicelock/internal/util"
)

// ErrBusy is returned by Submit while a previous submission is still
// being verified.
var ErrBusy = errors.New("lockscreen: verification already in progress")

// Verifier runs an unlock attempt.
type Verifier interface {
	TryUnlock(ctx context.Context, password string) coordinator.UnlockResult
}

// Unlocker is the part of the coordinator the lock overlay drives.
type Unlocker interface {
	Verifier
	CurrentLockCycleID() uuid.UUID
	MarkUnlocked()
}

// Option configures an Overlay or PasswordDialog.
type Option func(*options)

type options struct {
	rec audit.Recorder
	log *slog.Logger
}

// WithAuditLogger sets the security log sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(o *options) { o.rec = audit.NewRecorder(l) }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{rec: audit.NewRecorder(nil), log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LockedOutMessage is shown while the account is locked out.
func LockedOutMessage(remaining time.Duration) string {
	return fmt.Sprintf("Too many attempts. Try again in %s.", util.FormatCountdown(remaining))
}

// describe maps an unlock result to the error text shown to the user and
// whether the view should shake. Success yields an empty message.
func describe(res coordinator.UnlockResult) (msg string, shake bool) {
	switch res.Status {
	case coordinator.UnlockSuccess:
		return "", false
	case coordinator.UnlockLockedOut:
		return LockedOutMessage(res.LockoutRemaining), false
	case coordinator.UnlockPasswordNotSet:
		return coordinator.MsgNotConfigured, false
	default:
		return res.Message, true
	}
}
