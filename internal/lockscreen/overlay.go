// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"context"
	"sync"

	"github.com/jeranaias/invoicelock/internal/security/coordinator"
)

// OverlayState is a snapshot of the overlay for rendering.
type OverlayState struct {
	Locked    bool
	Verifying bool
	Error     string
}

// HasError reports whether an error message is showing.
func (s OverlayState) HasError() bool { return s.Error != "" }

// Overlay controls the in-window lock overlay.
type Overlay struct {
	unlocker Unlocker
	opts     options

	mu        sync.Mutex
	locked    bool
	verifying bool
	errMsg    string

	shake    signal
	fadeOut  signal
	unlocked signal
}

// NewOverlay returns a hidden overlay driven by u.
func NewOverlay(u Unlocker, opts ...Option) *Overlay {
	return &Overlay{
		unlocker: u,
		opts:     buildOptions(opts),
		shake:    signal{name: "ShakeRequested"},
		fadeOut:  signal{name: "FadeOutRequested"},
		unlocked: signal{name: "UnlockSucceeded"},
	}
}

// OnShake subscribes to rejected submissions.
func (o *Overlay) OnShake(fn func()) (unsubscribe func()) { return o.shake.subscribe(fn) }

// OnFadeOut subscribes to accepted submissions. The view should play its
// transition and then call CompleteFadeOut.
func (o *Overlay) OnFadeOut(fn func()) (unsubscribe func()) { return o.fadeOut.subscribe(fn) }

// OnUnlockSucceeded subscribes to the end of a lock cycle.
func (o *Overlay) OnUnlockSucceeded(fn func()) (unsubscribe func()) {
	return o.unlocked.subscribe(fn)
}

// State returns the current overlay state.
func (o *Overlay) State() OverlayState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OverlayState{Locked: o.locked, Verifying: o.verifying, Error: o.errMsg}
}

// CanClose reports whether the host window may close.
func (o *Overlay) CanClose() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.locked
}

// ShowLock activates the overlay and clears transient state.
func (o *Overlay) ShowLock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = true
	o.verifying = false
	o.errMsg = ""
}

// Submit verifies password. Only one submission runs at a time; a second
// caller gets ErrBusy.
func (o *Overlay) Submit(ctx context.Context, password string) (coordinator.UnlockResult, error) {
	o.mu.Lock()
	if o.verifying {
		o.mu.Unlock()
		return coordinator.UnlockResult{}, ErrBusy
	}
	o.verifying = true
	o.errMsg = ""
	o.mu.Unlock()

	res := o.unlocker.TryUnlock(ctx, password)
	msg, shake := describe(res)

	o.mu.Lock()
	o.verifying = false
	o.errMsg = msg
	o.mu.Unlock()

	cycle := o.unlocker.CurrentLockCycleID()
	switch {
	case res.IsSuccess():
		o.fadeOut.emit(cycle, o.opts.log, o.opts.rec)
	case shake:
		o.shake.emit(cycle, o.opts.log, o.opts.rec)
	}
	return res, nil
}

// CompleteFadeOut hides the overlay, ends the lock cycle and notifies
// unlock subscribers. It does nothing when the overlay is not showing.
func (o *Overlay) CompleteFadeOut() {
	o.mu.Lock()
	if !o.locked {
		o.mu.Unlock()
		return
	}
	o.locked = false
	o.errMsg = ""
	o.mu.Unlock()

	cycle := o.unlocker.CurrentLockCycleID()
	o.unlocker.MarkUnlocked()
	o.unlocked.emit(cycle, o.opts.log, o.opts.rec)
}
