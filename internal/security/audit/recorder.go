// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Recorder builds taxonomy entries and hands them to a Logger. The zero
// value discards everything.
type Recorder struct {
	sink Logger
	now  func() time.Time
}

// NewRecorder wraps l. A nil logger is replaced by Discard.
func NewRecorder(l Logger) Recorder {
	if l == nil {
		l = Discard
	}
	return Recorder{sink: l, now: time.Now}
}

// WithClock returns a copy of r that stamps entries using now.
func (r Recorder) WithClock(now func() time.Time) Recorder {
	r.now = now
	return r
}

// Logger returns the underlying sink.
func (r Recorder) Logger() Logger {
	if r.sink == nil {
		return Discard
	}
	return r.sink
}

// Log stamps e if needed and delivers it. Sink panics are swallowed.
func (r Recorder) Log(e Entry) {
	if r.sink == nil {
		return
	}
	if e.Timestamp.IsZero() {
		if r.now != nil {
			e.Timestamp = r.now()
		} else {
			e.Timestamp = time.Now()
		}
	}
	safeLog(r.sink, e)
}

func (r Recorder) emit(event EventType, c Correlation, msg string, props ...Prop) {
	r.Log(Entry{
		Event:       event,
		LockCycleID: c.LockCycleID,
		AttemptID:   c.AttemptID,
		Message:     msg,
		Props:       props,
	})
}

func cycle(id uuid.UUID) Correlation {
	return Correlation{LockCycleID: id}
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

// =============================================================================
// LOCK CYCLE
// =============================================================================

// LockState is the environment snapshot reported with a policy decision.
type LockState struct {
	IsAlreadyLocked    bool
	HasBlockingModal   bool
	IsShuttingDown     bool
	SessionIsLocked    bool
	MainWindowReady    bool
	MainWindowActive   bool
	VisibleWindowCount int
}

// InactivityTimeoutFired records that the idle timeout led to a lock.
func (r Recorder) InactivityTimeoutFired(lockCycleID uuid.UUID, elapsed time.Duration) {
	r.emit(EventInactivityTimeoutFired, cycle(lockCycleID), "Inactivity timeout elapsed.",
		Prop{"ElapsedSeconds", roundTo(elapsed.Seconds(), 2)})
}

// LockPolicyDecision records the outcome of a policy evaluation.
func (r Recorder) LockPolicyDecision(lockCycleID uuid.UUID, decision string, s LockState) {
	r.emit(EventLockPolicyDecision, cycle(lockCycleID),
		fmt.Sprintf("Lock policy evaluated: %s.", decision),
		Prop{"Decision", decision},
		Prop{"IsAlreadyLocked", s.IsAlreadyLocked},
		Prop{"HasBlockingModal", s.HasBlockingModal},
		Prop{"IsShuttingDown", s.IsShuttingDown},
		Prop{"SessionIsLocked", s.SessionIsLocked},
		Prop{"MainWindowReady", s.MainWindowReady},
		Prop{"MainWindowActive", s.MainWindowActive},
		Prop{"VisibleWindowCount", s.VisibleWindowCount},
	)
}

// LockScreenShown records that the overlay became visible.
func (r Recorder) LockScreenShown(lockCycleID uuid.UUID) {
	r.emit(EventLockScreenShown, cycle(lockCycleID), "Lock overlay displayed.")
}

// DeferredRetryScheduled records a deferred lock and its position against
// the cap.
func (r Recorder) DeferredRetryScheduled(lockCycleID uuid.UUID, current, max int) {
	r.emit(EventDeferredRetryScheduled, cycle(lockCycleID),
		fmt.Sprintf("Lock deferred (%d/%d); retry scheduled.", current, max),
		Prop{"DeferredAttempt", current},
		Prop{"MaxDeferredAttempts", max},
	)
}

// =============================================================================
// UNLOCK
// =============================================================================

// UnlockAttemptStarted records the beginning of a verification.
func (r Recorder) UnlockAttemptStarted(c Correlation) {
	r.emit(EventUnlockAttemptStarted, c, "Unlock attempt started.")
}

// UnlockSuccess records a successful unlock.
func (r Recorder) UnlockSuccess(c Correlation) {
	r.emit(EventUnlockSuccess, c, "Unlock succeeded.")
}

// UnlockFailed records a rejected unlock attempt.
func (r Recorder) UnlockFailed(c Correlation, status string, failedAttempts int) {
	r.emit(EventUnlockFailed, c, fmt.Sprintf("Unlock failed: %s.", status),
		Prop{"Status", status},
		Prop{"FailedAttempts", failedAttempts},
	)
}

// LockoutStarted records that the failure threshold was reached.
func (r Recorder) LockoutStarted(c Correlation, failedAttempts int, duration time.Duration) {
	r.emit(EventLockoutStarted, c,
		fmt.Sprintf("Account locked out after %d failed attempts.", failedAttempts),
		Prop{"FailedAttempts", failedAttempts},
		Prop{"LockoutDurationSeconds", math.Round(duration.Seconds())},
	)
}

// LockoutExpired records that an elapsed lockout was cleared.
func (r Recorder) LockoutExpired(c Correlation, previousFailedAttempts int) {
	r.emit(EventLockoutExpired, c, "Lockout period expired; failed attempts reset.",
		Prop{"PreviousFailedAttempts", previousFailedAttempts})
}

// LockoutActiveRejection records an attempt refused because of a lockout.
func (r Recorder) LockoutActiveRejection(c Correlation, remaining time.Duration) {
	r.emit(EventLockoutActiveRejection, c, "Unlock attempt rejected, account is locked out.",
		Prop{"LockoutRemainingSeconds", math.Round(remaining.Seconds())})
}

// =============================================================================
// APPLICATION
// =============================================================================

// PasswordSet records that the application password was set or changed.
func (r Recorder) PasswordSet() {
	r.emit(EventPasswordSet, Correlation{}, "Application password was set or changed.")
}

// AppStartupAuth records the outcome of the startup password dialog.
func (r Recorder) AppStartupAuth(mode string, success bool) {
	r.emit(EventAppStartupAuth, Correlation{},
		fmt.Sprintf("Startup authentication completed (mode=%s, success=%t).", mode, success),
		Prop{"Mode", mode},
		Prop{"Success", success},
	)
}

// AppShutdown records application shutdown.
func (r Recorder) AppShutdown() {
	r.emit(EventAppShutdown, Correlation{}, "Application shutting down.")
}

// =============================================================================
// FAILURES
// =============================================================================

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	if err, ok := p.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.Value)
}

// Unwrap exposes the recovered value when it is an error.
func (p *PanicError) Unwrap() error {
	err, _ := p.Value.(error)
	return err
}

// HandlerException records a failure raised by a handler or subscriber.
func (r Recorder) HandlerException(lockCycleID uuid.UUID, handler string, err error) {
	if err == nil {
		return
	}
	var stack string
	errType := reflect.TypeOf(err).String()
	if pe, ok := err.(*PanicError); ok {
		stack = string(pe.Stack)
		errType = "panic"
		if pe.Value != nil {
			errType = "panic(" + reflect.TypeOf(pe.Value).String() + ")"
		}
	}
	r.emit(EventHandlerException, cycle(lockCycleID),
		fmt.Sprintf("%s handler threw an exception.", handler),
		Prop{"HandlerName", handler},
		Prop{"ExceptionType", errType},
		Prop{"ExceptionMessage", err.Error()},
		Prop{"StackTrace", nullable(stack)},
	)
}

// ConfigFallback records an invalid configuration value replaced by its
// default. It is filed under HandlerException, which is the closest
// member of the taxonomy.
func (r Recorder) ConfigFallback(setting string, configured, fallback any) {
	r.emit(EventHandlerException, Correlation{},
		fmt.Sprintf("Invalid config for '%s'; falling back to '%v'.", setting, fallback),
		Prop{"SettingName", setting},
		Prop{"ConfiguredValue", fmt.Sprint(configured)},
		Prop{"FallbackValue", fmt.Sprint(fallback)},
	)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
