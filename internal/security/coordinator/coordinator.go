// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coordinator owns the lock state of the application.
//
// It turns idle timeouts into lock decisions, tracks the current lock
// cycle, caps how often a lock may be deferred, and runs unlock attempts
// through the password authenticator. Every decision is written to the
// security log with the lock cycle and attempt identifiers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/invoicelock/internal/security/audit"
	"github.com/jeranaias/invoicelock/internal/security/auth"
	"github.com/jeranaias/invoicelock/internal/security/policy"
)

const (
	// DefaultDeferredRetryInterval is the wait before re-evaluating a deferred lock.
	DefaultDeferredRetryInterval = 500 * time.Millisecond

	// DefaultMaxDeferredAttempts is the number of deferrals after which a
	// lock is forced.
	DefaultMaxDeferredAttempts = 20
)

var (
	ErrInvalidRetryInterval       = errors.New("coordinator: deferred retry interval must be greater than zero")
	ErrInvalidMaxDeferredAttempts = errors.New("coordinator: maximum deferred attempts must be at least 1")
)

// User-facing unlock messages.
const (
	MsgEnterPassword   = "Please enter your password."
	MsgTooManyAttempts = "Too many attempts."
	MsgNotConfigured   = "Password is not configured."
	MsgInvalidPassword = "That didn't work, please try again"
)

// =============================================================================
// TYPES
// =============================================================================

// TimeoutAction tells the host what to do after an inactivity timeout.
type TimeoutAction int

const (
	ShowLock TimeoutAction = iota
	Defer
	Skip
)

func (a TimeoutAction) String() string {
	switch a {
	case ShowLock:
		return "ShowLock"
	case Defer:
		return "Defer"
	case Skip:
		return "Skip"
	default:
		return fmt.Sprintf("TimeoutAction(%d)", int(a))
	}
}

// UnlockStatus is the outcome of TryUnlock.
type UnlockStatus int

const (
	UnlockSuccess UnlockStatus = iota
	UnlockEmptyPassword
	UnlockInvalidPassword
	UnlockLockedOut
	UnlockPasswordNotSet
	UnlockError
)

func (s UnlockStatus) String() string {
	switch s {
	case UnlockSuccess:
		return "Success"
	case UnlockEmptyPassword:
		return "EmptyPassword"
	case UnlockInvalidPassword:
		return "InvalidPassword"
	case UnlockLockedOut:
		return "LockedOut"
	case UnlockPasswordNotSet:
		return "PasswordNotSet"
	case UnlockError:
		return "Error"
	default:
		return fmt.Sprintf("UnlockStatus(%d)", int(s))
	}
}

// UnlockResult is returned by TryUnlock.
type UnlockResult struct {
	Status           UnlockStatus
	Message          string
	LockoutRemaining time.Duration
}

// IsSuccess reports whether the password was accepted.
func (r UnlockResult) IsSuccess() bool { return r.Status == UnlockSuccess }

// Verifier checks a password against the stored credential.
type Verifier interface {
	VerifyPasswordWithPolicy(ctx context.Context, password string) (auth.VerificationResult, error)
}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEvaluator replaces the default lock policy.
func WithEvaluator(e policy.Evaluator) Option {
	return func(c *Coordinator) {
		if e != nil {
			c.evaluator = e
		}
	}
}

// WithDeferredRetryInterval sets how long the host waits before retrying a
// deferred lock.
func WithDeferredRetryInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.retryInterval = d }
}

// WithMaxDeferredAttempts sets the deferral cap.
func WithMaxDeferredAttempts(n int) Option {
	return func(c *Coordinator) { c.maxDeferred = n }
}

// WithAuditLogger sets the security log sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(c *Coordinator) { c.rec = audit.NewRecorder(l) }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator is safe for concurrent use. State methods hold an internal
// mutex for their whole decide-and-mutate sequence; TryUnlock releases it
// while the password is verified.
type Coordinator struct {
	verifier      Verifier
	evaluator     policy.Evaluator
	retryInterval time.Duration
	maxDeferred   int
	rec           audit.Recorder
	log           *slog.Logger

	mu           sync.Mutex
	locked       bool
	shuttingDown bool
	cycleID      uuid.UUID
	deferred     int
}

// New creates a Coordinator that verifies passwords with v.
func New(v Verifier, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		verifier:      v,
		evaluator:     policy.Default{},
		retryInterval: DefaultDeferredRetryInterval,
		maxDeferred:   DefaultMaxDeferredAttempts,
		rec:           audit.NewRecorder(nil),
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.retryInterval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRetryInterval, c.retryInterval)
	}
	if c.maxDeferred < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxDeferredAttempts, c.maxDeferred)
	}
	return c, nil
}

// DeferredRetryInterval returns the configured retry interval.
func (c *Coordinator) DeferredRetryInterval() time.Duration { return c.retryInterval }

// MaxDeferredAttempts returns the configured deferral cap.
func (c *Coordinator) MaxDeferredAttempts() int { return c.maxDeferred }

// IsLocked reports whether the lock screen is shown.
func (c *Coordinator) IsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// IsShuttingDown reports whether MarkShuttingDown has been called.
func (c *Coordinator) IsShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuttingDown
}

// CurrentLockCycleID returns the active lock cycle, or uuid.Nil.
func (c *Coordinator) CurrentLockCycleID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleID
}

func lockState(s policy.Snapshot) audit.LockState {
	return audit.LockState{
		IsAlreadyLocked:    s.IsAlreadyLocked,
		HasBlockingModal:   s.HasBlockingModal,
		IsShuttingDown:     s.IsShuttingDown,
		SessionIsLocked:    s.SessionIsLocked,
		MainWindowReady:    s.MainWindowReady,
		MainWindowActive:   s.MainWindowActive,
		VisibleWindowCount: s.VisibleWindowCount,
	}
}

// HandleInactivityTimeout decides what an idle timeout should do given the
// host's current state. ShowLock mints a new lock cycle; the host must then
// show the overlay and call MarkLockShown. Defer asks the host to call
// again after DeferredRetryInterval.
func (c *Coordinator) HandleInactivityTimeout(s policy.Snapshot) TimeoutAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shuttingDown {
		c.rec.LockPolicyDecision(c.cycleID, "Skip(ShuttingDown)", lockState(s))
		return Skip
	}

	// The coordinator's own flags win over a stale snapshot.
	state := s
	state.IsAlreadyLocked = s.IsAlreadyLocked || c.locked
	state.IsShuttingDown = s.IsShuttingDown || c.shuttingDown

	var action TimeoutAction
	switch c.evaluator.Evaluate(state) {
	case policy.Allow:
		c.deferred = 0
		if state.IsAlreadyLocked {
			action = Skip
		} else {
			c.cycleID = uuid.New()
			action = ShowLock
		}

	case policy.Defer:
		if state.IsAlreadyLocked {
			action = Skip
			break
		}
		c.deferred++
		if c.deferred >= c.maxDeferred {
			c.log.Warn("lock deferred too many times; forcing lock", "attempts", c.deferred)
			c.deferred = 0
			c.cycleID = uuid.New()
			action = ShowLock
		} else {
			action = Defer
			c.rec.DeferredRetryScheduled(c.cycleID, c.deferred, c.maxDeferred)
		}

	default:
		c.deferred = 0
		action = Skip
	}

	c.rec.LockPolicyDecision(c.cycleID, action.String(), lockState(state))
	if action == ShowLock {
		c.rec.InactivityTimeoutFired(c.cycleID, 0)
	}
	c.log.Debug("inactivity timeout handled", "action", action, "cycle", c.cycleID)
	return action
}

// MarkLockShown records that the lock overlay is visible.
func (c *Coordinator) MarkLockShown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.locked = true
	c.deferred = 0
	c.rec.LockScreenShown(c.cycleID)
}

// MarkUnlocked ends the current lock cycle. Call it only after a
// successful unlock.
func (c *Coordinator) MarkUnlocked() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cycle := c.cycleID
	c.locked = false
	c.deferred = 0
	c.cycleID = uuid.Nil
	c.rec.UnlockSuccess(audit.Correlation{LockCycleID: cycle})
}

// MarkShuttingDown stops all future lock cycles. It is irreversible and
// does not interrupt an unlock already in progress.
func (c *Coordinator) MarkShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shuttingDown = true
	c.deferred = 0
	c.rec.AppShutdown()
}

// TryUnlock verifies password for the current lock cycle. It never
// returns an error; failures of the verifier, including panics, are
// reported as UnlockError.
func (c *Coordinator) TryUnlock(ctx context.Context, password string) (result UnlockResult) {
	corr := audit.Correlation{
		LockCycleID: c.CurrentLockCycleID(),
		AttemptID:   uuid.New(),
	}

	if strings.TrimSpace(password) == "" {
		c.rec.UnlockFailed(corr, UnlockEmptyPassword.String(), 0)
		return UnlockResult{Status: UnlockEmptyPassword, Message: MsgEnterPassword}
	}

	c.rec.UnlockAttemptStarted(corr)

	defer func() {
		if r := recover(); r != nil {
			result = c.unlockError(corr, &audit.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	res, err := c.verifier.VerifyPasswordWithPolicy(audit.WithCorrelation(ctx, corr), password)
	if err != nil {
		return c.unlockError(corr, err)
	}

	switch res.Status {
	case auth.Success:
		c.rec.UnlockSuccess(corr)
		return UnlockResult{Status: UnlockSuccess}

	case auth.LockedOut:
		c.rec.LockoutActiveRejection(corr, res.LockoutRemaining)
		return UnlockResult{
			Status:           UnlockLockedOut,
			Message:          MsgTooManyAttempts,
			LockoutRemaining: res.LockoutRemaining,
		}

	case auth.PasswordNotSet:
		c.rec.UnlockFailed(corr, UnlockPasswordNotSet.String(), 0)
		return UnlockResult{Status: UnlockPasswordNotSet, Message: MsgNotConfigured}

	default:
		c.rec.UnlockFailed(corr, UnlockInvalidPassword.String(), res.FailedAttemptCount)
		return UnlockResult{Status: UnlockInvalidPassword, Message: MsgInvalidPassword}
	}
}

func (c *Coordinator) unlockError(corr audit.Correlation, err error) UnlockResult {
	c.log.Error("password verification failed", "error", err, "cycle", corr.LockCycleID)
	c.rec.HandlerException(corr.LockCycleID, "TryUnlock", err)
	return UnlockResult{
		Status:  UnlockError,
		Message: fmt.Sprintf("Error verifying password: %v", err),
	}
}
