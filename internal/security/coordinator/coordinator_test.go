// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/invoicelock/internal/security/audit"
	"github.com/jeranaias/invoicelock/internal/security/auth"
	"github.com/jeranaias/invoicelock/internal/security/policy"
)

// verifierFunc adapts a function to Verifier.
type verifierFunc func(ctx context.Context, password string) (auth.VerificationResult, error)

func (f verifierFunc) VerifyPasswordWithPolicy(ctx context.Context, password string) (auth.VerificationResult, error) {
	return f(ctx, password)
}

func returning(res auth.VerificationResult) verifierFunc {
	return func(context.Context, string) (auth.VerificationResult, error) { return res, nil }
}

func idle() policy.Snapshot {
	return policy.Snapshot{MainWindowReady: true, MainWindowActive: true, VisibleWindowCount: 1}
}

func busy() policy.Snapshot {
	s := idle()
	s.HasBlockingModal = true
	return s
}

func newCoordinator(t *testing.T, v Verifier, opts ...Option) (*Coordinator, *audit.MemoryLogger) {
	t.Helper()
	mem := audit.NewMemoryLogger()
	if v == nil {
		v = returning(auth.VerificationResult{Status: auth.Success})
	}
	c, err := New(v, append([]Option{WithAuditLogger(mem)}, opts...)...)
	require.NoError(t, err)
	return c, mem
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	require.Equal(t, 500*time.Millisecond, c.DeferredRetryInterval())
	require.Equal(t, 20, c.MaxDeferredAttempts())
	require.False(t, c.IsLocked())
	require.False(t, c.IsShuttingDown())
	require.Equal(t, uuid.Nil, c.CurrentLockCycleID())
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	_, err := New(nil, WithDeferredRetryInterval(0))
	require.ErrorIs(t, err, ErrInvalidRetryInterval)

	_, err = New(nil, WithDeferredRetryInterval(-time.Second))
	require.ErrorIs(t, err, ErrInvalidRetryInterval)

	_, err = New(nil, WithMaxDeferredAttempts(0))
	require.ErrorIs(t, err, ErrInvalidMaxDeferredAttempts)
}

// =============================================================================
// TIMEOUT HANDLING
// =============================================================================

func TestHandleInactivityTimeout_ShowLockMintsCycleAndLogs(t *testing.T) {
	c, mem := newCoordinator(t, nil)

	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	cycle := c.CurrentLockCycleID()
	require.NotEqual(t, uuid.Nil, cycle)
	require.Equal(t, uuid.Version(4), cycle.Version())

	decision, ok := mem.First(audit.EventLockPolicyDecision)
	require.True(t, ok)
	require.Equal(t, cycle, decision.LockCycleID)
	d, _ := decision.Prop("Decision")
	require.Equal(t, "ShowLock", d)

	fired, ok := mem.First(audit.EventInactivityTimeoutFired)
	require.True(t, ok)
	require.Equal(t, cycle, fired.LockCycleID)
}

func TestHandleInactivityTimeout_SkipsWhenAlreadyLocked(t *testing.T) {
	c, mem := newCoordinator(t, nil)
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	c.MarkLockShown()
	cycle := c.CurrentLockCycleID()

	// A stale snapshot claiming "not locked" must not override the coordinator.
	require.Equal(t, Skip, c.HandleInactivityTimeout(idle()))
	require.Equal(t, Skip, c.HandleInactivityTimeout(busy()))
	require.Equal(t, cycle, c.CurrentLockCycleID())

	decisions := mem.Filter(audit.EventLockPolicyDecision)
	last := decisions[len(decisions)-1]
	locked, _ := last.Prop("IsAlreadyLocked")
	require.Equal(t, true, locked)
	require.Equal(t, cycle, last.LockCycleID)
	require.Equal(t, 1, mem.Count(audit.EventInactivityTimeoutFired))
}

func TestHandleInactivityTimeout_DeferLogsRetry(t *testing.T) {
	c, mem := newCoordinator(t, nil, WithMaxDeferredAttempts(3))

	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, uuid.Nil, c.CurrentLockCycleID())

	retry, ok := mem.First(audit.EventDeferredRetryScheduled)
	require.True(t, ok)
	require.Equal(t, uuid.Nil, retry.LockCycleID)
	require.Equal(t, []audit.Prop{{Key: "DeferredAttempt", Value: 1}, {Key: "MaxDeferredAttempts", Value: 3}}, retry.Props)
}

func TestHandleInactivityTimeout_ForcesLockAtCap(t *testing.T) {
	c, mem := newCoordinator(t, nil, WithMaxDeferredAttempts(3))

	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(busy()))
	require.NotEqual(t, uuid.Nil, c.CurrentLockCycleID())
	require.Equal(t, 2, mem.Count(audit.EventDeferredRetryScheduled))

	// The counter restarted.
	c.MarkLockShown()
	c.MarkUnlocked()
	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
}

func TestHandleInactivityTimeout_CapOfOneLocksImmediately(t *testing.T) {
	c, _ := newCoordinator(t, nil, WithMaxDeferredAttempts(1))
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(busy()))
}

func TestHandleInactivityTimeout_AllowResetsDeferrals(t *testing.T) {
	c, _ := newCoordinator(t, nil, WithMaxDeferredAttempts(3))

	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))

	// Skip resets the counter too.
	notReady := idle()
	notReady.MainWindowReady = false
	require.Equal(t, Skip, c.HandleInactivityTimeout(notReady))

	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, Defer, c.HandleInactivityTimeout(busy()))
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(busy()))
}

func TestHandleInactivityTimeout_ShutdownWins(t *testing.T) {
	c, mem := newCoordinator(t, nil)
	c.MarkShuttingDown()
	require.True(t, c.IsShuttingDown())

	require.Equal(t, Skip, c.HandleInactivityTimeout(idle()))
	require.Equal(t, uuid.Nil, c.CurrentLockCycleID())

	decision, ok := mem.First(audit.EventLockPolicyDecision)
	require.True(t, ok)
	d, _ := decision.Prop("Decision")
	require.Equal(t, "Skip(ShuttingDown)", d)
	require.Equal(t, 1, mem.Count(audit.EventAppShutdown))
}

func TestHandleInactivityTimeout_UsesInjectedEvaluator(t *testing.T) {
	var seen policy.Snapshot
	eval := policy.EvaluatorFunc(func(s policy.Snapshot) policy.Decision {
		seen = s
		return policy.Skip
	})
	c, _ := newCoordinator(t, nil, WithEvaluator(eval))

	require.Equal(t, Skip, c.HandleInactivityTimeout(idle()))
	require.Equal(t, idle(), seen)
}

func TestConsecutiveLockCycles_HaveDifferentIDs(t *testing.T) {
	c, _ := newCoordinator(t, nil)

	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	first := c.CurrentLockCycleID()
	c.MarkLockShown()
	c.MarkUnlocked()
	require.Equal(t, uuid.Nil, c.CurrentLockCycleID())

	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	second := c.CurrentLockCycleID()
	require.NotEqual(t, uuid.Nil, second)
	require.NotEqual(t, first, second)
}

func TestHandleInactivityTimeout_ConcurrentCallersLockOnce(t *testing.T) {
	c, mem := newCoordinator(t, nil)

	var shows atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.HandleInactivityTimeout(idle()) == ShowLock {
				c.MarkLockShown()
				shows.Add(1)
			}
		}()
	}
	wg.Wait()

	// Deciding and marking are separate calls, so several callers may win
	// before the first MarkLockShown lands. Each win is logged exactly once.
	require.GreaterOrEqual(t, shows.Load(), int32(1))
	require.Equal(t, int(shows.Load()), mem.Count(audit.EventInactivityTimeoutFired))
	require.True(t, c.IsLocked())
}

// =============================================================================
// LOCK STATE
// =============================================================================

func TestMarkLockShown_AndUnlocked(t *testing.T) {
	c, mem := newCoordinator(t, nil)
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	cycle := c.CurrentLockCycleID()

	c.MarkLockShown()
	require.True(t, c.IsLocked())
	shown, ok := mem.First(audit.EventLockScreenShown)
	require.True(t, ok)
	require.Equal(t, cycle, shown.LockCycleID)

	c.MarkUnlocked()
	require.False(t, c.IsLocked())
	require.Equal(t, uuid.Nil, c.CurrentLockCycleID())

	success, ok := mem.First(audit.EventUnlockSuccess)
	require.True(t, ok)
	require.Equal(t, cycle, success.LockCycleID)
	require.Equal(t, uuid.Nil, success.AttemptID)
}

func TestDeferAndSkip_KeepCycleID(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	c.MarkLockShown()
	cycle := c.CurrentLockCycleID()

	c.HandleInactivityTimeout(busy())
	c.HandleInactivityTimeout(idle())
	require.Equal(t, cycle, c.CurrentLockCycleID())
}

// =============================================================================
// UNLOCK
// =============================================================================

func lockedCoordinator(t *testing.T, v Verifier) (*Coordinator, *audit.MemoryLogger, uuid.UUID) {
	t.Helper()
	c, mem := newCoordinator(t, v)
	require.Equal(t, ShowLock, c.HandleInactivityTimeout(idle()))
	c.MarkLockShown()
	mem.Reset()
	return c, mem, c.CurrentLockCycleID()
}

func TestTryUnlock_EmptyPasswordSkipsVerifier(t *testing.T) {
	called := false
	c, mem, cycle := lockedCoordinator(t, verifierFunc(func(context.Context, string) (auth.VerificationResult, error) {
		called = true
		return auth.VerificationResult{}, nil
	}))

	for _, pw := range []string{"", "   ", "\t\n"} {
		res := c.TryUnlock(context.Background(), pw)
		require.Equal(t, UnlockEmptyPassword, res.Status)
		require.Equal(t, "Please enter your password.", res.Message)
		require.False(t, res.IsSuccess())
	}
	require.False(t, called)

	failed := mem.Filter(audit.EventUnlockFailed)
	require.Len(t, failed, 3)
	require.Equal(t, cycle, failed[0].LockCycleID)
	require.NotEqual(t, uuid.Nil, failed[0].AttemptID)
	status, _ := failed[0].Prop("Status")
	require.Equal(t, "EmptyPassword", status)
	require.Zero(t, mem.Count(audit.EventUnlockAttemptStarted))
}

func TestTryUnlock_Success(t *testing.T) {
	var got audit.Correlation
	c, mem, cycle := lockedCoordinator(t, verifierFunc(func(ctx context.Context, pw string) (auth.VerificationResult, error) {
		got = audit.CorrelationFrom(ctx)
		return auth.VerificationResult{Status: auth.Success}, nil
	}))

	res := c.TryUnlock(context.Background(), "hunter22")
	require.True(t, res.IsSuccess())
	require.Empty(t, res.Message)

	require.Equal(t, cycle, got.LockCycleID)
	require.NotEqual(t, uuid.Nil, got.AttemptID)

	started, _ := mem.First(audit.EventUnlockAttemptStarted)
	success, _ := mem.First(audit.EventUnlockSuccess)
	require.Equal(t, got.AttemptID, started.AttemptID)
	require.Equal(t, got.AttemptID, success.AttemptID)

	// TryUnlock does not end the cycle; the host does after its transition.
	require.True(t, c.IsLocked())
	require.Equal(t, cycle, c.CurrentLockCycleID())
}

func TestTryUnlock_AttemptsGetDistinctIDs(t *testing.T) {
	c, mem, _ := lockedCoordinator(t, returning(auth.VerificationResult{Status: auth.InvalidPassword, FailedAttemptCount: 1}))

	c.TryUnlock(context.Background(), "one")
	c.TryUnlock(context.Background(), "two")

	started := mem.Filter(audit.EventUnlockAttemptStarted)
	require.Len(t, started, 2)
	require.NotEqual(t, started[0].AttemptID, started[1].AttemptID)
	require.Equal(t, started[0].LockCycleID, started[1].LockCycleID)
}

func TestTryUnlock_MapsStatuses(t *testing.T) {
	tests := []struct {
		name      string
		result    auth.VerificationResult
		want      UnlockStatus
		message   string
		remaining time.Duration
		event     audit.EventType
	}{
		{
			name:    "invalid",
			result:  auth.VerificationResult{Status: auth.InvalidPassword, FailedAttemptCount: 2},
			want:    UnlockInvalidPassword,
			message: "That didn't work, please try again",
			event:   audit.EventUnlockFailed,
		},
		{
			name:      "locked out",
			result:    auth.VerificationResult{Status: auth.LockedOut, LockoutRemaining: 90 * time.Second},
			want:      UnlockLockedOut,
			message:   "Too many attempts.",
			remaining: 90 * time.Second,
			event:     audit.EventLockoutActiveRejection,
		},
		{
			name:    "not set",
			result:  auth.VerificationResult{Status: auth.PasswordNotSet},
			want:    UnlockPasswordNotSet,
			message: "Password is not configured.",
			event:   audit.EventUnlockFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mem, cycle := lockedCoordinator(t, returning(tt.result))
			res := c.TryUnlock(context.Background(), "guess")
			require.Equal(t, tt.want, res.Status)
			require.Equal(t, tt.message, res.Message)
			require.Equal(t, tt.remaining, res.LockoutRemaining)

			e, ok := mem.First(tt.event)
			require.True(t, ok)
			require.Equal(t, cycle, e.LockCycleID)
		})
	}
}

func TestTryUnlock_InvalidLogsFailureCount(t *testing.T) {
	c, mem, _ := lockedCoordinator(t, returning(auth.VerificationResult{Status: auth.InvalidPassword, FailedAttemptCount: 3}))
	c.TryUnlock(context.Background(), "guess")

	e, _ := mem.First(audit.EventUnlockFailed)
	require.Equal(t, []audit.Prop{{Key: "Status", Value: "InvalidPassword"}, {Key: "FailedAttempts", Value: 3}}, e.Props)
}

func TestTryUnlock_VerifierErrorBecomesErrorStatus(t *testing.T) {
	c, mem, cycle := lockedCoordinator(t, verifierFunc(func(context.Context, string) (auth.VerificationResult, error) {
		return auth.VerificationResult{}, errors.New("database is locked")
	}))

	res := c.TryUnlock(context.Background(), "guess")
	require.Equal(t, UnlockError, res.Status)
	require.Equal(t, "Error verifying password: database is locked", res.Message)

	e, ok := mem.First(audit.EventHandlerException)
	require.True(t, ok)
	require.Equal(t, cycle, e.LockCycleID)
	name, _ := e.Prop("HandlerName")
	require.Equal(t, "TryUnlock", name)
}

func TestTryUnlock_VerifierPanicBecomesErrorStatus(t *testing.T) {
	c, mem, _ := lockedCoordinator(t, verifierFunc(func(context.Context, string) (auth.VerificationResult, error) {
		panic("nil map")
	}))

	var res UnlockResult
	require.NotPanics(t, func() { res = c.TryUnlock(context.Background(), "guess") })
	require.Equal(t, UnlockError, res.Status)
	require.Equal(t, "Error verifying password: nil map", res.Message)
	require.Equal(t, 1, mem.Count(audit.EventHandlerException))
}

func TestTryUnlock_DoesNotBlockTimeoutHandling(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c, _, _ := lockedCoordinator(t, verifierFunc(func(context.Context, string) (auth.VerificationResult, error) {
		close(entered)
		<-release
		return auth.VerificationResult{Status: auth.InvalidPassword}, nil
	}))

	done := make(chan UnlockResult, 1)
	go func() { done <- c.TryUnlock(context.Background(), "slow") }()
	<-entered

	decided := make(chan TimeoutAction, 1)
	go func() { decided <- c.HandleInactivityTimeout(idle()) }()
	select {
	case action := <-decided:
		require.Equal(t, Skip, action)
	case <-time.After(5 * time.Second):
		t.Fatal("HandleInactivityTimeout blocked behind TryUnlock")
	}

	close(release)
	require.Equal(t, UnlockInvalidPassword, (<-done).Status)
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "ShowLock", ShowLock.String())
	require.Equal(t, "Defer", Defer.String())
	require.Equal(t, "Skip", Skip.String())
	require.Equal(t, "EmptyPassword", UnlockEmptyPassword.String())
	require.Equal(t, "Error", UnlockError.String())
}
