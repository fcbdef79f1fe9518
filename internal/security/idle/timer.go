// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package idle detects user inactivity.
//
// A Timer records the monotonic timestamp of the last user activity and
// periodically compares it with the configured timeout. When the timeout
// is crossed the timer disarms itself and notifies its subscribers once.
// It stays quiet until the host calls Start or ResumeAfterUnlock again.
//
//	t, err := idle.New(5*time.Minute)
//	unsubscribe := t.OnTimeout(func(elapsed time.Duration) { ... })
//	t.Start()
//	defer t.Close()
package idle

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/invoicelock/internal/security/audit"
)

// DefaultCheckInterval is how often the background check runs.
const DefaultCheckInterval = time.Second

var (
	// ErrInvalidTimeout is returned by New for a zero or negative timeout.
	ErrInvalidTimeout = errors.New("idle: timeout must be greater than zero")

	// ErrInvalidFrequency is returned by New when the timestamp source
	// reports a non-positive frequency.
	ErrInvalidFrequency = errors.New("idle: timestamp frequency must be greater than zero")
)

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Timer.
type Option func(*Timer)

// WithTimestampSource replaces the monotonic clock.
func WithTimestampSource(src TimestampSource) Option {
	return func(t *Timer) {
		if src != nil {
			t.source = src
		}
	}
}

// WithCheckInterval sets how often the background check runs.
func WithCheckInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithAuditLogger reports handler failures to the security log.
func WithAuditLogger(l audit.Logger) Option {
	return func(t *Timer) { t.rec = audit.NewRecorder(l) }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) {
		if l != nil {
			t.log = l
		}
	}
}

// =============================================================================
// TIMER
// =============================================================================

type subscriber struct {
	id uint64
	fn func(elapsed time.Duration)
}

// Timer fires a one-shot timeout after a period without activity.
//
// RegisterActivity and Check may be called from any goroutine. Timeout
// handlers run on the goroutine that performed the winning Check; they may
// call Stop, PauseForLock or ResumeAfterUnlock but must not call Close.
type Timer struct {
	timeout  time.Duration
	source   TimestampSource
	interval time.Duration
	rec      audit.Recorder
	log      *slog.Logger

	lastActivity atomic.Int64
	running      atomic.Bool
	closed       atomic.Bool

	// mu guards the lifecycle flags below, the ticker goroutine and the
	// subscriber list. It also serialises the fire transition.
	mu      sync.Mutex
	started bool
	paused  bool
	stop    chan struct{}
	subs    []subscriber
	nextID  uint64

	// deliverMu is held for the duration of a timeout delivery so Close
	// can wait for it.
	deliverMu sync.Mutex
	wg        sync.WaitGroup
}

// New creates a stopped Timer.
func New(timeout time.Duration, opts ...Option) (*Timer, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeout, timeout)
	}

	t := &Timer{
		timeout:  timeout,
		source:   MonotonicSource{},
		interval: DefaultCheckInterval,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if f := t.source.Frequency(); f <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrequency, f)
	}

	t.lastActivity.Store(t.source.Timestamp())
	return t, nil
}

// Timeout returns the configured inactivity timeout.
func (t *Timer) Timeout() time.Duration { return t.timeout }

// Start resets the activity window and arms the timer. If the timer is
// paused it stays quiet until ResumeAfterUnlock.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}

	t.started = true
	t.lastActivity.Store(t.source.Timestamp())
	if t.paused {
		return
	}
	t.running.Store(true)
	t.startTickerLocked()
}

// Stop disarms the timer and forgets the started intent.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}

	t.started = false
	t.running.Store(false)
	t.stopTickerLocked()
}

// RegisterActivity marks the current instant as the last user activity.
func (t *Timer) RegisterActivity() {
	if t.closed.Load() {
		return
	}
	t.lastActivity.Store(t.source.Timestamp())
}

// PauseForLock suppresses timeouts while the lock screen is up.
func (t *Timer) PauseForLock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}

	t.paused = true
	t.running.Store(false)
	t.stopTickerLocked()
}

// ResumeAfterUnlock clears a pause and, if the timer was started, re-arms
// it from the current timestamp. It also re-arms a timer that has fired.
func (t *Timer) ResumeAfterUnlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}

	t.paused = false
	if !t.started {
		return
	}
	t.lastActivity.Store(t.source.Timestamp())
	t.running.Store(true)
	t.startTickerLocked()
}

// IsRunning reports whether the timer is armed.
func (t *Timer) IsRunning() bool { return t.running.Load() }

// IsPaused reports whether the timer is paused for the lock screen.
func (t *Timer) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Elapsed returns the time since the last registered activity.
func (t *Timer) Elapsed() time.Duration {
	ticks := t.source.Timestamp() - t.lastActivity.Load()
	if ticks <= 0 {
		return 0
	}
	freq := t.source.Frequency()
	whole, rem := ticks/freq, ticks%freq
	return time.Duration(whole)*time.Second + time.Duration(rem*int64(time.Second)/freq)
}

// OnTimeout subscribes fn to the timeout signal. Subscribers are called in
// subscription order. The returned function removes the subscription.
func (t *Timer) OnTimeout(fn func(elapsed time.Duration)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() || fn == nil {
		return func() {}
	}

	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber{id: id, fn: fn})

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Check compares the time since the last activity with the timeout and
// fires if it has been reached. It reports whether this call fired.
// Concurrent callers race for the transition and only one wins.
func (t *Timer) Check() bool {
	if t.closed.Load() || !t.running.Load() {
		return false
	}
	elapsed := t.Elapsed()
	if elapsed < t.timeout {
		return false
	}

	t.mu.Lock()
	if t.closed.Load() || !t.running.Load() {
		t.mu.Unlock()
		return false
	}
	t.running.Store(false)
	t.stopTickerLocked()
	subs := make([]subscriber, len(t.subs))
	copy(subs, t.subs)

	t.deliverMu.Lock()
	t.mu.Unlock()
	defer t.deliverMu.Unlock()

	t.log.Debug("inactivity timeout elapsed", "elapsed", elapsed, "timeout", t.timeout)
	for _, s := range subs {
		t.deliver(s.fn, elapsed)
	}
	return true
}

func (t *Timer) deliver(fn func(time.Duration), elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			err := &audit.PanicError{Value: r, Stack: debug.Stack()}
			t.log.Error("timeout handler panicked", "error", err)
			t.rec.HandlerException(uuid.Nil, "TimeoutElapsed", err)
		}
	}()
	fn(elapsed)
}

// Close stops the background check, waits for an in-flight delivery and
// the ticker goroutine to finish, and turns every later call into a no-op.
// It must not be called from a timeout handler.
func (t *Timer) Close() error {
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return nil
	}
	t.closed.Store(true)
	t.running.Store(false)
	t.stopTickerLocked()
	t.subs = nil
	t.mu.Unlock()

	// Wait for an in-flight delivery.
	t.deliverMu.Lock()
	t.deliverMu.Unlock()

	t.wg.Wait()
	return nil
}

// =============================================================================
// TICKER
// =============================================================================

func (t *Timer) startTickerLocked() {
	if t.stop != nil {
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	t.wg.Add(1)
	go t.loop(stop)
}

func (t *Timer) stopTickerLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

func (t *Timer) loop(stop <-chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			t.Check()
		}
	}
}
