// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth verifies the application password.
//
// Passwords are derived with PBKDF2-HMAC-SHA256 over their NFC form and a
// random per-password salt. Verification enforces an escalating delay after
// each failure and a fixed lockout once the failure threshold is reached.
// All state lives in a CredentialRecord held by a Store.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/invoicelock/internal/security/audit"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// SaltSize is the salt length in bytes.
	SaltSize = 16

	// HashSize is the derived key length in bytes.
	HashSize = 32

	// DefaultIterations is the PBKDF2 iteration count for new passwords.
	DefaultIterations = 100000

	// LockoutThreshold is the failure count that triggers a lockout.
	LockoutThreshold = 5

	// LockoutDuration is how long a lockout lasts. It does not escalate.
	LockoutDuration = 5 * time.Minute
)

// delaySchedule is indexed by the failure count after increment, minus one.
var delaySchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
}

// DelayFor returns the delay applied after the n-th consecutive failure.
// Once n reaches the lockout threshold no delay is applied.
func DelayFor(n int) time.Duration {
	if n <= 0 || n >= LockoutThreshold || n > len(delaySchedule) {
		return 0
	}
	return delaySchedule[n-1]
}

var (
	// ErrEmptyPassword is returned by SetPassword for an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")

	// ErrCorruptRecord is returned when the stored hash or salt cannot be decoded.
	ErrCorruptRecord = errors.New("credential record is corrupt")
)

// =============================================================================
// RESULT
// =============================================================================

// Status is the outcome of a verification.
type Status int

const (
	Success Status = iota
	InvalidPassword
	LockedOut
	PasswordNotSet
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case InvalidPassword:
		return "InvalidPassword"
	case LockedOut:
		return "LockedOut"
	case PasswordNotSet:
		return "PasswordNotSet"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// VerificationResult describes one call to VerifyPasswordWithPolicy.
type VerificationResult struct {
	Status             Status
	FailedAttemptCount int
	AppliedDelay       time.Duration
	LockoutRemaining   time.Duration
}

// =============================================================================
// AUTHENTICATOR
// =============================================================================

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithIterations sets the PBKDF2 iteration count used by SetPassword.
// Verification always uses the count stored with the hash.
func WithIterations(n int) Option {
	return func(a *Authenticator) {
		if n > 0 {
			a.iterations = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithSleep replaces time.Sleep for the failure delay.
func WithSleep(sleep func(time.Duration)) Option {
	return func(a *Authenticator) {
		if sleep != nil {
			a.sleep = sleep
		}
	}
}

// WithAuditLogger sets the security log sink.
func WithAuditLogger(l audit.Logger) Option {
	return func(a *Authenticator) { a.rec = audit.NewRecorder(l) }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// Authenticator sets and verifies the application password.
type Authenticator struct {
	store      Store
	iterations int
	now        func() time.Time
	sleep      func(time.Duration)
	random     io.Reader
	derive     func(password string, salt []byte, iterations int) []byte
	rec        audit.Recorder
	log        *slog.Logger

	// mu serialises read-modify-write of the credential record. It is
	// never held while sleeping.
	mu sync.Mutex
}

// New creates an Authenticator backed by store.
func New(store Store, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:      store,
		iterations: DefaultIterations,
		now:        time.Now,
		sleep:      time.Sleep,
		random:     rand.Reader,
		derive:     deriveKey,
		rec:        audit.NewRecorder(nil),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(norm.NFC.String(password)), salt, iterations, HashSize, sha256.New)
}

// IsPasswordSet reports whether a password is configured.
func (a *Authenticator) IsPasswordSet(ctx context.Context) (bool, error) {
	rec, err := a.store.GetCredentialRecord(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load credentials: %w", err)
	}
	return rec.IsConfigured(), nil
}

// SetPassword stores a new password with a fresh salt and clears any
// failure history or lockout.
func (a *Authenticator) SetPassword(ctx context.Context, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(a.random, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	hash := a.derive(password, salt, a.iterations)

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.store.GetCredentialRecord(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	rec.PasswordHash = base64.StdEncoding.EncodeToString(hash)
	rec.PasswordSalt = base64.StdEncoding.EncodeToString(salt)
	rec.Iterations = a.iterations
	rec.CreatedAt = a.now().UTC()
	rec.resetFailures()

	if err := a.store.UpdateCredentialRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	a.rec.PasswordSet()
	a.log.Info("application password set", "iterations", rec.Iterations)
	return nil
}

// VerifyPasswordWithPolicy checks password against the stored hash and
// applies the lockout policy. Correlation identifiers in ctx are attached
// to the security log entries it writes.
//
// A failed attempt is persisted before the failure delay is applied, and
// the delay runs to completion regardless of ctx.
func (a *Authenticator) VerifyPasswordWithPolicy(ctx context.Context, password string) (VerificationResult, error) {
	a.mu.Lock()
	result, err := a.verifyLocked(ctx, password)
	a.mu.Unlock()
	if err != nil {
		return VerificationResult{}, err
	}

	if result.AppliedDelay > 0 {
		a.sleep(result.AppliedDelay)
	}
	return result, nil
}

func (a *Authenticator) verifyLocked(ctx context.Context, password string) (VerificationResult, error) {
	corr := audit.CorrelationFrom(ctx)

	rec, err := a.store.GetCredentialRecord(ctx)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !rec.IsConfigured() {
		return VerificationResult{Status: PasswordNotSet}, nil
	}

	now := a.now().UTC()
	if !rec.LockoutUntil.IsZero() {
		if now.Before(rec.LockoutUntil) {
			return VerificationResult{
				Status:             LockedOut,
				FailedAttemptCount: rec.FailedAttemptCount,
				LockoutRemaining:   rec.LockoutUntil.Sub(now),
			}, nil
		}
		previous := rec.FailedAttemptCount
		rec.resetFailures()
		a.rec.LockoutExpired(corr, previous)
		a.log.Info("lockout expired", "previous_failures", previous)
	}

	expected, err := base64.StdEncoding.DecodeString(rec.PasswordHash)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("%w: hash: %v", ErrCorruptRecord, err)
	}
	salt, err := base64.StdEncoding.DecodeString(rec.PasswordSalt)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("%w: salt: %v", ErrCorruptRecord, err)
	}

	candidate := a.derive(password, salt, rec.Iterations)
	if subtle.ConstantTimeCompare(candidate, expected) == 1 {
		rec.resetFailures()
		if err := a.store.UpdateCredentialRecord(ctx, rec); err != nil {
			return VerificationResult{}, fmt.Errorf("failed to save credentials: %w", err)
		}
		return VerificationResult{Status: Success}, nil
	}

	rec.FailedAttemptCount++
	rec.LastFailedAt = now
	result := VerificationResult{
		Status:             InvalidPassword,
		FailedAttemptCount: rec.FailedAttemptCount,
		AppliedDelay:       DelayFor(rec.FailedAttemptCount),
	}
	lockedOut := rec.FailedAttemptCount >= LockoutThreshold
	if lockedOut {
		rec.LockoutUntil = now.Add(LockoutDuration)
		result.Status = LockedOut
		result.LockoutRemaining = LockoutDuration
	}

	if err := a.store.UpdateCredentialRecord(ctx, rec); err != nil {
		return VerificationResult{}, fmt.Errorf("failed to save credentials: %w", err)
	}

	if lockedOut {
		a.rec.LockoutStarted(corr, rec.FailedAttemptCount, LockoutDuration)
		a.log.Warn("account locked out", "failures", rec.FailedAttemptCount, "duration", LockoutDuration)
	}
	return result, nil
}
