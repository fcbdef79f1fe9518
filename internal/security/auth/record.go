// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"time"
)

// CredentialRecord is the persisted password state. Hash and salt are
// base64 (standard encoding). Zero times mean "absent".
type CredentialRecord struct {
	PasswordHash       string    `json:"password_hash,omitempty"`
	PasswordSalt       string    `json:"password_salt,omitempty"`
	Iterations         int       `json:"iterations,omitempty"`
	CreatedAt          time.Time `json:"created_at,omitzero"`
	FailedAttemptCount int       `json:"failed_attempt_count"`
	LastFailedAt       time.Time `json:"last_failed_at,omitzero"`
	LockoutUntil       time.Time `json:"lockout_until,omitzero"`
}

// IsConfigured reports whether a password has been set.
func (r CredentialRecord) IsConfigured() bool {
	return r.PasswordHash != "" && r.PasswordSalt != "" && r.Iterations > 0
}

// resetFailures clears failure tracking and any lockout.
func (r *CredentialRecord) resetFailures() {
	r.FailedAttemptCount = 0
	r.LastFailedAt = time.Time{}
	r.LockoutUntil = time.Time{}
}

// Store persists the credential record. A store with nothing saved yet
// returns the zero record and no error.
type Store interface {
	GetCredentialRecord(ctx context.Context) (CredentialRecord, error)
	UpdateCredentialRecord(ctx context.Context, rec CredentialRecord) error
}
