// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the minimum length of a new password, in characters.
const MinPasswordLength = 8

// Validation is the result of checking a new password.
type Validation int

const (
	Valid Validation = iota
	Empty
	TooShort
	Mismatch
)

// Message returns the text shown to the user.
func (v Validation) Message() string {
	switch v {
	case Empty:
		return "Please enter a password."
	case TooShort:
		return "Password must be at least 8 characters."
	case Mismatch:
		return "Passwords do not match."
	}
	return ""
}

// ValidateNewPassword checks a password chosen during setup against its
// confirmation. Checks run in order: empty, length, match.
func ValidateNewPassword(password, confirm string) Validation {
	switch {
	case strings.TrimSpace(password) == "":
		return Empty
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return TooShort
	case password != confirm:
		return Mismatch
	}
	return Valid
}
