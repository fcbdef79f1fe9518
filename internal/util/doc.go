// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across invoicelock.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file replacement with fsync, used by the
//     JSON credential store and config saving
//   - FormatCountdown: MM:SS rendering of lockout countdowns for the lock screen
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	msg := "Try again in " + util.FormatCountdown(remaining)
package util
