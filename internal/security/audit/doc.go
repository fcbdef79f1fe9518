// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit provides the security audit trail for the lock screen.
//
// Every component of the session security core reports through a Logger.
// Entries carry correlation identifiers so all events belonging to one lock
// cycle, or to one unlock attempt, can be grouped during review.
//
// # Components
//
// Logger - the sink interface. Nop discards, MemoryLogger captures,
// FileLogger appends JSON lines to disk, Tee fans out.
//
//	logger, err := audit.NewFileLogger(dir, audit.WithEcho(true))
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// Recorder - typed helpers for the closed event taxonomy
//
//	rec := audit.NewRecorder(logger)
//	rec.LockScreenShown(cycleID)
//
// Review - reads a log back and groups it by lock cycle and attempt
//
//	entries, malformed, err := audit.ReadFile(path)
//	report := audit.Review(entries)
//
// Follow - tails a live log file
//
//	err := audit.Follow(ctx, path, func(e audit.Entry) { ... })
//
// # Record format
//
// One JSON object per line: ts, event, and optionally lockCycleId,
// attemptId, msg and props. Absent identifiers are omitted, never null.
package audit
