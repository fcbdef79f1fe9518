// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package policy decides whether an inactivity timeout may show the lock
// screen right now.
package policy

import "fmt"

// Decision is the outcome of a policy evaluation.
type Decision int

const (
	// Allow means the lock screen may be shown.
	Allow Decision = iota
	// Defer means the environment is busy; try again shortly.
	Defer
	// Skip means no lock should happen for this timeout.
	Skip
)

// String returns Allow, Defer or Skip.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "Allow"
	case Defer:
		return "Defer"
	case Skip:
		return "Skip"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Snapshot is the host environment at the moment of evaluation.
type Snapshot struct {
	IsAlreadyLocked    bool
	HasBlockingModal   bool
	IsShuttingDown     bool
	SessionIsLocked    bool // the OS session is locked
	MainWindowReady    bool
	MainWindowActive   bool
	VisibleWindowCount int
}

// Evaluator maps a snapshot to a decision.
type Evaluator interface {
	Evaluate(Snapshot) Decision
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(Snapshot) Decision

// Evaluate calls f(s).
func (f EvaluatorFunc) Evaluate(s Snapshot) Decision { return f(s) }

// Default is the stateless standard policy.
type Default struct{}

// Evaluate applies the rules in precedence order:
//
//  1. shutting down or main window not ready: Skip
//  2. already locked: Skip
//  3. OS session locked or main window inactive: Defer
//  4. a blocking modal or more than one visible window: Defer
//  5. otherwise: Allow
func (Default) Evaluate(s Snapshot) Decision {
	switch {
	case s.IsShuttingDown || !s.MainWindowReady:
		return Skip
	case s.IsAlreadyLocked:
		return Skip
	case s.SessionIsLocked || !s.MainWindowActive:
		return Defer
	case s.HasBlockingModal || s.VisibleWindowCount > 1:
		return Defer
	}
	return Allow
}
