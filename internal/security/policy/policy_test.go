// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ready() Snapshot {
	return Snapshot{MainWindowReady: true, MainWindowActive: true, VisibleWindowCount: 1}
}

func TestDefault_Evaluate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   Decision
	}{
		{"idle main window", func(*Snapshot) {}, Allow},
		{"zero visible windows", func(s *Snapshot) { s.VisibleWindowCount = 0 }, Allow},
		{"shutting down", func(s *Snapshot) { s.IsShuttingDown = true }, Skip},
		{"main window not ready", func(s *Snapshot) { s.MainWindowReady = false }, Skip},
		{"already locked", func(s *Snapshot) { s.IsAlreadyLocked = true }, Skip},
		{"os session locked", func(s *Snapshot) { s.SessionIsLocked = true }, Defer},
		{"main window inactive", func(s *Snapshot) { s.MainWindowActive = false }, Defer},
		{"blocking modal", func(s *Snapshot) { s.HasBlockingModal = true }, Defer},
		{"two windows", func(s *Snapshot) { s.VisibleWindowCount = 2 }, Defer},

		// precedence
		{"shutdown beats locked", func(s *Snapshot) { s.IsShuttingDown = true; s.IsAlreadyLocked = true }, Skip},
		{"not ready beats modal", func(s *Snapshot) { s.MainWindowReady = false; s.HasBlockingModal = true }, Skip},
		{"locked beats modal", func(s *Snapshot) { s.IsAlreadyLocked = true; s.HasBlockingModal = true }, Skip},
		{"locked beats session locked", func(s *Snapshot) { s.IsAlreadyLocked = true; s.SessionIsLocked = true }, Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ready()
			tt.mutate(&s)
			require.Equal(t, tt.want, Default{}.Evaluate(s))
		})
	}
}

func TestDecision_String(t *testing.T) {
	require.Equal(t, "Allow", Allow.String())
	require.Equal(t, "Defer", Defer.String())
	require.Equal(t, "Skip", Skip.String())
	require.Equal(t, "Decision(7)", Decision(7).String())
}

func TestEvaluatorFunc(t *testing.T) {
	var e Evaluator = EvaluatorFunc(func(Snapshot) Decision { return Defer })
	require.Equal(t, Defer, e.Evaluate(Snapshot{}))
}
