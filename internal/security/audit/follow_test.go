// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFollow_StreamsAppendedEntriesAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir)
	require.NoError(t, err)
	defer fl.Close()

	// Written before Follow starts; must not be replayed.
	NewRecorder(fl).PasswordSet()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var replayed atomic.Bool
	got := make(chan Entry, 1024)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, fl.Path(), func(e Entry) {
			if e.Event == EventPasswordSet {
				replayed.Store(true)
			}
			select {
			case got <- e:
			default:
			}
		})
	}()

	waitFor := func(msg string, write func()) {
		t.Helper()
		require.Eventually(t, func() bool {
			write()
			for {
				select {
				case e := <-got:
					if e.Message == msg {
						return true
					}
				default:
					return false
				}
			}
		}, 5*time.Second, 50*time.Millisecond)
	}

	waitFor("before rotate", func() {
		fl.Log(Entry{Event: EventUnlockAttemptStarted, Message: "before rotate"})
	})

	require.NoError(t, fl.Rotate())
	waitFor("after rotate", func() {
		fl.Log(Entry{Event: EventUnlockSuccess, Message: "after rotate"})
	})

	require.False(t, replayed.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
