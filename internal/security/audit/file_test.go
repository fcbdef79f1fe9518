// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// FILE LOGGER
// =============================================================================

func TestFileLogger_WritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	fl, err := NewFileLogger(dir)
	require.NoError(t, err)
	defer fl.Close()

	rec := NewRecorder(fl)
	rec.LockScreenShown(testCycle)
	rec.UnlockAttemptStarted(Correlation{LockCycleID: testCycle, AttemptID: testAttempt})

	require.Equal(t, filepath.Join(dir, LogFileName), fl.Path())

	entries, malformed, err := ReadFile(fl.Path())
	require.NoError(t, err)
	require.Zero(t, malformed)
	require.Len(t, entries, 2)
	require.Equal(t, EventLockScreenShown, entries[0].Event)
	require.Equal(t, testAttempt, entries[1].AttemptID)
	require.Zero(t, fl.Failures())
}

func TestFileLogger_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "logs")
	fl, err := NewFileLogger(dir)
	require.NoError(t, err)
	defer fl.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0700), info.Mode().Perm())

	info, err = os.Stat(fl.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileLogger_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		fl, err := NewFileLogger(dir)
		require.NoError(t, err)
		NewRecorder(fl).AppShutdown()
		require.NoError(t, fl.Close())
	}

	entries, _, err := ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestFileLogger_ConcurrentWritesDoNotInterleave(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)
	defer fl.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := NewRecorder(fl)
			for j := 0; j < 25; j++ {
				rec.UnlockFailed(Correlation{LockCycleID: testCycle}, fmt.Sprintf("worker-%d-%d", i, j), j)
			}
		}(i)
	}
	wg.Wait()

	entries, malformed, err := ReadFile(fl.Path())
	require.NoError(t, err)
	require.Zero(t, malformed)
	require.Len(t, entries, 500)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, WithMaxSize(1024))
	require.NoError(t, err)
	defer fl.Close()

	rec := NewRecorder(fl)
	for i := 0; i < 50; i++ {
		rec.UnlockFailed(Correlation{LockCycleID: testCycle, AttemptID: testAttempt}, "InvalidPassword", i)
	}

	backup := filepath.Join(dir, LogFileName+".1")
	info, err := os.Stat(backup)
	require.NoError(t, err)
	require.LessOrEqual(t, info.Size(), int64(1024))

	info, err = os.Stat(fl.Path())
	require.NoError(t, err)
	require.LessOrEqual(t, info.Size(), int64(1024))

	current, malformed, err := ReadFile(fl.Path())
	require.NoError(t, err)
	require.Zero(t, malformed)
	require.NotEmpty(t, current)
	last, _ := current[len(current)-1].Prop("FailedAttempts")
	require.Equal(t, int64(49), last)
}

func TestFileLogger_CloseIsIdempotent(t *testing.T) {
	fl, err := NewFileLogger(t.TempDir())
	require.NoError(t, err)

	NewRecorder(fl).AppShutdown()
	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())

	require.NotPanics(t, func() { NewRecorder(fl).AppShutdown() })
	require.NoError(t, fl.Rotate())

	entries, _, err := ReadFile(fl.Path())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileLogger_EchoAndFailureWarnings(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fl, err := NewFileLogger(t.TempDir(), WithEcho(true), WithLogger(log))
	require.NoError(t, err)
	defer fl.Close()

	NewRecorder(fl).LockScreenShown(testCycle)
	require.Contains(t, buf.String(), "[Security] LockScreenShown cycle=11111111")

	// Entries outside the taxonomy cannot be encoded.
	fl.Log(Entry{Event: EventType(0)})
	fl.Log(Entry{Event: EventType(0)})
	require.Equal(t, 2, fl.Failures())
	require.Equal(t, 1, strings.Count(buf.String(), "security log write failed"))
}
