// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"sync"
)

// Logger receives security log entries. Implementations must accept
// concurrent calls and must never let a failure escape to the caller.
type Logger interface {
	Log(Entry)
}

// Nop is a stateless Logger that discards every entry.
type Nop struct{}

// Log discards e.
func (Nop) Log(Entry) {}

// Discard is the shared null sink injected when no logger is configured.
var Discard Logger = Nop{}

// LoggerFunc adapts a function to the Logger interface.
type LoggerFunc func(Entry)

// Log calls f(e).
func (f LoggerFunc) Log(e Entry) { f(e) }

// =============================================================================
// MEMORY
// =============================================================================

// MemoryLogger keeps entries in memory. It is safe for concurrent use.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLogger creates an empty MemoryLogger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends e.
func (m *MemoryLogger) Log(e Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
}

// Entries returns a copy of everything logged so far.
func (m *MemoryLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Filter returns the entries with the given event type, in log order.
func (m *MemoryLogger) Filter(event EventType) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// First returns the earliest entry with the given event type.
func (m *MemoryLogger) First(event EventType) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Event == event {
			return e, true
		}
	}
	return Entry{}, false
}

// Count returns how many entries of the given type were logged.
func (m *MemoryLogger) Count(event EventType) int {
	return len(m.Filter(event))
}

// Reset drops all captured entries.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

// =============================================================================
// TEE
// =============================================================================

type tee []Logger

func (t tee) Log(e Entry) {
	for _, l := range t {
		safeLog(l, e)
	}
}

// Tee returns a Logger that forwards every entry to each non-nil logger in
// order. A panic in one sink does not prevent delivery to the others.
func Tee(loggers ...Logger) Logger {
	var t tee
	for _, l := range loggers {
		if l != nil {
			t = append(t, l)
		}
	}
	switch len(t) {
	case 0:
		return Discard
	case 1:
		return t[0]
	}
	return t
}

// safeLog delivers e and swallows any panic raised by the sink.
func safeLog(l Logger, e Entry) {
	defer func() { _ = recover() }()
	l.Log(e)
}
