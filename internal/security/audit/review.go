// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// READING
// =============================================================================

// maxLineSize bounds a single log line when reading.
const maxLineSize = 1024 * 1024

// ReadAll decodes every line of r. Blank lines are ignored; lines that fail
// to decode are skipped and counted in malformed.
func ReadAll(r io.Reader) (entries []Entry, malformed int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		e, perr := ParseLine(line)
		if perr != nil {
			malformed++
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, malformed, fmt.Errorf("failed to read security log: %w", err)
	}
	return entries, malformed, nil
}

// ReadFile decodes the security log at path.
func ReadFile(path string) (entries []Entry, malformed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open security log: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}

// =============================================================================
// REVIEW
// =============================================================================

// CycleSummary describes one lock cycle reconstructed from the log.
type CycleSummary struct {
	LockCycleID uuid.UUID
	Start       time.Time
	End         time.Time
	Attempts    int
	Failures    int
	LockedOut   bool
	Unlocked    bool
}

// Duration is the span between the first and last entry of the cycle.
func (c CycleSummary) Duration() time.Duration {
	return c.End.Sub(c.Start)
}

// Report is the result of Review.
type Report struct {
	Total   int
	ByEvent map[EventType]int
	Cycles  []CycleSummary

	// OpenCycles lists cycles that never recorded UnlockSuccess.
	OpenCycles []uuid.UUID

	// OrphanAttempts lists attempts that started but logged no outcome.
	OrphanAttempts []uuid.UUID

	Lockouts          int
	HandlerExceptions int
}

var attemptOutcomes = map[EventType]bool{
	EventUnlockSuccess:          true,
	EventUnlockFailed:           true,
	EventLockoutActiveRejection: true,
	EventHandlerException:       true,
}

// Review groups entries by lock cycle and attempt.
func Review(entries []Entry) Report {
	rep := Report{
		Total:   len(entries),
		ByEvent: make(map[EventType]int),
	}

	cycles := make(map[uuid.UUID]*CycleSummary)
	var order []uuid.UUID
	started := make(map[uuid.UUID]bool)
	finished := make(map[uuid.UUID]bool)
	var attemptOrder []uuid.UUID

	for _, e := range entries {
		rep.ByEvent[e.Event]++
		switch e.Event {
		case EventLockoutStarted:
			rep.Lockouts++
		case EventHandlerException:
			rep.HandlerExceptions++
		}

		if e.AttemptID != uuid.Nil {
			if e.Event == EventUnlockAttemptStarted && !started[e.AttemptID] {
				started[e.AttemptID] = true
				attemptOrder = append(attemptOrder, e.AttemptID)
			}
			if attemptOutcomes[e.Event] {
				finished[e.AttemptID] = true
			}
		}

		if e.LockCycleID == uuid.Nil {
			continue
		}
		c, ok := cycles[e.LockCycleID]
		if !ok {
			c = &CycleSummary{LockCycleID: e.LockCycleID, Start: e.Timestamp}
			cycles[e.LockCycleID] = c
			order = append(order, e.LockCycleID)
		}
		if e.Timestamp.Before(c.Start) {
			c.Start = e.Timestamp
		}
		if e.Timestamp.After(c.End) {
			c.End = e.Timestamp
		}
		switch e.Event {
		case EventUnlockAttemptStarted:
			c.Attempts++
		case EventUnlockFailed:
			c.Failures++
		case EventLockoutStarted, EventLockoutActiveRejection:
			c.LockedOut = true
		case EventUnlockSuccess:
			c.Unlocked = true
		}
	}

	for _, id := range order {
		c := cycles[id]
		rep.Cycles = append(rep.Cycles, *c)
		if !c.Unlocked {
			rep.OpenCycles = append(rep.OpenCycles, id)
		}
	}
	for _, id := range attemptOrder {
		if !finished[id] {
			rep.OrphanAttempts = append(rep.OrphanAttempts, id)
		}
	}
	return rep
}

// WriteText renders the report for terminal output.
func (r Report) WriteText(w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("SECURITY LOG REVIEW\n")
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")
	fmt.Fprintf(&sb, "Total entries:       %d\n", r.Total)
	fmt.Fprintf(&sb, "Lock cycles:         %d\n", len(r.Cycles))
	fmt.Fprintf(&sb, "Open cycles:         %d\n", len(r.OpenCycles))
	fmt.Fprintf(&sb, "Orphan attempts:     %d\n", len(r.OrphanAttempts))
	fmt.Fprintf(&sb, "Lockouts:            %d\n", r.Lockouts)
	fmt.Fprintf(&sb, "Handler exceptions:  %d\n\n", r.HandlerExceptions)

	if len(r.ByEvent) > 0 {
		sb.WriteString("EVENTS BY TYPE\n")
		sb.WriteString(strings.Repeat("-", 60) + "\n")
		types := make([]EventType, 0, len(r.ByEvent))
		for et := range r.ByEvent {
			types = append(types, et)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		for _, et := range types {
			fmt.Fprintf(&sb, "  %-24s %6d\n", et, r.ByEvent[et])
		}
		sb.WriteString("\n")
	}

	if len(r.Cycles) > 0 {
		sb.WriteString("LOCK CYCLES\n")
		sb.WriteString(strings.Repeat("-", 60) + "\n")
		for _, c := range r.Cycles {
			state := "open"
			if c.Unlocked {
				state = "unlocked"
			}
			if c.LockedOut {
				state += ", locked out"
			}
			fmt.Fprintf(&sb, "  %s  %s  attempts=%d failures=%d  (%s)\n",
				c.LockCycleID.String()[:8], c.Start.Local().Format(time.DateTime),
				c.Attempts, c.Failures, state)
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
