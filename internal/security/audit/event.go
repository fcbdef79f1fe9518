// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import "fmt"

// EventType is the closed set of security events.
type EventType int

const (
	EventInactivityTimeoutFired EventType = iota + 1
	EventLockPolicyDecision
	EventLockScreenShown
	EventUnlockAttemptStarted
	EventUnlockSuccess
	EventUnlockFailed
	EventLockoutStarted
	EventLockoutExpired
	EventLockoutActiveRejection
	EventPasswordSet
	EventAppStartupAuth
	EventAppShutdown
	EventDeferredRetryScheduled
	EventHandlerException
)

var eventNames = map[EventType]string{
	EventInactivityTimeoutFired: "InactivityTimeoutFired",
	EventLockPolicyDecision:     "LockPolicyDecision",
	EventLockScreenShown:        "LockScreenShown",
	EventUnlockAttemptStarted:   "UnlockAttemptStarted",
	EventUnlockSuccess:          "UnlockSuccess",
	EventUnlockFailed:           "UnlockFailed",
	EventLockoutStarted:         "LockoutStarted",
	EventLockoutExpired:         "LockoutExpired",
	EventLockoutActiveRejection: "LockoutActiveRejection",
	EventPasswordSet:            "PasswordSet",
	EventAppStartupAuth:         "AppStartupAuth",
	EventAppShutdown:            "AppShutdown",
	EventDeferredRetryScheduled: "DeferredRetryScheduled",
	EventHandlerException:       "HandlerException",
}

// EventTypes returns every event type in declaration order.
func EventTypes() []EventType {
	types := make([]EventType, 0, len(eventNames))
	for e := EventInactivityTimeoutFired; e <= EventHandlerException; e++ {
		types = append(types, e)
	}
	return types
}

// String returns the wire name of the event.
func (e EventType) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(e))
}

// Valid reports whether e belongs to the taxonomy.
func (e EventType) Valid() bool {
	_, ok := eventNames[e]
	return ok
}

// ParseEventType maps a wire name back to its EventType.
func ParseEventType(name string) (EventType, error) {
	for e, n := range eventNames {
		if n == name {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown security event %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (e EventType) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid security event %d", int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EventType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventType(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
