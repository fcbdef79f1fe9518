// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	testCycle   = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	testAttempt = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	testTime    = time.Date(2025, 1, 2, 3, 4, 5, 123456789, time.UTC)
)

// =============================================================================
// ENCODING
// =============================================================================

func TestEntry_MarshalFieldOrder(t *testing.T) {
	e := Entry{
		Timestamp:   testTime,
		Event:       EventUnlockFailed,
		LockCycleID: testCycle,
		AttemptID:   testAttempt,
		Message:     "Unlock failed: InvalidPassword.",
		Props: []Prop{
			{"Status", "InvalidPassword"},
			{"FailedAttempts", 2},
		},
	}

	data, err := e.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t,
		`{"ts":"2025-01-02T03:04:05.123456789Z","event":"UnlockFailed",`+
			`"lockCycleId":"11111111-1111-4111-8111-111111111111",`+
			`"attemptId":"22222222-2222-4222-8222-222222222222",`+
			`"msg":"Unlock failed: InvalidPassword.",`+
			`"props":{"Status":"InvalidPassword","FailedAttempts":2}}`,
		string(data))
}

func TestEntry_MarshalOmitsAbsentFields(t *testing.T) {
	data, err := Entry{Timestamp: testTime, Event: EventAppShutdown}.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"ts":"2025-01-02T03:04:05.123456789Z","event":"AppShutdown"}`, string(data))
	require.NotContains(t, string(data), "null")
}

func TestEntry_MarshalConvertsLocalTimeToUTC(t *testing.T) {
	local := testTime.In(time.FixedZone("EST", -5*3600))
	data, err := Entry{Timestamp: local, Event: EventAppShutdown}.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"ts":"2025-01-02T03:04:05.123456789Z"`)
}

func TestEntry_MarshalEscapesStrings(t *testing.T) {
	e := Entry{
		Timestamp: testTime,
		Event:     EventHandlerException,
		Message:   "quote \" backslash \\ newline \n tab \t <ok>",
	}
	data, err := e.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"quote \" backslash \\ newline \n tab \t <ok>"`)
	require.NotContains(t, string(data), "\n")
}

func TestEntry_MarshalScalarProps(t *testing.T) {
	e := Entry{
		Timestamp: testTime,
		Event:     EventLockPolicyDecision,
		Props: []Prop{
			{"nil", nil},
			{"bool", true},
			{"int64", int64(-7)},
			{"uint8", uint8(9)},
			{"float", 1.25},
			{"nan", math.NaN()},
			{"inf", math.Inf(1)},
			{"duration", 1500 * time.Millisecond},
			{"uuid", testCycle},
			{"err", errors.New("boom")},
		},
	}
	data, err := e.MarshalJSON()
	require.NoError(t, err)
	require.Contains(t, string(data),
		`"props":{"nil":null,"bool":true,"int64":-7,"uint8":9,"float":1.25,"nan":null,"inf":null,`+
			`"duration":1.5,"uuid":"11111111-1111-4111-8111-111111111111","err":"boom"}`)
}

func TestEntry_MarshalRejectsUnknownEvent(t *testing.T) {
	_, err := Entry{Timestamp: testTime}.MarshalJSON()
	require.Error(t, err)
}

// =============================================================================
// DECODING
// =============================================================================

func TestEntry_RoundTripKeepsPropOrder(t *testing.T) {
	in := Entry{
		Timestamp:   testTime,
		Event:       EventLockPolicyDecision,
		LockCycleID: testCycle,
		Message:     "Lock policy evaluated: Allow.",
		Props: []Prop{
			{"Decision", "Allow"},
			{"IsAlreadyLocked", false},
			{"VisibleWindowCount", 1},
			{"ElapsedSeconds", 12.5},
			{"StackTrace", nil},
		},
	}
	data, err := in.MarshalJSON()
	require.NoError(t, err)

	out, err := ParseLine(data)
	require.NoError(t, err)
	require.True(t, in.Timestamp.Equal(out.Timestamp))
	require.Equal(t, in.Event, out.Event)
	require.Equal(t, in.LockCycleID, out.LockCycleID)
	require.Equal(t, uuid.Nil, out.AttemptID)
	require.Equal(t, in.Message, out.Message)
	require.Equal(t, []Prop{
		{"Decision", "Allow"},
		{"IsAlreadyLocked", false},
		{"VisibleWindowCount", int64(1)},
		{"ElapsedSeconds", 12.5},
		{"StackTrace", nil},
	}, out.Props)

	v, ok := out.Prop("Decision")
	require.True(t, ok)
	require.Equal(t, "Allow", v)
	_, ok = out.Prop("Missing")
	require.False(t, ok)
}

func TestParseLine_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"ts":`,
		"bad timestamp": `{"ts":"yesterday","event":"AppShutdown"}`,
		"unknown event": `{"ts":"2025-01-02T03:04:05Z","event":"Nope"}`,
		"bad cycle id":  `{"ts":"2025-01-02T03:04:05Z","event":"AppShutdown","lockCycleId":"xyz"}`,
		"props array":   `{"ts":"2025-01-02T03:04:05Z","event":"AppShutdown","props":[1]}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLine([]byte(line))
			require.ErrorIs(t, err, ErrMalformedEntry)
		})
	}
}

func TestEventType_Names(t *testing.T) {
	types := EventTypes()
	require.Len(t, types, 14)
	for _, et := range types {
		require.True(t, et.Valid())
		parsed, err := ParseEventType(et.String())
		require.NoError(t, err)
		require.Equal(t, et, parsed)
	}
	require.False(t, EventType(0).Valid())
	require.Equal(t, "EventType(99)", EventType(99).String())
}

func TestFormatSummary(t *testing.T) {
	s := FormatSummary(Entry{
		Event:       EventUnlockSuccess,
		LockCycleID: testCycle,
		AttemptID:   testAttempt,
		Message:     "Unlock succeeded.",
	})
	require.Equal(t, "[Security] UnlockSuccess cycle=11111111 attempt=22222222 - Unlock succeeded.", s)
	require.Equal(t, "[Security] AppShutdown", FormatSummary(Entry{Event: EventAppShutdown}))
}
