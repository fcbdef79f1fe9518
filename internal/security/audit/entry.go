// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENTRY
// =============================================================================

// Prop is one key/value pair in an entry's property bag.
type Prop struct {
	Key   string
	Value any
}

// Entry is a single security log record. Entries are values; once built
// they are written once and never updated.
type Entry struct {
	Timestamp time.Time
	Event     EventType

	// LockCycleID and AttemptID are omitted from the record when uuid.Nil.
	LockCycleID uuid.UUID
	AttemptID   uuid.UUID

	Message string
	Props   []Prop
}

// Prop returns the value stored under key.
func (e Entry) Prop(key string) (any, bool) {
	for _, p := range e.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// MarshalJSON renders the entry as a single-line JSON object with a fixed
// field order: ts, event, lockCycleId, attemptId, msg, props.
func (e Entry) MarshalJSON() ([]byte, error) {
	if !e.Event.Valid() {
		return nil, fmt.Errorf("invalid security event %d", int(e.Event))
	}

	var buf bytes.Buffer
	buf.Grow(256)

	buf.WriteString(`{"ts":`)
	writeString(&buf, e.Timestamp.UTC().Format(time.RFC3339Nano))
	buf.WriteString(`,"event":`)
	writeString(&buf, e.Event.String())

	if e.LockCycleID != uuid.Nil {
		buf.WriteString(`,"lockCycleId":`)
		writeString(&buf, e.LockCycleID.String())
	}
	if e.AttemptID != uuid.Nil {
		buf.WriteString(`,"attemptId":`)
		writeString(&buf, e.AttemptID.String())
	}
	if e.Message != "" {
		buf.WriteString(`,"msg":`)
		writeString(&buf, e.Message)
	}

	if len(e.Props) > 0 {
		buf.WriteString(`,"props":{`)
		for i, p := range e.Props {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, p.Key)
			buf.WriteByte(':')
			writeValue(&buf, p.Value)
		}
		buf.WriteByte('}')
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeString appends s as a JSON string with quotes, backslashes and
// control characters escaped. HTML characters are left alone.
func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	buf.Truncate(buf.Len() - 1) // Encode appends '\n'
}

// writeValue appends a scalar property value. Anything that is not a
// JSON scalar is rendered as its string form.
func writeValue(buf *bytes.Buffer, v any) {
	switch v := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeString(buf, v)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(v, 10))
	case float32:
		writeFloat(buf, float64(v), 32)
	case float64:
		writeFloat(buf, v, 64)
	case time.Duration:
		writeFloat(buf, v.Seconds(), 64)
	case time.Time:
		writeString(buf, v.UTC().Format(time.RFC3339Nano))
	case uuid.UUID:
		writeString(buf, v.String())
	case error:
		writeString(buf, v.Error())
	case fmt.Stringer:
		writeString(buf, v.String())
	default:
		writeString(buf, fmt.Sprint(v))
	}
}

func writeFloat(buf *bytes.Buffer, f float64, bits int) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteString("null")
		return
	}
	buf.WriteString(strconv.FormatFloat(f, 'f', -1, bits))
}

// =============================================================================
// DECODING
// =============================================================================

// ErrMalformedEntry is returned when a log line cannot be decoded.
var ErrMalformedEntry = errors.New("malformed security log entry")

type rawEntry struct {
	TS          string          `json:"ts"`
	Event       string          `json:"event"`
	LockCycleID string          `json:"lockCycleId"`
	AttemptID   string          `json:"attemptId"`
	Msg         string          `json:"msg"`
	Props       json.RawMessage `json:"props"`
}

// UnmarshalJSON decodes a record written by MarshalJSON. Property order
// is preserved; integral numbers decode as int64, others as float64.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, raw.TS)
	if err != nil {
		return fmt.Errorf("%w: ts: %v", ErrMalformedEntry, err)
	}
	event, err := ParseEventType(raw.Event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}

	out := Entry{Timestamp: ts, Event: event, Message: raw.Msg}
	if raw.LockCycleID != "" {
		if out.LockCycleID, err = uuid.Parse(raw.LockCycleID); err != nil {
			return fmt.Errorf("%w: lockCycleId: %v", ErrMalformedEntry, err)
		}
	}
	if raw.AttemptID != "" {
		if out.AttemptID, err = uuid.Parse(raw.AttemptID); err != nil {
			return fmt.Errorf("%w: attemptId: %v", ErrMalformedEntry, err)
		}
	}
	if len(raw.Props) > 0 && string(raw.Props) != "null" {
		if out.Props, err = decodeProps(raw.Props); err != nil {
			return fmt.Errorf("%w: props: %v", ErrMalformedEntry, err)
		}
	}

	*e = out
	return nil
}

func decodeProps(data []byte) ([]Prop, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var props []Prop
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", keyTok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			} else {
				v = n.String()
			}
		}
		props = append(props, Prop{Key: key, Value: v})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return props, nil
}

// ParseLine decodes one JSON line.
func ParseLine(line []byte) (Entry, error) {
	var e Entry
	if err := e.UnmarshalJSON(bytes.TrimSpace(line)); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// FormatSummary renders a compact one-line description used for debug
// echoes and terminal output. Identifiers are shortened to 8 characters.
func FormatSummary(e Entry) string {
	var sb strings.Builder
	sb.WriteString("[Security] ")
	sb.WriteString(e.Event.String())
	if e.LockCycleID != uuid.Nil {
		sb.WriteString(" cycle=")
		sb.WriteString(e.LockCycleID.String()[:8])
	}
	if e.AttemptID != uuid.Nil {
		sb.WriteString(" attempt=")
		sb.WriteString(e.AttemptID.String()[:8])
	}
	if e.Message != "" {
		sb.WriteString(" - ")
		sb.WriteString(e.Message)
	}
	return sb.String()
}
