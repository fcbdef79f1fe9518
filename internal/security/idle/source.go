// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package idle

import "time"

// TimestampSource is a monotonic tick counter.
type TimestampSource interface {
	// Timestamp returns the current tick count.
	Timestamp() int64
	// Frequency returns ticks per second.
	Frequency() int64
}

var processStart = time.Now()

// MonotonicSource reads the runtime's monotonic clock at nanosecond
// resolution. Wall-clock adjustments do not affect it.
type MonotonicSource struct{}

// Timestamp returns nanoseconds since process start.
func (MonotonicSource) Timestamp() int64 { return int64(time.Since(processStart)) }

// Frequency returns 1e9.
func (MonotonicSource) Frequency() int64 { return int64(time.Second) }
