// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"

	"github.com/google/uuid"
)

// Correlation carries the identifiers that tie entries of one lock cycle
// and one unlock attempt together.
type Correlation struct {
	LockCycleID uuid.UUID
	AttemptID   uuid.UUID
}

type correlationKey struct{}

// WithCorrelation returns a copy of ctx carrying c.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// CorrelationFrom returns the correlation stored in ctx, or the zero value.
func CorrelationFrom(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(Correlation)
	return c
}
