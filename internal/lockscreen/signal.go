// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/invoicelock/internal/security/audit"
)

// signal is a list of parameterless subscribers.
type signal struct {
	name   string
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func()
}

func (s *signal) subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// emit calls every subscriber in order. A panicking subscriber is logged
// and does not stop the others.
func (s *signal) emit(cycle uuid.UUID, log *slog.Logger, rec audit.Recorder) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		s.call(sub.fn, cycle, log, rec)
	}
}

func (s *signal) call(fn func(), cycle uuid.UUID, log *slog.Logger, rec audit.Recorder) {
	defer func() {
		if r := recover(); r != nil {
			err := &audit.PanicError{Value: r, Stack: debug.Stack()}
			log.Error("lock screen handler panicked", "handler", s.name, "error", err)
			rec.HandlerException(cycle, s.name, err)
		}
	}()
	fn()
}
