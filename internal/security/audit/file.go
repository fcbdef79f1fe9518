// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// LogFileName is the name of the security log inside its directory.
	LogFileName = "security.log"

	// DefaultMaxFileSize is the size at which the log rotates (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// DefaultDir returns the default log directory (~/.invoicelock).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".invoicelock")
}

// =============================================================================
// FILE LOGGER
// =============================================================================

// FileLogger appends one JSON line per entry to security.log and flushes
// after every write. Failures are counted and reported through slog but
// never returned to the caller.
type FileLogger struct {
	mu       sync.Mutex
	dir      string
	path     string
	file     *os.File
	size     int64
	maxSize  int64
	echo     bool
	closed   bool
	failures int

	log  *slog.Logger
	warn *rate.Limiter
}

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxSize sets the rotation threshold. Zero or negative disables rotation.
func WithMaxSize(n int64) FileOption {
	return func(l *FileLogger) { l.maxSize = n }
}

// WithEcho mirrors each entry to the operational logger at debug level.
func WithEcho(echo bool) FileOption {
	return func(l *FileLogger) { l.echo = echo }
}

// WithLogger sets the operational logger used for echoes and failure
// warnings.
func WithLogger(log *slog.Logger) FileOption {
	return func(l *FileLogger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewFileLogger opens (creating if needed) dir/security.log for appending.
func NewFileLogger(dir string, opts ...FileOption) (*FileLogger, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create security log directory: %w", err)
	}

	l := &FileLogger{
		dir:     dir,
		path:    filepath.Join(dir, LogFileName),
		maxSize: DefaultMaxFileSize,
		log:     slog.Default(),
		warn:    rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.openLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) openLocked() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open security log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat security log: %w", err)
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// Log writes e as a single line. It is a no-op after Close.
func (l *FileLogger) Log(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	line, err := e.MarshalJSON()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err != nil {
		l.failLocked(err)
		return
	}
	line = append(line, '\n')

	if l.file == nil {
		if err := l.openLocked(); err != nil {
			l.failLocked(err)
			return
		}
	}
	if l.maxSize > 0 && l.size > 0 && l.size+int64(len(line)) > l.maxSize {
		if err := l.rotateLocked(); err != nil {
			l.failLocked(err)
			if l.file == nil {
				return
			}
		}
	}

	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		l.failLocked(fmt.Errorf("failed to write security log: %w", err))
		return
	}
	if err := l.file.Sync(); err != nil {
		l.failLocked(fmt.Errorf("failed to sync security log: %w", err))
		return
	}

	if l.echo {
		l.log.Debug(FormatSummary(e))
	}
}

// failLocked counts a failure and reports it at most once a minute.
func (l *FileLogger) failLocked(err error) {
	l.failures++
	if l.warn.Allow() {
		l.log.Warn("security log write failed", "path", l.path, "failures", l.failures, "error", err)
	}
}

// rotateLocked moves the current file to security.log.1, replacing any
// earlier backup, and starts a fresh file.
func (l *FileLogger) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close security log for rotation: %w", err)
	}
	l.file = nil

	renameErr := os.Rename(l.path, l.path+".1")
	if err := l.openLocked(); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("failed to rotate security log: %w", renameErr)
	}
	return nil
}

// Rotate forces a rotation.
func (l *FileLogger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.rotateLocked()
}

// Path returns the path of the active log file.
func (l *FileLogger) Path() string {
	return l.path
}

// Failures returns how many writes have failed since the logger opened.
func (l *FileLogger) Failures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// Close closes the file. Calling Close more than once is safe.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
