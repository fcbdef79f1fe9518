// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/invoicelock/internal/security/auth"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Store is a credential store that holds resources until closed.
type Store interface {
	auth.Store
	Close() error
}

// DefaultDir returns ~/.invoicelock.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".invoicelock")
}

// DefaultPath returns the default file for a backend.
func DefaultPath(backend string) string {
	if strings.EqualFold(backend, BackendJSON) {
		return filepath.Join(DefaultDir(), "credentials.json")
	}
	return filepath.Join(DefaultDir(), "credentials.db")
}

// Open opens the named backend at path. An empty path selects the default.
func Open(backend, path string) (Store, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = BackendSQLite
	}
	if path == "" {
		path = DefaultPath(backend)
	}

	switch backend {
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendJSON:
		return NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected %s or %s)", backend, BackendSQLite, BackendJSON)
	}
}
