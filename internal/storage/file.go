// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jeranaias/invoicelock/internal/security/auth"
	"github.com/jeranaias/invoicelock/internal/util"
)

// FileStore keeps the credential record in a JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on the
// first update.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// GetCredentialRecord reads the record. A missing file yields the zero record.
func (s *FileStore) GetCredentialRecord(ctx context.Context) (auth.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return auth.CredentialRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return auth.CredentialRecord{}, nil
	}
	if err != nil {
		return auth.CredentialRecord{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	var rec auth.CredentialRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return auth.CredentialRecord{}, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return rec, nil
}

// UpdateCredentialRecord replaces the record atomically with 0600 permissions.
func (s *FileStore) UpdateCredentialRecord(ctx context.Context, rec auth.CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
