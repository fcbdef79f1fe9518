// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/invoicelock/internal/security/auth"
)

// ErrNewerSchema is returned when the database was written by a newer build.
var ErrNewerSchema = errors.New("credential database schema is newer than supported")

// SQLiteStore keeps the credential record in an SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Best effort: the database may live on a filesystem without modes.
	_ = os.Chmod(path, 0600)

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("%w (found %d, want %d)", ErrNewerSchema, version, schemaVersion)
	}

	for v := version; v < len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// GetCredentialRecord reads the record. An empty table yields the zero record.
func (s *SQLiteStore) GetCredentialRecord(ctx context.Context) (auth.CredentialRecord, error) {
	var (
		rec                                auth.CredentialRecord
		createdAt, lastFailed, lockoutEnds string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash, password_salt, iterations, created_at,
		       failed_attempt_count, last_failed_at, lockout_until
		FROM credentials WHERE id = 1
	`).Scan(&rec.PasswordHash, &rec.PasswordSalt, &rec.Iterations, &createdAt,
		&rec.FailedAttemptCount, &lastFailed, &lockoutEnds)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.CredentialRecord{}, nil
	}
	if err != nil {
		return auth.CredentialRecord{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return auth.CredentialRecord{}, fmt.Errorf("created_at: %w", err)
	}
	if rec.LastFailedAt, err = parseTime(lastFailed); err != nil {
		return auth.CredentialRecord{}, fmt.Errorf("last_failed_at: %w", err)
	}
	if rec.LockoutUntil, err = parseTime(lockoutEnds); err != nil {
		return auth.CredentialRecord{}, fmt.Errorf("lockout_until: %w", err)
	}
	return rec, nil
}

// UpdateCredentialRecord replaces the record.
func (s *SQLiteStore) UpdateCredentialRecord(ctx context.Context, rec auth.CredentialRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, password_hash, password_salt, iterations, created_at,
		                         failed_attempt_count, last_failed_at, lockout_until, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			password_hash = excluded.password_hash,
			password_salt = excluded.password_salt,
			iterations = excluded.iterations,
			created_at = excluded.created_at,
			failed_attempt_count = excluded.failed_attempt_count,
			last_failed_at = excluded.last_failed_at,
			lockout_until = excluded.lockout_until,
			updated_at = excluded.updated_at
	`, rec.PasswordHash, rec.PasswordSalt, rec.Iterations, formatTime(rec.CreatedAt),
		rec.FailedAttemptCount, formatTime(rec.LastFailedAt), formatTime(rec.LockoutUntil),
		formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
