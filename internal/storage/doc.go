// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the application credential record.
//
// Two backends implement auth.Store:
//
//   - SQLiteStore: a single-row table in an SQLite database (modernc.org/sqlite)
//   - FileStore: a JSON document written atomically
//
// # Usage
//
//	store, err := storage.Open(storage.BackendSQLite, "")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec, err := store.GetCredentialRecord(ctx)
//
// # Storage Location
//
// By default data lives in ~/.invoicelock/ (credentials.db or
// credentials.json). Files are created with 0600 permissions.
package storage
