// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"log/slog"

	"github.com/jeranaias/invoicelock/internal/config"
	"github.com/jeranaias/invoicelock/internal/security/audit"
	"github.com/jeranaias/invoicelock/internal/security/auth"
)

// Deps carries what command handlers need. main builds it once.
type Deps struct {
	Config *config.Config
	Log    *slog.Logger

	// Audit receives security events; AuditPath is the active log file.
	Audit     audit.Logger
	AuditPath string

	Store auth.Store
	Auth  *auth.Authenticator

	// ReadPassword reads a secret without echo. Defaults to the terminal.
	ReadPassword func(prompt string) (string, error)

	Out io.Writer
}

func (d *Deps) readPassword(prompt string) (string, error) {
	if d.ReadPassword != nil {
		return d.ReadPassword(prompt)
	}
	return ReadPassword(prompt)
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
