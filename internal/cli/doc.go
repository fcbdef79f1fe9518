// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-interactive
// commands of invoicelock.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed global and command-specific flags
//   - Deps: Services a command handler runs against
//   - JSONResponse: Envelope for --json output
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdPassword:
//	    return cli.HandlePassword(ctx, deps, args)
//	case cli.CmdAudit:
//	    return cli.HandleAudit(ctx, deps, args)
//	}
//
// # Commands Overview
//
//   - (none): Start the locked workspace TUI
//   - password: Set the application password or show its state
//   - audit: Show, review or tail the security log
//   - status: Show configuration and lock state
//   - version, help
package cli
