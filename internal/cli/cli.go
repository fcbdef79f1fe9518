// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for invoicelock.
package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdPassword
	CmdAudit
	CmdStatus
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdPassword:
		return "password"
	case CmdAudit:
		return "audit"
	case CmdStatus:
		return "status"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	JSON       bool
	Verbose    bool

	// Command-specific
	Subcommand string
	Follow     bool
	Limit      int

	// Raw args (remaining after flag parsing)
	Raw []string
}

// DefaultAuditLimit is how many entries audit show/tail print by default.
const DefaultAuditLimit = 20

const usageText = `invoicelock - session lock for the invoice workspace

Usage:
  invoicelock                      Start the workspace (default)
  invoicelock password set         Set or change the application password
  invoicelock password status      Show password and lockout state
  invoicelock audit show [-n N]    Show the last N security log entries
  invoicelock audit review         Summarize lock cycles and unlock attempts
  invoicelock audit tail [-f]      Print recent entries, optionally following
  invoicelock status, s            Show configuration and security status
  invoicelock version              Show version information
  invoicelock help                 Show this help

Global flags:
  --config PATH    Use PATH instead of ~/.invoicelock/config.toml
  --json           Machine-readable output where supported
  -v, --verbose    Debug logging (stderr, or debug.log beside the security log in the TUI)

Environment:
  INVOICELOCK_SECURITY_IDLE_TIMEOUT_SECS, INVOICELOCK_STORAGE_BACKEND, ...
  override the matching config.toml settings.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "invoicelock version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, parsed, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, parsed, err
	}
	if len(remaining) == 0 {
		return CmdTUI, parsed, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsed, nil

	case "password", "pw":
		parsed.Subcommand = "status"
		if len(remaining) > 0 {
			parsed.Subcommand = strings.ToLower(remaining[0])
		}
		return CmdPassword, parsed, nil

	case "audit":
		err := parseAuditArgs(&parsed, remaining)
		return CmdAudit, parsed, err

	case "status", "s":
		return CmdStatus, parsed, nil

	case "version", "--version":
		return CmdVersion, parsed, nil

	case "help", "-h", "--help":
		return CmdHelp, parsed, nil

	default:
		return CmdHelp, parsed, fmt.Errorf("unknown command %q", cmd)
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args, error) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--json":
			parsed.JSON = true
		case arg == "-v" || arg == "--verbose":
			parsed.Verbose = true
		case arg == "--config":
			if i+1 >= len(args) {
				return nil, parsed, fmt.Errorf("--config requires a path")
			}
			i++
			parsed.ConfigPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			parsed.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, parsed, nil
}

// parseAuditArgs parses audit subcommands and their flags.
func parseAuditArgs(args *Args, remaining []string) error {
	args.Subcommand = "show"
	args.Limit = DefaultAuditLimit

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case arg == "-f" || arg == "--follow":
			args.Follow = true
		case arg == "-n" || arg == "--limit":
			if i+1 >= len(remaining) {
				return fmt.Errorf("%s requires a number", arg)
			}
			i++
			n, err := strconv.Atoi(remaining[i])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid limit %q", remaining[i])
			}
			args.Limit = n
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown audit flag %q", arg)
		default:
			args.Subcommand = strings.ToLower(arg)
		}
	}
	return nil
}
