// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// audit_cmd.go - Security log inspection.
//
// Command: audit [subcommand]
//
// Subcommands:
//   show (default)      Show the last N entries (-n N, default 20)
//   review              Summarize lock cycles, attempts and lockouts
//   tail                Print recent entries; -f keeps following the file
//
// Examples:
//   invoicelock audit show -n 50
//   invoicelock audit review --json
//   invoicelock audit tail -f
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/invoicelock/internal/security/audit"
)

// HandleAudit handles the audit command.
func HandleAudit(ctx context.Context, d *Deps, args Args) error {
	switch args.Subcommand {
	case "", "show", "list":
		return handleAuditShow(d, args)
	case "review", "summary":
		return handleAuditReview(d, args)
	case "tail":
		return handleAuditTail(ctx, d, args)
	default:
		return fmt.Errorf("unknown audit subcommand %q (expected show, review or tail)", args.Subcommand)
	}
}

// readAuditLog returns every entry in the active log. A missing log is empty.
func readAuditLog(d *Deps) ([]audit.Entry, int, error) {
	entries, malformed, err := audit.ReadFile(d.AuditPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read security log: %w", err)
	}
	if malformed > 0 {
		d.logger().Warn("skipped malformed security log lines", "path", d.AuditPath, "count", malformed)
	}
	return entries, malformed, nil
}

func lastN(entries []audit.Entry, n int) []audit.Entry {
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}

func handleAuditShow(d *Deps, args Args) error {
	entries, _, err := readAuditLog(d)
	if err != nil {
		return err
	}
	entries = lastN(entries, args.Limit)

	if args.JSON {
		return outputJSON(d.Out, "audit show", func() (any, error) {
			if entries == nil {
				entries = []audit.Entry{}
			}
			return entries, nil
		})
	}

	if len(entries) == 0 {
		fmt.Fprintln(d.Out, DimStyle.Render("No security events recorded in "+d.AuditPath))
		return nil
	}
	for _, e := range entries {
		printEntry(d, e)
	}
	return nil
}

func printEntry(d *Deps, e audit.Entry) {
	ts := DimStyle.Render(e.Timestamp.Local().Format("2006-01-02 15:04:05"))
	summary := audit.FormatSummary(e)
	switch e.Event {
	case audit.EventUnlockFailed, audit.EventLockoutActiveRejection:
		summary = WarningStyle.Render(summary)
	case audit.EventLockoutStarted, audit.EventHandlerException:
		summary = ErrorStyle.Render(summary)
	case audit.EventUnlockSuccess:
		summary = SuccessStyle.Render(summary)
	}
	fmt.Fprintf(d.Out, "%s  %s\n", ts, summary)
}

func handleAuditReview(d *Deps, args Args) error {
	entries, malformed, err := readAuditLog(d)
	if err != nil {
		return err
	}
	report := audit.Review(entries)

	if args.JSON {
		return outputJSON(d.Out, "audit review", func() (any, error) {
			return struct {
				audit.Report
				Malformed int `json:"malformed"`
			}{report, malformed}, nil
		})
	}

	fmt.Fprintln(d.Out, TitleStyle.Render("Security Log Review"))
	fmt.Fprintln(d.Out, field("Log file", d.AuditPath))
	if malformed > 0 {
		fmt.Fprintln(d.Out, field("Malformed lines", WarningStyle.Render(fmt.Sprint(malformed))))
	}
	fmt.Fprintln(d.Out)
	return report.WriteText(d.Out)
}

func handleAuditTail(ctx context.Context, d *Deps, args Args) error {
	entries, _, err := readAuditLog(d)
	if err != nil {
		return err
	}

	emit := func(e audit.Entry) { printEntry(d, e) }
	if args.JSON {
		enc := json.NewEncoder(d.Out)
		enc.SetEscapeHTML(false)
		emit = func(e audit.Entry) { _ = enc.Encode(e) }
	}

	for _, e := range lastN(entries, args.Limit) {
		emit(e)
	}
	if !args.Follow {
		return nil
	}

	err = audit.Follow(ctx, d.AuditPath, emit)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
