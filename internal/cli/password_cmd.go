// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// password_cmd.go - Application password management.
//
// Command: password [subcommand]
// Aliases: pw
//
// Subcommands:
//   status (default)    Show whether a password is set and lockout state
//   set                 Set the password, verifying the current one first
//
// Examples:
//   invoicelock password set
//   invoicelock password status --json
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/invoicelock/internal/security/auth"
	"github.com/jeranaias/invoicelock/internal/util"
)

// ErrPasswordRejected is returned when the current password does not verify.
var ErrPasswordRejected = errors.New("current password was not accepted")

// PasswordStatus is the JSON shape of password status.
type PasswordStatus struct {
	Configured         bool      `json:"configured"`
	CreatedAt          time.Time `json:"created_at,omitzero"`
	Iterations         int       `json:"iterations,omitempty"`
	FailedAttemptCount int       `json:"failed_attempt_count"`
	LockedOut          bool      `json:"locked_out"`
	LockoutRemaining   string    `json:"lockout_remaining,omitempty"`
}

// HandlePassword handles the password command.
func HandlePassword(ctx context.Context, d *Deps, args Args) error {
	switch args.Subcommand {
	case "", "status":
		return handlePasswordStatus(ctx, d, args)
	case "set", "change":
		return handlePasswordSet(ctx, d)
	default:
		return fmt.Errorf("unknown password subcommand %q (expected set or status)", args.Subcommand)
	}
}

func passwordStatus(ctx context.Context, d *Deps, now time.Time) (PasswordStatus, error) {
	rec, err := d.Store.GetCredentialRecord(ctx)
	if err != nil {
		return PasswordStatus{}, err
	}
	st := PasswordStatus{
		Configured:         rec.IsConfigured(),
		CreatedAt:          rec.CreatedAt,
		Iterations:         rec.Iterations,
		FailedAttemptCount: rec.FailedAttemptCount,
	}
	if !rec.LockoutUntil.IsZero() && now.Before(rec.LockoutUntil) {
		st.LockedOut = true
		st.LockoutRemaining = util.FormatCountdown(rec.LockoutUntil.Sub(now))
	}
	return st, nil
}

func handlePasswordStatus(ctx context.Context, d *Deps, args Args) error {
	if args.JSON {
		return outputJSON(d.Out, "password status", func() (any, error) {
			return passwordStatus(ctx, d, time.Now())
		})
	}

	st, err := passwordStatus(ctx, d, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintln(d.Out, TitleStyle.Render("Application Password"))
	if !st.Configured {
		fmt.Fprintln(d.Out, field("Configured", WarningStyle.Render("no")))
		fmt.Fprintln(d.Out, DimStyle.Render("Run 'invoicelock password set' to choose one."))
		return nil
	}
	fmt.Fprintln(d.Out, field("Configured", SuccessStyle.Render("yes")))
	fmt.Fprintln(d.Out, field("Set at", st.CreatedAt.Local().Format(time.RFC1123)))
	fmt.Fprintln(d.Out, field("Iterations", fmt.Sprint(st.Iterations)))
	fmt.Fprintln(d.Out, field("Failed attempts", fmt.Sprint(st.FailedAttemptCount)))
	if st.LockedOut {
		fmt.Fprintln(d.Out, field("Locked out", ErrorStyle.Render("yes, "+st.LockoutRemaining+" remaining")))
	} else {
		fmt.Fprintln(d.Out, field("Locked out", "no"))
	}
	return nil
}

func handlePasswordSet(ctx context.Context, d *Deps) error {
	set, err := d.Auth.IsPasswordSet(ctx)
	if err != nil {
		return err
	}

	if set {
		current, err := d.readPassword("Current password: ")
		if err != nil {
			return err
		}
		res, err := d.Auth.VerifyPasswordWithPolicy(ctx, current)
		if err != nil {
			return err
		}
		switch res.Status {
		case auth.Success:
		case auth.LockedOut:
			return fmt.Errorf("%w: too many attempts, try again in %s",
				ErrPasswordRejected, util.FormatCountdown(res.LockoutRemaining))
		default:
			return ErrPasswordRejected
		}
	}

	password, err := d.readPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := d.readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if v := auth.ValidateNewPassword(password, confirm); v != auth.Valid {
		return errors.New(v.Message())
	}

	if err := d.Auth.SetPassword(ctx, password); err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	fmt.Fprintln(d.Out, SuccessStyle.Render("Password set."))
	return nil
}
