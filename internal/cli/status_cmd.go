// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status_cmd.go - Overall configuration and security status.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/invoicelock/internal/config"
)

// Status is the JSON shape of the status command.
type Status struct {
	Version               string         `json:"version"`
	IdleTimeout           string         `json:"idle_timeout"`
	DeferredRetryInterval string         `json:"deferred_retry_interval"`
	MaxDeferredAttempts   int            `json:"max_deferred_attempts"`
	StorageBackend        string         `json:"storage_backend"`
	AuditEnabled          bool           `json:"audit_enabled"`
	AuditPath             string         `json:"audit_path,omitempty"`
	AuditSize             int64          `json:"audit_size_bytes"`
	Password              PasswordStatus `json:"password"`
	ConfigErrors          []string       `json:"config_errors,omitempty"`
}

func buildStatus(ctx context.Context, d *Deps) (Status, error) {
	pw, err := passwordStatus(ctx, d, time.Now())
	if err != nil {
		return Status{}, err
	}

	cfg := d.Config
	st := Status{
		Version:               Version,
		IdleTimeout:           cfg.IdleTimeout().String(),
		DeferredRetryInterval: cfg.DeferredRetryInterval().String(),
		MaxDeferredAttempts:   cfg.Security.MaxDeferredAttempts,
		StorageBackend:        cfg.Storage.Backend,
		AuditEnabled:          cfg.Audit.Enabled,
		Password:              pw,
	}
	if cfg.Audit.Enabled {
		st.AuditPath = d.AuditPath
		if info, err := os.Stat(d.AuditPath); err == nil {
			st.AuditSize = info.Size()
		}
	}
	if err := cfg.Validate(); err != nil {
		var verrs config.ValidateErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				st.ConfigErrors = append(st.ConfigErrors, v.Error())
			}
		}
	}
	return st, nil
}

// HandleStatus handles the status command.
func HandleStatus(ctx context.Context, d *Deps, args Args) error {
	if args.JSON {
		return outputJSON(d.Out, "status", func() (any, error) {
			return buildStatus(ctx, d)
		})
	}

	st, err := buildStatus(ctx, d)
	if err != nil {
		return err
	}

	fmt.Fprintln(d.Out, TitleStyle.Render("invoicelock "+st.Version))

	fmt.Fprintln(d.Out, SectionStyle.Render("Session"))
	fmt.Fprintln(d.Out, field("Idle timeout", st.IdleTimeout))
	fmt.Fprintln(d.Out, field("Deferred retry", fmt.Sprintf("%s, up to %d times", st.DeferredRetryInterval, st.MaxDeferredAttempts)))

	fmt.Fprintln(d.Out, SectionStyle.Render("Password"))
	if st.Password.Configured {
		fmt.Fprintln(d.Out, field("Configured", SuccessStyle.Render("yes")))
	} else {
		fmt.Fprintln(d.Out, field("Configured", WarningStyle.Render("no")))
	}
	fmt.Fprintln(d.Out, field("Storage", st.StorageBackend))
	if st.Password.LockedOut {
		fmt.Fprintln(d.Out, field("Locked out", ErrorStyle.Render(st.Password.LockoutRemaining+" remaining")))
	}

	fmt.Fprintln(d.Out, SectionStyle.Render("Security log"))
	if st.AuditEnabled {
		fmt.Fprintln(d.Out, field("File", st.AuditPath))
		fmt.Fprintln(d.Out, field("Size", fmt.Sprintf("%d bytes", st.AuditSize)))
	} else {
		fmt.Fprintln(d.Out, field("Enabled", WarningStyle.Render("no")))
	}

	if len(st.ConfigErrors) > 0 {
		fmt.Fprintln(d.Out, SectionStyle.Render("Configuration problems"))
		for _, e := range st.ConfigErrors {
			fmt.Fprintln(d.Out, ErrorStyle.Render("  "+e))
		}
	}
	return nil
}
