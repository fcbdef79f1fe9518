// invoicelock - An invoice workspace that locks itself when you walk away.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/invoicelock/internal/cli"
	"github.com/jeranaias/invoicelock/internal/config"
	"github.com/jeranaias/invoicelock/internal/lockscreen"
	"github.com/jeranaias/invoicelock/internal/security/audit"
	"github.com/jeranaias/invoicelock/internal/security/auth"
	"github.com/jeranaias/invoicelock/internal/security/coordinator"
	"github.com/jeranaias/invoicelock/internal/security/idle"
	"github.com/jeranaias/invoicelock/internal/storage"
	"github.com/jeranaias/invoicelock/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// debugLogName receives operational logs while the TUI runs with -v.
const debugLogName = "debug.log"

// errCanceled is returned when the startup password dialog is dismissed.
var errCanceled = errors.New("startup authentication canceled")

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errCanceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(argv []string) error {
	cmd, args, err := cli.Parse(argv)
	if err != nil {
		cli.PrintUsage(os.Stderr)
		return err
	}
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return nil
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return nil
	}

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return err
	}

	auditDir := cfg.Audit.Dir
	if auditDir == "" {
		auditDir = audit.DefaultDir()
	}
	auditPath := filepath.Join(auditDir, audit.LogFileName)

	level := cfg.SlogLevel()
	if args.Verbose {
		level = slog.LevelDebug
	}
	logOut, closeLog, err := logWriter(cmd, args.Verbose, auditDir)
	if err != nil {
		return err
	}
	defer closeLog()
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	// status reports configured values as written, problems included.
	var fallbacks []config.Fallback
	if cmd != cli.CmdStatus {
		fallbacks = cfg.Sanitize()
	}

	var auditLog audit.Logger = audit.Discard
	if cfg.Audit.Enabled {
		fl, err := audit.NewFileLogger(auditDir,
			audit.WithMaxSize(cfg.AuditMaxSize()),
			audit.WithEcho(cfg.Audit.Echo),
			audit.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer fl.Close()
		auditLog = fl
	}

	rec := audit.NewRecorder(auditLog)
	for _, fb := range fallbacks {
		log.Warn("invalid configuration value replaced", "setting", fb.Setting,
			"configured", fb.Configured, "fallback", fb.Fallback)
		rec.ConfigFallback(fb.Setting, fb.Configured, fb.Fallback)
	}

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	authenticator := auth.New(store,
		auth.WithIterations(cfg.Security.KDFIterations),
		auth.WithAuditLogger(auditLog),
		auth.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Deps{
		Config:    cfg,
		Log:       log,
		Audit:     auditLog,
		AuditPath: auditPath,
		Store:     store,
		Auth:      authenticator,
		Out:       os.Stdout,
	}

	switch cmd {
	case cli.CmdPassword:
		return cli.HandlePassword(ctx, deps, args)
	case cli.CmdAudit:
		return cli.HandleAudit(ctx, deps, args)
	case cli.CmdStatus:
		return cli.HandleStatus(ctx, deps, args)
	default:
		return runTUI(ctx, deps)
	}
}

// runTUI starts the locked workspace.
func runTUI(ctx context.Context, d *cli.Deps) error {
	if err := cli.RequiresTTY("invoicelock"); err != nil {
		return err
	}
	cfg := d.Config

	coord, err := coordinator.New(d.Auth,
		coordinator.WithDeferredRetryInterval(cfg.DeferredRetryInterval()),
		coordinator.WithMaxDeferredAttempts(cfg.Security.MaxDeferredAttempts),
		coordinator.WithAuditLogger(d.Audit),
		coordinator.WithLogger(d.Log),
	)
	if err != nil {
		return err
	}

	timer, err := idle.New(cfg.IdleTimeout(),
		idle.WithCheckInterval(cfg.CheckInterval()),
		idle.WithAuditLogger(d.Audit),
		idle.WithLogger(d.Log),
	)
	if err != nil {
		return err
	}
	defer timer.Close()

	overlay := lockscreen.NewOverlay(coord,
		lockscreen.WithAuditLogger(d.Audit),
		lockscreen.WithLogger(d.Log),
	)
	dialog := lockscreen.NewPasswordDialog(coord, d.Auth, false,
		lockscreen.WithAuditLogger(d.Audit),
		lockscreen.WithLogger(d.Log),
	)
	if err := dialog.Initialize(ctx); err != nil {
		return err
	}

	m := ui.New(ui.Config{
		Coordinator: coord,
		Timer:       timer,
		Overlay:     overlay,
		Dialog:      dialog,
		Logger:      d.Log,
	})

	d.Log.Debug("starting workspace", "idle_timeout", cfg.IdleTimeout())

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	coord.MarkShuttingDown()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running invoicelock: %w", err)
	}

	if fm, ok := final.(ui.Model); ok && fm.Canceled() {
		return errCanceled
	}
	return nil
}

// logWriter picks the operational log destination. The TUI owns the
// terminal, so it logs to debugLogName under -v and nowhere otherwise.
func logWriter(cmd cli.Command, verbose bool, dir string) (io.Writer, func(), error) {
	if cmd != cli.CmdTUI {
		return os.Stderr, func() {}, nil
	}
	if !verbose {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, debugLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	return f, func() { f.Close() }, nil
}
