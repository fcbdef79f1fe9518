// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads invoicelock settings.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (INVOICELOCK_*)
//   - ~/.invoicelock/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, fb := range cfg.Sanitize() {
//	    recorder.ConfigFallback(fb.Setting, fb.Configured, fb.Fallback)
//	}
//
//	timeout := cfg.IdleTimeout()
package config
