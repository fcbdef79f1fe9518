// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_Default(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5*time.Minute, cfg.IdleTimeout())
	require.Equal(t, time.Second, cfg.CheckInterval())
	require.Equal(t, 500*time.Millisecond, cfg.DeferredRetryInterval())
	require.Equal(t, 20, cfg.Security.MaxDeferredAttempts)
	require.Equal(t, 100000, cfg.Security.KDFIterations)
	require.Equal(t, int64(10*1024*1024), cfg.AuditMaxSize())
	require.True(t, cfg.Audit.Enabled)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero idle timeout", func(c *Config) { c.Security.IdleTimeoutSecs = 0 }, "security.idle_timeout_secs"},
		{"negative check interval", func(c *Config) { c.Security.CheckIntervalMs = -1 }, "security.check_interval_ms"},
		{"zero retry interval", func(c *Config) { c.Security.DeferredRetryIntervalMs = 0 }, "security.deferred_retry_interval_ms"},
		{"zero deferred cap", func(c *Config) { c.Security.MaxDeferredAttempts = 0 }, "security.max_deferred_attempts"},
		{"weak kdf", func(c *Config) { c.Security.KDFIterations = 1000 }, "security.kdf_iterations"},
		{"negative audit size", func(c *Config) { c.Audit.MaxSizeMB = -5 }, "audit.max_size_mb"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			require.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestConfig_SanitizeReportsFallbacks(t *testing.T) {
	cfg := Default()
	cfg.Security.IdleTimeoutSecs = -30
	cfg.Storage.Backend = "redis"
	cfg.Log.Level = "DEBUG"

	fallbacks := cfg.Sanitize()
	require.Equal(t, []Fallback{
		{Setting: "security.idle_timeout_secs", Configured: "-30", Fallback: "300"},
		{Setting: "storage.backend", Configured: "redis", Fallback: "sqlite"},
	}, fallbacks)

	require.NoError(t, cfg.Validate())
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.Empty(t, cfg.Sanitize())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[security]
idle_timeout_secs = 60

[storage]
backend = "json"
path = "/tmp/creds.json"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, time.Minute, cfg.IdleTimeout())
	require.Equal(t, 1000, cfg.Security.CheckIntervalMs)
	require.Equal(t, "json", cfg.Storage.Backend)
	require.Equal(t, "/tmp/creds.json", cfg.Storage.Path)
	require.True(t, cfg.Audit.Enabled)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[security\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INVOICELOCK_SECURITY_IDLE_TIMEOUT_SECS", "42")
	t.Setenv("INVOICELOCK_AUDIT_ECHO", "true")
	t.Setenv("INVOICELOCK_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, 42*time.Second, cfg.IdleTimeout())
	require.True(t, cfg.Audit.Echo)
	require.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("INVOICELOCK_SECURITY_MAX_DEFERRED_ATTEMPTS", "many")

	_, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	want := Default()
	want.Security.IdleTimeoutSecs = 900
	want.Audit.Dir = "/var/log/invoicelock"
	require.NoError(t, Save(want, path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "# invoicelock configuration file")
	require.Contains(t, string(data), "idle_timeout_secs = 900")
}
