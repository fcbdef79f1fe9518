// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/invoicelock/internal/util"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INVOICELOCK_"

// MinKDFIterations is the lowest accepted PBKDF2 iteration count.
const MinKDFIterations = 10000

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete invoicelock configuration.
type Config struct {
	Security SecurityConfig `toml:"security" json:"security" envPrefix:"SECURITY_"`
	Audit    AuditConfig    `toml:"audit" json:"audit" envPrefix:"AUDIT_"`
	Storage  StorageConfig  `toml:"storage" json:"storage" envPrefix:"STORAGE_"`
	Log      LogConfig      `toml:"log" json:"log" envPrefix:"LOG_"`
}

// SecurityConfig controls session locking and password hashing.
type SecurityConfig struct {
	// IdleTimeoutSecs is how long the user may be idle before locking.
	IdleTimeoutSecs int `toml:"idle_timeout_secs" json:"idle_timeout_secs" env:"IDLE_TIMEOUT_SECS"`

	// CheckIntervalMs is how often the idle timer samples the clock.
	CheckIntervalMs int `toml:"check_interval_ms" json:"check_interval_ms" env:"CHECK_INTERVAL_MS"`

	// DeferredRetryIntervalMs is the wait before re-evaluating a deferred lock.
	DeferredRetryIntervalMs int `toml:"deferred_retry_interval_ms" json:"deferred_retry_interval_ms" env:"DEFERRED_RETRY_INTERVAL_MS"`

	// MaxDeferredAttempts caps consecutive deferrals before locking anyway.
	MaxDeferredAttempts int `toml:"max_deferred_attempts" json:"max_deferred_attempts" env:"MAX_DEFERRED_ATTEMPTS"`

	// KDFIterations is used for newly set passwords only.
	KDFIterations int `toml:"kdf_iterations" json:"kdf_iterations" env:"KDF_ITERATIONS"`
}

// AuditConfig controls the security log.
type AuditConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" env:"ENABLED"`
	Dir       string `toml:"dir" json:"dir" env:"DIR"`
	MaxSizeMB int    `toml:"max_size_mb" json:"max_size_mb" env:"MAX_SIZE_MB"`
	Echo      bool   `toml:"echo" json:"echo" env:"ECHO"`
}

// StorageConfig selects where the credential record lives.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend" env:"BACKEND"`
	Path    string `toml:"path" json:"path" env:"PATH"`
}

// LogConfig controls operational logging.
type LogConfig struct {
	Level string `toml:"level" json:"level" env:"LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Security: SecurityConfig{
			IdleTimeoutSecs:         300,
			CheckIntervalMs:         1000,
			DeferredRetryIntervalMs: 500,
			MaxDeferredAttempts:     20,
			KDFIterations:           100000,
		},
		Audit: AuditConfig{
			Enabled:   true,
			MaxSizeMB: 10,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// IdleTimeout returns the inactivity timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Security.IdleTimeoutSecs) * time.Second
}

// CheckInterval returns the idle timer sampling interval.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Security.CheckIntervalMs) * time.Millisecond
}

// DeferredRetryInterval returns the deferred lock retry interval.
func (c *Config) DeferredRetryInterval() time.Duration {
	return time.Duration(c.Security.DeferredRetryIntervalMs) * time.Millisecond
}

// AuditMaxSize returns the rotation threshold in bytes. Zero disables rotation.
func (c *Config) AuditMaxSize() int64 {
	return int64(c.Audit.MaxSizeMB) * 1024 * 1024
}

// SlogLevel maps Log.Level to a slog level. Unknown names map to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the invoicelock configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".invoicelock"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads path (the default location when empty) over the built-in
// defaults and applies environment overrides. A missing file is not an
// error. Values are not validated; call Sanitize or Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg. Keys missing from the file keep the
// values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions on config file", "path", path, "error", err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies INVOICELOCK_* variables, for example
// INVOICELOCK_SECURITY_IDLE_TIMEOUT_SECS or INVOICELOCK_STORAGE_BACKEND.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	return nil
}

// Save writes cfg to path as TOML with 0600 permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# invoicelock configuration file\n")
	buf.WriteString("# Generated by invoicelock - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fallback describes a setting that Sanitize replaced with its default.
type Fallback struct {
	Setting    string
	Configured string
	Fallback   string
}

// rule checks one setting and can reset it to its default.
type rule struct {
	field      string
	message    string
	valid      func() bool
	configured func() string
	reset      func() string
}

func intRule(field string, v *int, def, min int, message string) rule {
	return rule{
		field:      field,
		message:    message,
		valid:      func() bool { return *v >= min },
		configured: func() string { return strconv.Itoa(*v) },
		reset: func() string {
			*v = def
			return strconv.Itoa(def)
		},
	}
}

func oneOfRule(field string, v *string, def string, allowed ...string) rule {
	return rule{
		field:   field,
		message: "must be one of: " + strings.Join(allowed, ", "),
		valid: func() bool {
			for _, a := range allowed {
				if strings.EqualFold(*v, a) {
					return true
				}
			}
			return false
		},
		configured: func() string { return *v },
		reset: func() string {
			*v = def
			return def
		},
	}
}

func (c *Config) rules() []rule {
	d := Default()
	return []rule{
		intRule("security.idle_timeout_secs", &c.Security.IdleTimeoutSecs,
			d.Security.IdleTimeoutSecs, 1, "must be greater than zero"),
		intRule("security.check_interval_ms", &c.Security.CheckIntervalMs,
			d.Security.CheckIntervalMs, 1, "must be greater than zero"),
		intRule("security.deferred_retry_interval_ms", &c.Security.DeferredRetryIntervalMs,
			d.Security.DeferredRetryIntervalMs, 1, "must be greater than zero"),
		intRule("security.max_deferred_attempts", &c.Security.MaxDeferredAttempts,
			d.Security.MaxDeferredAttempts, 1, "must be at least 1"),
		intRule("security.kdf_iterations", &c.Security.KDFIterations,
			d.Security.KDFIterations, MinKDFIterations, fmt.Sprintf("must be at least %d", MinKDFIterations)),
		intRule("audit.max_size_mb", &c.Audit.MaxSizeMB,
			d.Audit.MaxSizeMB, 0, "must not be negative"),
		oneOfRule("storage.backend", &c.Storage.Backend, d.Storage.Backend, "sqlite", "json"),
		oneOfRule("log.level", &c.Log.Level, d.Log.Level, "debug", "info", "warn", "error"),
	}
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs ValidateErrors
	for _, r := range c.rules() {
		if !r.valid() {
			errs = append(errs, ValidationError{
				Field:   r.field,
				Message: fmt.Sprintf("invalid value %q, %s", r.configured(), r.message),
			})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Sanitize replaces every out-of-range setting with its default and
// returns what it replaced. The result is always valid.
func (c *Config) Sanitize() []Fallback {
	var fallbacks []Fallback
	for _, r := range c.rules() {
		if r.valid() {
			continue
		}
		configured := r.configured()
		fallbacks = append(fallbacks, Fallback{
			Setting:    r.field,
			Configured: configured,
			Fallback:   r.reset(),
		})
	}
	return fallbacks
}
