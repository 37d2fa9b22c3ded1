// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

// Package config defines the immutable runtime configuration for zeytinvault.
//
// Configuration is assembled exactly once at process start and passed
// explicitly to every component constructor. Two layers are merged via
// Koanf v2 (highest priority wins):
//
//  1. Built-in defaults (structs provider)
//  2. Environment variables (env provider)
//
// The environment surface intentionally accepts the variable names used by
// the deployed analysis service (BACKUP_DIR, DATA_PATH, SMTP_HOST, ...) so
// that zeytinvault can run in the same container environment without a
// separate configuration set.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Backend identifies a remote replication backend.
type Backend string

const (
	// BackendSecureCopy uploads snapshots over SSH using the SCP protocol.
	BackendSecureCopy Backend = "secure-copy"

	// BackendObjectStore uploads snapshots to an S3-compatible bucket.
	BackendObjectStore Backend = "object-store"
)

// Config is the complete runtime configuration.
type Config struct {
	// AppPrefix is the snapshot filename prefix, e.g. "zeytin_analiz".
	AppPrefix string `koanf:"app_prefix"`

	// AppRoot is the deployment root; relative config paths resolve under it.
	AppRoot string `koanf:"app_root"`

	// DataDir is the live state directory captured by every snapshot.
	DataDir string `koanf:"data_dir"`

	// BackupDir is where snapshots, the run lock, and logs live.
	BackupDir string `koanf:"backup_dir"`

	// DatabasePath is the SQLite database whose consistency is probed
	// before a backup run.
	DatabasePath string `koanf:"database_path"`

	// ConfigPaths are the configuration files bundled into each snapshot,
	// relative to AppRoot unless absolute. Missing entries are skipped.
	ConfigPaths []string `koanf:"config_paths"`

	// RetentionDays is the age in days after which snapshots are collected.
	RetentionDays int `koanf:"retention_days"`

	// MinFreeGB is the free-space floor on the backup volume.
	MinFreeGB float64 `koanf:"min_free_gb"`

	Compression CompressionConfig `koanf:"compression"`
	Log         LogConfig         `koanf:"log"`
	Email       EmailConfig       `koanf:"email"`
	Remote      RemoteConfig      `koanf:"remote"`
	Service     ServiceConfig     `koanf:"service"`
}

// CompressionConfig controls the gzip pass over finished archives.
type CompressionConfig struct {
	Enabled bool `koanf:"enabled"`

	// Level is the gzip level, 1-9.
	Level int `koanf:"level"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// File, when set, receives a copy of the run log in addition to stderr.
	File string `koanf:"file"`
}

// EmailConfig controls the SMTP notification channel.
type EmailConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	To       string `koanf:"to"`
}

// RemoteConfig selects and parameterizes the off-site replication target.
type RemoteConfig struct {
	Enabled bool    `koanf:"enabled"`
	Backend Backend `koanf:"backend"`

	// secure-copy backend
	Host       string `koanf:"host"`
	User       string `koanf:"user"`
	RemotePath string `koanf:"remote_path"`
	KeyFile    string `koanf:"key_file"`
	Password   string `koanf:"password"`

	// object-store backend
	Bucket    string `koanf:"bucket"`
	KeyPrefix string `koanf:"key_prefix"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`

	// UploadTimeout bounds a single replication attempt.
	UploadTimeout time.Duration `koanf:"upload_timeout"`
}

// ServiceConfig describes how the externally managed application services
// are queried, stopped, and started.
type ServiceConfig struct {
	// ComposeFile is the docker compose file governing the deployment.
	ComposeFile string `koanf:"compose_file"`

	// SettleDelay is how long to wait after a start before verifying
	// that services report running.
	SettleDelay time.Duration `koanf:"settle_delay"`

	// CommandTimeout bounds a single service control invocation.
	CommandTimeout time.Duration `koanf:"command_timeout"`
}

// defaultConfig returns a Config with all default values. Defaults mirror
// the deployed analysis service's own settings so a bare invocation inside
// the application container does the right thing.
func defaultConfig() *Config {
	return &Config{
		AppPrefix:    "zeytin_analiz",
		AppRoot:      "/app",
		DataDir:      "/app/data",
		BackupDir:    "/backups",
		DatabasePath: "/app/data/analiz.db",
		ConfigPaths: []string{
			"app/config.py",
			"nginx/nginx.conf",
			"gunicorn.conf.py",
			"docker-compose.yml",
			"requirements.txt",
		},
		RetentionDays: 30,
		MinFreeGB:     2,
		Compression: CompressionConfig{
			Enabled: true,
			Level:   6,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
		Email: EmailConfig{
			Enabled: false,
			Port:    587,
		},
		Remote: RemoteConfig{
			Enabled:       false,
			Backend:       BackendSecureCopy,
			KeyPrefix:     "zeytin-backups",
			Region:        "us-east-1",
			UploadTimeout: 10 * time.Minute,
		},
		Service: ServiceConfig{
			ComposeFile:    "docker-compose.yml",
			SettleDelay:    10 * time.Second,
			CommandTimeout: 2 * time.Minute,
		},
	}
}

// Validate checks that the configuration is internally consistent.
//
//nolint:gocyclo // Validation function with many sequential checks
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup directory is required")
	}
	if !filepath.IsAbs(c.BackupDir) {
		return fmt.Errorf("backup directory must be an absolute path, got: %s", c.BackupDir)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.AppPrefix == "" {
		return fmt.Errorf("snapshot prefix is required")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention days must be >= 0, got: %d", c.RetentionDays)
	}
	if c.MinFreeGB < 0 {
		return fmt.Errorf("minimum free space must be >= 0, got: %.1f", c.MinFreeGB)
	}

	if c.Compression.Enabled {
		if c.Compression.Level < 1 || c.Compression.Level > 9 {
			return fmt.Errorf("compression level must be between 1 and 9, got: %d", c.Compression.Level)
		}
	}

	if c.Email.Enabled {
		if c.Email.Host == "" {
			return fmt.Errorf("SMTP host is required when email notifications are enabled")
		}
		if c.Email.Port < 1 || c.Email.Port > 65535 {
			return fmt.Errorf("SMTP port must be between 1 and 65535, got: %d", c.Email.Port)
		}
		if c.Email.To == "" {
			return fmt.Errorf("notification recipient is required when email notifications are enabled")
		}
	}

	if c.Remote.Enabled {
		switch c.Remote.Backend {
		case BackendSecureCopy, BackendObjectStore:
		default:
			return fmt.Errorf("remote backend must be %q or %q, got: %q",
				BackendSecureCopy, BackendObjectStore, c.Remote.Backend)
		}
		if c.Remote.UploadTimeout <= 0 {
			return fmt.Errorf("upload timeout must be positive, got: %s", c.Remote.UploadTimeout)
		}
	}

	return nil
}

// ResolveConfigPath resolves a configured path against AppRoot.
func (c *Config) ResolveConfigPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.AppRoot, p)
}
