// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AppPrefix != "zeytin_analiz" {
		t.Errorf("prefix = %q, want zeytin_analiz", cfg.AppPrefix)
	}
	if cfg.BackupDir != "/backups" {
		t.Errorf("backup dir = %q, want /backups", cfg.BackupDir)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("retention days = %d, want 30", cfg.RetentionDays)
	}
	if cfg.MinFreeGB != 2 {
		t.Errorf("min free GB = %v, want 2", cfg.MinFreeGB)
	}
	if !cfg.Compression.Enabled || cfg.Compression.Level != 6 {
		t.Errorf("compression = %+v, want enabled level 6", cfg.Compression)
	}
	if len(cfg.ConfigPaths) != 5 {
		t.Errorf("config paths = %v, want 5 entries", cfg.ConfigPaths)
	}
	if cfg.Remote.Enabled {
		t.Error("remote replication enabled by default")
	}
	if cfg.Email.Enabled {
		t.Error("email notifications enabled by default")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BACKUP_DIR", "/mnt/backups")
	t.Setenv("DATA_PATH", "/srv/data")
	t.Setenv("DATABASE_URL", "/srv/data/app.db")
	t.Setenv("BACKUP_RETENTION_DAYS", "7")
	t.Setenv("BACKUP_COMPRESSION", "false")
	t.Setenv("CONFIG_PATHS", "app/config.py, docker-compose.yml")
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("REMOTE_TYPE", "object-store")
	t.Setenv("S3_BUCKET", "offsite")
	t.Setenv("REMOTE_UPLOAD_TIMEOUT", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.BackupDir != "/mnt/backups" {
		t.Errorf("backup dir = %q, want /mnt/backups", cfg.BackupDir)
	}
	if cfg.DataDir != "/srv/data" {
		t.Errorf("data dir = %q, want /srv/data", cfg.DataDir)
	}
	if cfg.DatabasePath != "/srv/data/app.db" {
		t.Errorf("database path = %q, want /srv/data/app.db", cfg.DatabasePath)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("retention days = %d, want 7", cfg.RetentionDays)
	}
	if cfg.Compression.Enabled {
		t.Error("compression still enabled after BACKUP_COMPRESSION=false")
	}
	if len(cfg.ConfigPaths) != 2 || cfg.ConfigPaths[1] != "docker-compose.yml" {
		t.Errorf("config paths = %v, want two trimmed entries", cfg.ConfigPaths)
	}
	if cfg.Email.Host != "mail.example.com" {
		t.Errorf("SMTP host = %q, want mail.example.com", cfg.Email.Host)
	}
	if cfg.Remote.Backend != BackendObjectStore {
		t.Errorf("remote backend = %q, want %q", cfg.Remote.Backend, BackendObjectStore)
	}
	if cfg.Remote.Bucket != "offsite" {
		t.Errorf("bucket = %q, want offsite", cfg.Remote.Bucket)
	}
	if cfg.Remote.UploadTimeout != 5*time.Minute {
		t.Errorf("upload timeout = %s, want 5m", cfg.Remote.UploadTimeout)
	}
}

func TestLoadIgnoresUnrelatedEnvironment(t *testing.T) {
	t.Setenv("PATH_INFO", "/should/be/ignored")
	t.Setenv("BACKUPISH", "nope")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackupDir != "/backups" {
		t.Errorf("unrelated environment leaked into config: %q", cfg.BackupDir)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "relative backup dir",
			mutate:  func(c *Config) { c.BackupDir = "backups" },
			wantErr: true,
		},
		{
			name:    "empty prefix",
			mutate:  func(c *Config) { c.AppPrefix = "" },
			wantErr: true,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.RetentionDays = -1 },
			wantErr: true,
		},
		{
			name:    "compression level out of range",
			mutate:  func(c *Config) { c.Compression.Level = 12 },
			wantErr: true,
		},
		{
			name: "email enabled without host",
			mutate: func(c *Config) {
				c.Email.Enabled = true
				c.Email.To = "ops@example.com"
			},
			wantErr: true,
		},
		{
			name: "email enabled without recipient",
			mutate: func(c *Config) {
				c.Email.Enabled = true
				c.Email.Host = "mail.example.com"
			},
			wantErr: true,
		},
		{
			name: "remote enabled with bad backend",
			mutate: func(c *Config) {
				c.Remote.Enabled = true
				c.Remote.Backend = "ftp"
			},
			wantErr: true,
		},
		{
			name: "valid remote config",
			mutate: func(c *Config) {
				c.Remote.Enabled = true
				c.Remote.Backend = BackendObjectStore
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Parallel()

	cfg := &Config{AppRoot: "/app"}
	if got := cfg.ResolveConfigPath("nginx/nginx.conf"); got != "/app/nginx/nginx.conf" {
		t.Errorf("relative path resolved to %q", got)
	}
	if got := cfg.ResolveConfigPath("/etc/nginx.conf"); got != "/etc/nginx.conf" {
		t.Errorf("absolute path resolved to %q", got)
	}
}
