// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Load builds the runtime configuration from defaults and environment
// variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: environment variables (highest priority).
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values become slices before unmarshalling.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process list fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envMappings maps the deployment's environment variable names to config
// paths. Only mapped variables are consumed; everything else in the process
// environment is ignored.
var envMappings = map[string]string{
	// Identity and paths
	"app_prefix":   "app_prefix",
	"app_root":     "app_root",
	"data_path":    "data_dir",
	"database_url": "database_path",
	"backup_dir":   "backup_dir",
	"config_paths": "config_paths",

	// Backup behavior
	"backup_retention_days":    "retention_days",
	"backup_min_free_gb":       "min_free_gb",
	"backup_compression":       "compression.enabled",
	"backup_compression_level": "compression.level",

	// Logging
	"log_level":  "log.level",
	"log_format": "log.format",
	"log_file":   "log.file",

	// Email notifications
	"email_enabled": "email.enabled",
	"smtp_host":     "email.host",
	"smtp_port":     "email.port",
	"smtp_user":     "email.username",
	"smtp_pass":     "email.password",
	"email_from":    "email.from",
	"email_to":      "email.to",

	// Remote replication
	"remote_backup_enabled": "remote.enabled",
	"remote_type":           "remote.backend",
	"remote_host":           "remote.host",
	"remote_user":           "remote.user",
	"remote_path":           "remote.remote_path",
	"remote_key_file":       "remote.key_file",
	"remote_password":       "remote.password",
	"remote_upload_timeout": "remote.upload_timeout",
	"s3_bucket":             "remote.bucket",
	"s3_prefix":             "remote.key_prefix",
	"s3_region":             "remote.region",
	"s3_endpoint":           "remote.endpoint",
	"s3_access_key":         "remote.access_key",
	"s3_secret_key":         "remote.secret_key",

	// Service control
	"service_compose_file":    "service.compose_file",
	"service_settle_delay":    "service.settle_delay",
	"service_command_timeout": "service.command_timeout",
}

// envTransformFunc maps an environment variable name to a koanf config path,
// or to the empty string when the variable is not recognized.
func envTransformFunc(key string) string {
	path, ok := envMappings[strings.ToLower(key)]
	if !ok {
		return ""
	}
	return path
}

// sliceFields lists config paths whose env representation is a
// comma-separated string.
var sliceFields = []string{
	"config_paths",
}

// processSliceFields splits comma-separated string values into slices so
// that unmarshalling into []string fields succeeds.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceFields {
		if !k.Exists(path) {
			continue
		}
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue // already a slice from the defaults layer
		}

		parts := strings.Split(s, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
