// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

// Package remote replicates finished snapshot archives to off-host storage.
// Replication is best-effort from the backup run's point of view: a failed
// upload degrades the run to a warning, the local snapshot is already safe.
package remote

import (
	"context"
	"fmt"

	"github.com/zeytinlab/zeytinvault/internal/config"
)

// Target uploads a local archive to an off-host destination.
type Target interface {
	// Upload copies the archive at path to the remote. The context carries
	// the per-upload deadline.
	Upload(ctx context.Context, path string) error

	// Name identifies the target in logs and run reports.
	Name() string
}

// FromConfig builds the configured replication target. It returns (nil, nil)
// when replication is disabled, and an error when replication is enabled but
// the settings are incomplete.
func FromConfig(cfg config.RemoteConfig) (Target, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case config.BackendSecureCopy:
		return newSCPTarget(cfg)
	case config.BackendObjectStore:
		return newS3Target(cfg)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Backend)
	}
}
