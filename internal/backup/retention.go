// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/zeytinlab/zeytinvault/internal/logging"
)

// RetentionManager deletes snapshots older than the retention window. Age is
// computed from the timestamp embedded in the filename, never from the
// filesystem mtime, so copied or touched archives keep their true age.
type RetentionManager struct {
	backupDir     string
	prefix        string
	retentionDays int

	// protect holds snapshot names exempt from the current process's
	// retention passes. The restore orchestrator registers its safety
	// snapshot here so a space-pressure sweep cannot eat it mid-restore.
	protect map[string]struct{}

	// now is swappable for tests.
	now func() time.Time
}

// CollectResult summarizes one retention pass.
type CollectResult struct {
	DeletedCount int
	BytesFreed   int64
}

// NewRetentionManager creates a manager for the given backup directory.
func NewRetentionManager(backupDir, prefix string, retentionDays int) *RetentionManager {
	return &RetentionManager{
		backupDir:     backupDir,
		prefix:        prefix,
		retentionDays: retentionDays,
		protect:       make(map[string]struct{}),
		now:           time.Now,
	}
}

// Protect exempts a snapshot name from retention for the lifetime of this
// manager.
func (m *RetentionManager) Protect(name string) {
	m.protect[name] = struct{}{}
}

// Collect deletes every expired snapshot in the backup directory and reports
// what it removed. Per-file failures are logged and skipped; the pass always
// completes. Files that do not match the snapshot naming convention are
// never candidates. Running Collect twice in a row is a no-op the second
// time.
func (m *RetentionManager) Collect(ctx context.Context) CollectResult {
	var res CollectResult

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		logging.Error().Err(err).Str("dir", m.backupDir).Msg("cannot list backup directory for retention")
		return res
	}

	cutoff := time.Duration(m.retentionDays) * 24 * time.Hour
	now := m.now()

	for _, entry := range entries {
		if ctx.Err() != nil {
			return res
		}
		if entry.IsDir() {
			continue
		}

		snap, ok := ParseSnapshotName(m.prefix, entry.Name())
		if !ok {
			continue
		}
		if _, held := m.protect[snap.Name]; held {
			continue
		}
		// Expiry is strict: a snapshot exactly retentionDays old survives.
		if now.Sub(snap.CreatedAt) <= cutoff {
			continue
		}

		path := filepath.Join(m.backupDir, snap.Name)
		info, err := entry.Info()
		if err != nil {
			logging.Warn().Err(err).Str("snapshot", snap.Name).Msg("cannot stat expired snapshot, skipping")
			continue
		}

		if err := os.Remove(path); err != nil {
			logging.Warn().Err(err).Str("snapshot", snap.Name).Msg("cannot delete expired snapshot, skipping")
			continue
		}

		res.DeletedCount++
		res.BytesFreed += info.Size()
		logging.Info().
			Str("snapshot", snap.Name).
			Time("created_at", snap.CreatedAt).
			Int64("size_bytes", info.Size()).
			Msg("deleted expired snapshot")
	}

	return res
}
