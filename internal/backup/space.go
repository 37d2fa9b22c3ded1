// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/zeytinlab/zeytinvault/internal/logging"
)

const bytesPerGB = 1 << 30

// SpaceGuard enforces the free-space floor on the backup volume before any
// archive byte is written. When the first measurement falls short it runs
// retention once and re-measures; only the second shortfall is fatal.
type SpaceGuard struct {
	backupDir string
	minFreeGB float64
	retention *RetentionManager

	// usage is swappable for tests.
	usage func(path string) (*disk.UsageStat, error)
}

// NewSpaceGuard creates a SpaceGuard over the given backup directory.
func NewSpaceGuard(backupDir string, minFreeGB float64, retention *RetentionManager) *SpaceGuard {
	return &SpaceGuard{
		backupDir: backupDir,
		minFreeGB: minFreeGB,
		retention: retention,
		usage:     disk.Usage,
	}
}

// Ensure returns nil when the backup volume has at least the configured
// free space, and an *InsufficientSpaceError otherwise. Equality passes:
// the check fails only on strictly less than the floor.
func (g *SpaceGuard) Ensure(ctx context.Context) error {
	freeGB, err := g.freeGB()
	if err != nil {
		return fmt.Errorf("measuring free space on %s: %w", g.backupDir, err)
	}

	if !belowFloor(freeGB, g.minFreeGB) {
		return nil
	}

	logging.Warn().
		Float64("available_gb", freeGB).
		Float64("required_gb", g.minFreeGB).
		Msg("free space below floor, running retention")

	res := g.retention.Collect(ctx)
	logging.Info().
		Int("deleted", res.DeletedCount).
		Int64("bytes_freed", res.BytesFreed).
		Msg("retention pass finished")

	freeGB, err = g.freeGB()
	if err != nil {
		return fmt.Errorf("re-measuring free space on %s: %w", g.backupDir, err)
	}

	if belowFloor(freeGB, g.minFreeGB) {
		return &InsufficientSpaceError{AvailableGB: freeGB, RequiredGB: g.minFreeGB}
	}
	return nil
}

func (g *SpaceGuard) freeGB() (float64, error) {
	st, err := g.usage(g.backupDir)
	if err != nil {
		return 0, err
	}
	return float64(st.Free) / bytesPerGB, nil
}

// belowFloor reports whether available space fails the check. The
// comparison is strict: available == required passes.
func belowFloor(availableGB, requiredGB float64) bool {
	return availableGB < requiredGB
}
