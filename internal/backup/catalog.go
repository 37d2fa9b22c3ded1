// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
)

// Catalog enumerates the snapshots present in the backup directory. It is
// a read-only view; only the name pattern decides membership.
type Catalog struct {
	backupDir string
	prefix    string
}

// NewCatalog creates a catalog over the given backup directory.
func NewCatalog(backupDir, prefix string) *Catalog {
	return &Catalog{backupDir: backupDir, prefix: prefix}
}

// List returns every recognized snapshot, newest first. Files deleted
// between listing and stat are silently dropped; a concurrent retention
// pass is not an error.
func (c *Catalog) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(c.backupDir)
	if err != nil {
		return nil, fmt.Errorf("listing backup directory %s: %w", c.backupDir, err)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		snap, ok := ParseSnapshotName(c.prefix, entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stating %s: %w", entry.Name(), err)
		}

		snap.Path = filepath.Join(c.backupDir, snap.Name)
		snap.SizeBytes = info.Size()
		snapshots = append(snapshots, snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Describe resolves a single snapshot by path or bare name. The file must
// exist and follow the naming convention.
func (c *Catalog) Describe(ref string) (Snapshot, error) {
	name := filepath.Base(ref)
	snap, ok := ParseSnapshotName(c.prefix, name)
	if !ok {
		return Snapshot{}, fmt.Errorf("%s is not a recognized snapshot name", name)
	}

	path := ref
	if name == ref {
		path = filepath.Join(c.backupDir, name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("stating snapshot %s: %w", path, err)
	}

	snap.Path = path
	snap.SizeBytes = info.Size()
	return snap, nil
}

// RenderJSON encodes a snapshot listing for machine consumers.
func RenderJSON(snapshots []Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot list: %w", err)
	}
	return data, nil
}
