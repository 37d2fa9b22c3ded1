// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

// Package backup implements snapshot creation, verification, retention, and
// cataloging for the analysis deployment's state directory.
//
// A snapshot is a single tar archive (optionally gzip-compressed) named
//
//	{prefix}_{kind}_{YYYYMMDD_HHMMSS}.tar[.gz]
//
// containing the data tree, a config/ subtree with the deployment's
// configuration files, and a backup_info.txt manifest at the archive root.
// The timestamp embedded in the name is authoritative for retention; the
// filesystem mtime is informational only.
package backup

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind classifies what produced a snapshot.
type Kind string

const (
	// KindAuto marks snapshots produced by scheduled runs.
	KindAuto Kind = "auto"

	// KindManual marks snapshots produced by operator-invoked runs.
	KindManual Kind = "manual"

	// KindPreRestore marks safety snapshots taken before a restore.
	KindPreRestore Kind = "pre_restore"
)

// nameTimeLayout is the timestamp layout embedded in snapshot filenames.
const nameTimeLayout = "20060102_150405"

// Snapshot describes a single archive artifact in the backup directory.
type Snapshot struct {
	// Name is the bare filename, e.g. zeytin_analiz_auto_20260829_020000.tar.gz.
	Name string `json:"name"`

	// Path is the absolute location in the backup directory.
	Path string `json:"path"`

	Kind Kind `json:"kind"`

	SizeBytes int64 `json:"size_bytes"`

	// CreatedAt is parsed from the filename timestamp.
	CreatedAt time.Time `json:"created_at"`

	Compressed bool `json:"compressed"`
}

// Stem returns the snapshot name without archive extensions. The archive's
// root directory carries this name.
func (s Snapshot) Stem() string {
	stem := strings.TrimSuffix(s.Name, ".gz")
	return strings.TrimSuffix(stem, ".tar")
}

// SnapshotStem builds the filename stem for a new snapshot.
func SnapshotStem(prefix string, kind Kind, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s", prefix, kind, ts.Format(nameTimeLayout))
}

// namePattern matches recognized snapshot filenames for a given prefix and
// captures kind, timestamp, and the optional .gz suffix. Anything that does
// not match is never touched by retention.
func namePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(
		`^` + regexp.QuoteMeta(prefix) + `_(auto|manual|pre_restore)_(\d{8}_\d{6})\.tar(\.gz)?$`)
}

// ParseSnapshotName parses a filename into a Snapshot (Name, Kind,
// CreatedAt, Compressed). It reports false for names that do not follow the
// snapshot naming convention for the given prefix.
func ParseSnapshotName(prefix, name string) (Snapshot, bool) {
	m := namePattern(prefix).FindStringSubmatch(name)
	if m == nil {
		return Snapshot{}, false
	}

	ts, err := time.ParseInLocation(nameTimeLayout, m[2], time.Local)
	if err != nil {
		return Snapshot{}, false
	}

	return Snapshot{
		Name:       name,
		Kind:       Kind(m[1]),
		CreatedAt:  ts,
		Compressed: m[3] != "",
	}, true
}
