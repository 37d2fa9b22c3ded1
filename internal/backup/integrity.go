// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // SQLite driver for the integrity probe
)

// IntegrityProbe runs a non-destructive consistency check against the
// deployment's SQLite database before it is trusted into a snapshot. Every
// failure mode is advisory: the caller records a warning and proceeds.
type IntegrityProbe struct {
	dbPath string
}

// NewIntegrityProbe creates a probe for the given database file.
func NewIntegrityProbe(dbPath string) *IntegrityProbe {
	return &IntegrityProbe{dbPath: dbPath}
}

// Check returns nil when the database passes PRAGMA integrity_check, and a
// *DegradedError describing the problem otherwise. A missing database file
// is degraded, not fatal.
func (p *IntegrityProbe) Check(ctx context.Context) error {
	if _, err := os.Stat(p.dbPath); err != nil {
		return &DegradedError{Reason: fmt.Sprintf("database file not found at %s", p.dbPath)}
	}

	db, err := sql.Open("sqlite", readOnlyDSN(p.dbPath))
	if err != nil {
		return &DegradedError{Reason: fmt.Sprintf("cannot open database: %v", err)}
	}
	defer db.Close() //nolint:errcheck // Read-only probe connection

	var result string
	row := db.QueryRowContext(ctx, "PRAGMA integrity_check")
	if err := row.Scan(&result); err != nil {
		return &DegradedError{Reason: fmt.Sprintf("integrity check did not run: %v", err)}
	}

	if result != "ok" {
		return &DegradedError{Reason: "integrity check reported: " + result}
	}
	return nil
}

// readOnlyDSN builds a read-only connection string for the database. The
// driver only honors query parameters on file: URIs; a bare path would open
// read-write.
func readOnlyDSN(dbPath string) string {
	return "file:" + dbPath + "?mode=ro"
}
