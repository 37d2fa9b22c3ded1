// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"errors"
	"fmt"
)

// ErrLockHeld is returned when another backup or restore invocation holds
// the run lock for the same backup directory.
var ErrLockHeld = errors.New("another backup or restore run is in progress")

// InsufficientSpaceError is the fatal precondition failure reported when the
// backup volume stays below the free-space floor even after retention ran.
type InsufficientSpaceError struct {
	AvailableGB float64
	RequiredGB  float64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space on backup volume: %.2f GB available, %.2f GB required",
		e.AvailableGB, e.RequiredGB)
}

// DegradedError is the advisory result of the database integrity probe. It
// never aborts a backup run; a snapshot of a damaged database still has
// forensic value.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string {
	return "database integrity degraded: " + e.Reason
}

// BuildError is the fatal failure of snapshot assembly. All partial
// artifacts are removed before it is returned.
type BuildError struct {
	Stage string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("snapshot build failed during %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// VerifyError is the fatal failure of the post-write structural check. The
// offending archive is deleted and never registered.
type VerifyError struct {
	Path string
	Err  error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("archive verification failed for %s: %v", e.Path, e.Err)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}
