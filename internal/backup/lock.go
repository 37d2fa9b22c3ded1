// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// lockFileName is created inside the backup directory; it never matches the
// snapshot naming pattern, so retention ignores it.
const lockFileName = ".zeytinvault.lock"

// RunLock is the run-level mutual-exclusion guard over the backup
// directory. Exactly one backup or restore invocation may hold it; a second
// invocation fails immediately with ErrLockHeld instead of queueing, since
// the caller is cron and the overlapped run will come around again.
type RunLock struct {
	file *os.File
	path string
}

// AcquireRunLock takes an exclusive non-blocking flock on the lock file in
// backupDir.
func AcquireRunLock(backupDir string) (*RunLock, error) {
	path := filepath.Join(backupDir, lockFileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close() //nolint:errcheck // Best effort cleanup on error
		if err == syscall.EWOULDBLOCK {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	// Record the holder's PID for operators inspecting a stuck lock.
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())
	_ = file.Sync()

	return &RunLock{file: file, path: path}, nil
}

// Release drops the lock. The lock file itself is left in place; flock
// state, not file existence, is what guards the directory.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return closeErr
}
