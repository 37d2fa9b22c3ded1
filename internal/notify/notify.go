// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

// Package notify delivers end-of-run reports to operators. Delivery is
// best-effort: a notification failure is logged and never changes the
// outcome of the run it reports on.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Status is the overall outcome a notification reports.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusWarning Status = "WARNING"
	StatusFailure Status = "FAILURE"
)

// Report is the run summary handed to a notifier.
type Report struct {
	Status       Status
	Operation    string // "backup" or "restore"
	SnapshotName string
	StartedAt    time.Time
	FinishedAt   time.Time
	Warnings     []string
	Error        string
}

// Subject renders the notification subject line.
func (r Report) Subject(hostname string) string {
	return fmt.Sprintf("[%s] %s %s on %s", r.Status, r.Operation, r.SnapshotName, hostname)
}

// Body renders the plain-text notification body.
func (r Report) Body() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Operation: %s\n", r.Operation)
	fmt.Fprintf(&b, "Status:    %s\n", r.Status)
	if r.SnapshotName != "" {
		fmt.Fprintf(&b, "Snapshot:  %s\n", r.SnapshotName)
	}
	fmt.Fprintf(&b, "Started:   %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished:  %s\n", r.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:  %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))

	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", r.Error)
	}

	return b.String()
}

// Notifier delivers a run report.
type Notifier interface {
	Notify(report Report) error
}

// NoopNotifier discards reports; used when email is not configured.
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(Report) error {
	return nil
}
