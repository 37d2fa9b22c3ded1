// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package main

import "testing"

func TestRestoreFlagShorthands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		flag string
	}{
		{name: "list short form", args: []string{"-l"}, flag: "list"},
		{name: "list long form", args: []string{"--list"}, flag: "list"},
		{name: "force short form", args: []string{"-f"}, flag: "force"},
		{name: "force long form", args: []string{"--force"}, flag: "force"},
		{name: "dry-run short form", args: []string{"-d"}, flag: "dry-run"},
		{name: "dry-run long form", args: []string{"--dry-run"}, flag: "dry-run"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := restoreCommand()
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("parsing %v: %v", tt.args, err)
			}
			if !cmd.Flags().Changed(tt.flag) {
				t.Errorf("%v did not set --%s", tt.args, tt.flag)
			}
		})
	}
}

func TestRestoreRejectsUnknownShorthand(t *testing.T) {
	t.Parallel()

	cmd := restoreCommand()
	if err := cmd.ParseFlags([]string{"-x"}); err == nil {
		t.Fatal("expected error for unknown shorthand")
	}
}
