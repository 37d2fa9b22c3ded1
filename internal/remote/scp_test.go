// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package remote

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestShellQuote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain path", in: "/backups/zeytin", want: "'/backups/zeytin'"},
		{name: "path with spaces", in: "/mnt/backup drive/zeytin", want: "'/mnt/backup drive/zeytin'"},
		{name: "path with single quote", in: "/mnt/ali's disk", want: `'/mnt/ali'\''s disk'`},
		{name: "path with metacharacters", in: "/tmp/$(reboot)", want: "'/tmp/$(reboot)'"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := shellQuote(tt.in); got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReadAck(t *testing.T) {
	t.Parallel()

	t.Run("zero byte acknowledges", func(t *testing.T) {
		t.Parallel()
		if err := readAck(bufio.NewReader(bytes.NewReader([]byte{0}))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("nonzero status carries the remote message", func(t *testing.T) {
		t.Parallel()
		r := bufio.NewReader(bytes.NewReader(append([]byte{1}, "scp: /backups: No such file or directory\n"...)))
		err := readAck(r)
		if err == nil {
			t.Fatal("expected error for nonzero status")
		}
		if !strings.Contains(err.Error(), "No such file or directory") {
			t.Errorf("error %q does not carry the remote message", err)
		}
	})

	t.Run("closed stream is an error", func(t *testing.T) {
		t.Parallel()
		if err := readAck(bufio.NewReader(bytes.NewReader(nil))); err == nil {
			t.Fatal("expected error for closed acknowledgment stream")
		}
	})
}
