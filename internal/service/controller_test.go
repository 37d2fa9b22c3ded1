// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestController(run func(args ...string) (string, error)) *ComposeController {
	c := NewComposeController("docker-compose.yml", time.Millisecond, time.Second)
	c.runCommand = func(_ context.Context, args ...string) (string, error) {
		return run(args...)
	}
	return c
}

func TestComposeControllerStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		err    error
		want   Status
	}{
		{
			name:   "running services",
			output: "web\nworker\n",
			want:   StatusRunning,
		},
		{
			name:   "no running services",
			output: "\n",
			want:   StatusStopped,
		},
		{
			name: "command failure",
			err:  fmt.Errorf("docker not found"),
			want: StatusUnknown,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestController(func(...string) (string, error) {
				return tt.output, tt.err
			})
			if got := c.Status(context.Background()); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComposeControllerStartVerifies(t *testing.T) {
	t.Parallel()

	t.Run("start succeeds when services come back", func(t *testing.T) {
		t.Parallel()
		c := newTestController(func(args ...string) (string, error) {
			if args[0] == "ps" {
				return "web\n", nil
			}
			return "", nil
		})
		if err := c.Start(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("start fails when services stay down", func(t *testing.T) {
		t.Parallel()
		c := newTestController(func(args ...string) (string, error) {
			if args[0] == "ps" {
				return "", nil
			}
			return "", nil
		})
		err := c.Start(context.Background())
		if err == nil {
			t.Fatal("expected error when services do not come back")
		}
		if !strings.Contains(err.Error(), "running state") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("stop propagates command failure", func(t *testing.T) {
		t.Parallel()
		c := newTestController(func(...string) (string, error) {
			return "", fmt.Errorf("compose file missing")
		})
		if err := c.Stop(context.Background()); err == nil {
			t.Fatal("expected error from failing stop")
		}
	})
}
