// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

// Package service observes and controls the deployment's docker compose
// stack around backup and restore runs.
package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/zeytinlab/zeytinvault/internal/logging"
)

// Status is the observed state of the compose stack.
type Status string

const (
	// StatusRunning means at least one service container is up.
	StatusRunning Status = "running"

	// StatusStopped means no service container is up.
	StatusStopped Status = "stopped"

	// StatusUnknown means the state could not be determined. Backup runs
	// treat this as a warning, never a failure.
	StatusUnknown Status = "unknown"
)

// Controller observes and drives the deployment's services. Restore needs
// all three operations; backup only observes.
type Controller interface {
	Status(ctx context.Context) Status
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
}

// ComposeController drives a docker compose stack identified by its compose
// file.
type ComposeController struct {
	composeFile    string
	settleDelay    time.Duration
	commandTimeout time.Duration

	// runCommand is swappable for tests.
	runCommand func(ctx context.Context, args ...string) (string, error)
}

// NewComposeController creates a controller for the given compose file.
func NewComposeController(composeFile string, settleDelay, commandTimeout time.Duration) *ComposeController {
	c := &ComposeController{
		composeFile:    composeFile,
		settleDelay:    settleDelay,
		commandTimeout: commandTimeout,
	}
	c.runCommand = c.execCompose
	return c
}

func (c *ComposeController) execCompose(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	full := append([]string{"compose", "-f", c.composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("docker compose %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// Status reports whether any service container is currently up. Command
// failures yield StatusUnknown.
func (c *ComposeController) Status(ctx context.Context) Status {
	out, err := c.runCommand(ctx, "ps", "--services", "--filter", "status=running")
	if err != nil {
		logging.Warn().Err(err).Msg("cannot determine service status")
		return StatusUnknown
	}
	if strings.TrimSpace(out) == "" {
		return StatusStopped
	}
	return StatusRunning
}

// Stop brings the stack down.
func (c *ComposeController) Stop(ctx context.Context) error {
	logging.Info().Str("compose_file", c.composeFile).Msg("stopping services")
	if _, err := c.runCommand(ctx, "stop"); err != nil {
		return fmt.Errorf("stopping services: %w", err)
	}
	return nil
}

// Start brings the stack up, waits the settle delay, and verifies that the
// services actually came back.
func (c *ComposeController) Start(ctx context.Context) error {
	logging.Info().Str("compose_file", c.composeFile).Msg("starting services")
	if _, err := c.runCommand(ctx, "start"); err != nil {
		return fmt.Errorf("starting services: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settleDelay):
	}

	if st := c.Status(ctx); st != StatusRunning {
		return fmt.Errorf("services did not reach running state after start (status: %s)", st)
	}
	return nil
}
