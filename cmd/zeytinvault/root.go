// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeytinlab/zeytinvault/internal/backup"
	"github.com/zeytinlab/zeytinvault/internal/config"
	"github.com/zeytinlab/zeytinvault/internal/logging"
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "zeytinvault",
		Short:         "Backup and restore for the zeytin analiz deployment",
		Version:       backup.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(backupCommand())
	root.AddCommand(restoreCommand())
	return root
}

// loadConfig loads configuration from defaults and environment and wires up
// logging. Every subcommand starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	var output io.Writer = os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // G304: operator-configured log path
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.Log.File, err)
		}
		output = io.MultiWriter(os.Stderr, f)
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: output,
	})

	return cfg, nil
}
