// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/zeytinlab/zeytinvault/internal/backup"
	"github.com/zeytinlab/zeytinvault/internal/logging"
)

func backupCommand() *cobra.Command {
	var (
		testOnly bool
		cleanup  bool
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a snapshot of the deployment",
		Long: `Create a snapshot of the data directory, database, and configuration
files. Without flags a single manual snapshot is taken. With --schedule the
process stays resident and takes automatic snapshots on the given cron
expression.

Exit code 0 covers both clean and degraded (warning) runs; only fatal
failures exit 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			runner, err := backup.NewRunner(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			switch {
			case testOnly:
				report, err := runner.Preflight(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "preflight %s", report.Status)
				for _, w := range report.Warnings {
					fmt.Fprintf(cmd.OutOrStdout(), "\n  warning: %s", w)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil

			case cleanup:
				res, err := runner.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired snapshots, freed %d bytes\n",
					res.DeletedCount, res.BytesFreed)
				return nil

			case schedule != "":
				return runScheduled(ctx, runner, schedule)

			default:
				report, err := runner.Run(ctx, backup.KindManual)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", report.Status, report.Snapshot.Name)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&testOnly, "test", false, "run preflight checks without creating a snapshot")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "run a retention pass without creating a snapshot")
	cmd.Flags().StringVar(&schedule, "schedule", "", "stay resident and snapshot on this cron expression")
	cmd.MarkFlagsMutuallyExclusive("test", "cleanup", "schedule")

	return cmd
}

// runScheduled blocks and takes automatic snapshots on the cron schedule
// until the context is cancelled. A failed run is logged and the schedule
// continues; cron invocations that overlap a running backup lose the run
// lock and are skipped.
func runScheduled(ctx context.Context, runner *backup.Runner, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		report, err := runner.Run(ctx, backup.KindAuto)
		if err != nil {
			logging.Error().Err(err).Msg("scheduled backup failed")
			return
		}
		logging.Info().
			Str("snapshot", report.Snapshot.Name).
			Str("status", string(report.Status)).
			Msg("scheduled backup finished")
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}

	logging.Info().Str("schedule", schedule).Msg("backup scheduler started")
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
