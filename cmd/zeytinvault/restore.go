// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeytinlab/zeytinvault/internal/backup"
	"github.com/zeytinlab/zeytinvault/internal/restore"
)

func restoreCommand() *cobra.Command {
	var (
		list   bool
		asJSON bool
		force  bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "restore [snapshot]",
		Short: "Restore the deployment from a snapshot",
		Long: `Restore the data directory and configuration files from a snapshot
archive. The snapshot may be given as a bare name or a full path. A safety
snapshot of the current state is taken before anything is touched.

With --list the available snapshots are printed instead. With --dry-run the
archive is validated and its contents listed, and the deployment is left
untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			runner, err := backup.NewRunner(cfg)
			if err != nil {
				return err
			}

			if list {
				return printSnapshots(cmd, runner.Catalog(), asJSON)
			}
			if len(args) != 1 {
				return fmt.Errorf("a snapshot name or path is required (or use --list)")
			}

			orch := restore.NewOrchestrator(cfg, runner, confirmRestore)
			report, err := orch.Restore(cmd.Context(), args[0], restore.Options{
				Force:  force,
				DryRun: dryRun,
			})
			if err != nil {
				if report != nil && report.SafetySnapshot != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "safety snapshot preserved at %s\n", report.SafetySnapshot)
				}
				return err
			}

			switch report.State {
			case restore.StateAborted:
				fmt.Fprintln(cmd.OutOrStdout(), "restore aborted, deployment untouched")
			case restore.StateValidated:
				fmt.Fprintf(cmd.OutOrStdout(), "dry run: %s is valid, %d entries\n",
					report.Snapshot.Name, len(report.Entries))
				for _, e := range report.Entries {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e)
				}
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s (safety snapshot: %s)\n",
					report.Snapshot.Name, report.SafetySnapshot)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "list available snapshots instead of restoring")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot list as JSON")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "validate and list the archive without restoring")
	cmd.MarkFlagsMutuallyExclusive("list", "force")
	cmd.MarkFlagsMutuallyExclusive("list", "dry-run")

	return cmd
}

func printSnapshots(cmd *cobra.Command, catalog *backup.Catalog, asJSON bool) error {
	snapshots, err := catalog.List()
	if err != nil {
		return err
	}

	if asJSON {
		data, err := backup.RenderJSON(snapshots)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(snapshots) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no snapshots found")
		return nil
	}
	for _, s := range snapshots {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %10d bytes  %s\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.Kind, s.SizeBytes, s.Name)
	}
	return nil
}

// confirmRestore asks the operator to confirm a destructive restore on the
// terminal. Anything other than an explicit yes declines.
func confirmRestore(snap backup.Snapshot) bool {
	fmt.Fprintf(os.Stderr, "Restore %s over the current deployment state? [y/N]: ", snap.Name)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
