// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

/*
runner.go - Backup Run Orchestration

A backup run is a fixed pipeline. Fatal stages abort the run; advisory
stages downgrade it to a warning and continue:

 1. Acquire the run lock                    (fatal)
 2. Free-space check, retention on pressure (fatal)
 3. Database integrity probe                (advisory)
 4. Service state observation               (advisory)
 5. Snapshot assembly                       (fatal)
 6. Compression                             (fatal)
 7. Structural verification                 (fatal, archive deleted)
 8. Rename .partial- archive to final name  (fatal)
 9. Remote replication                      (advisory)
10. Retention pass                          (advisory)
11. Operator notification                   (best-effort)
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zeytinlab/zeytinvault/internal/config"
	"github.com/zeytinlab/zeytinvault/internal/logging"
	"github.com/zeytinlab/zeytinvault/internal/notify"
	"github.com/zeytinlab/zeytinvault/internal/remote"
	"github.com/zeytinlab/zeytinvault/internal/service"
)

// RunReport summarizes one backup run.
type RunReport struct {
	RunID      uuid.UUID     `json:"run_id"`
	Status     notify.Status `json:"status"`
	Snapshot   *Snapshot     `json:"snapshot,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Runner wires the backup pipeline together from configuration.
type Runner struct {
	cfg *config.Config

	retention  *RetentionManager
	space      *SpaceGuard
	probe      *IntegrityProbe
	builder    *SnapshotBuilder
	compressor *Compressor
	catalog    *Catalog
	services   service.Controller
	target     remote.Target
	notifier   notify.Notifier

	// verifyFn is swappable for tests.
	verifyFn func(path string) error
}

// NewRunner assembles a runner from configuration. Remote replication
// misconfiguration is surfaced here, before any run starts.
func NewRunner(cfg *config.Config) (*Runner, error) {
	target, err := remote.FromConfig(cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("configuring remote replication: %w", err)
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Email.Enabled {
		notifier = notify.NewEmailNotifier(cfg.Email)
	}

	retention := NewRetentionManager(cfg.BackupDir, cfg.AppPrefix, cfg.RetentionDays)

	configPaths := make([]string, len(cfg.ConfigPaths))
	for i, p := range cfg.ConfigPaths {
		configPaths[i] = cfg.ResolveConfigPath(p)
	}

	return &Runner{
		cfg:        cfg,
		retention:  retention,
		space:      NewSpaceGuard(cfg.BackupDir, cfg.MinFreeGB, retention),
		probe:      NewIntegrityProbe(cfg.DatabasePath),
		builder:    NewSnapshotBuilder(cfg.DataDir, configPaths, cfg.BackupDir, cfg.AppPrefix),
		compressor: NewCompressor(cfg.Compression.Level),
		catalog:    NewCatalog(cfg.BackupDir, cfg.AppPrefix),
		services:   service.NewComposeController(cfg.Service.ComposeFile, cfg.Service.SettleDelay, cfg.Service.CommandTimeout),
		target:     target,
		notifier:   notifier,
		verifyFn:   Verify,
	}, nil
}

// Catalog exposes the runner's snapshot catalog.
func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// Retention exposes the runner's retention manager.
func (r *Runner) Retention() *RetentionManager {
	return r.retention
}

// Notifier exposes the runner's notification channel.
func (r *Runner) Notifier() notify.Notifier {
	return r.notifier
}

// Run executes one full backup run of the given kind. The returned report
// is always populated; err is non-nil only when the run failed fatally.
func (r *Runner) Run(ctx context.Context, kind Kind) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New(),
		Status:    notify.StatusSuccess,
		StartedAt: time.Now(),
	}
	logging.Info().
		Str("run_id", report.RunID.String()).
		Str("kind", string(kind)).
		Msg("backup run starting")

	lock, err := AcquireRunLock(r.cfg.BackupDir)
	if err != nil {
		return r.fail(report, err)
	}
	defer lock.Release() //nolint:errcheck // Lock dies with the process anyway

	if err := r.space.Ensure(ctx); err != nil {
		return r.fail(report, err)
	}

	if err := r.probe.Check(ctx); err != nil {
		r.warn(report, err.Error())
	}

	serviceState := r.services.Status(ctx)
	if serviceState == service.StatusUnknown {
		r.warn(report, "service state could not be determined")
	}

	snap, err := r.CreateSnapshot(ctx, kind, string(serviceState), report.Warnings)
	if err != nil {
		return r.fail(report, err)
	}
	report.Snapshot = &snap

	r.replicate(ctx, report, snap)

	res := r.retention.Collect(ctx)
	logging.Info().
		Int("deleted", res.DeletedCount).
		Int64("bytes_freed", res.BytesFreed).
		Msg("retention pass finished")

	report.FinishedAt = time.Now()
	r.sendNotification(report, "backup")

	logging.Info().
		Str("run_id", report.RunID.String()).
		Str("snapshot", snap.Name).
		Str("status", string(report.Status)).
		Msg("backup run finished")
	return report, nil
}

// CreateSnapshot builds, compresses, verifies, and finalizes one snapshot.
// The restore orchestrator calls this directly for its safety snapshot; the
// caller is expected to hold the run lock and supply the observed service
// state.
func (r *Runner) CreateSnapshot(ctx context.Context, kind Kind, serviceState string, warnings []string) (Snapshot, error) {
	built, err := r.builder.Build(ctx, kind, serviceState, warnings)
	if err != nil {
		return Snapshot{}, err
	}

	archivePath := built.PartialPath
	finalName := built.FinalName
	if r.cfg.Compression.Enabled {
		archivePath, err = r.compressor.Compress(archivePath)
		if err != nil {
			os.Remove(built.PartialPath) //nolint:errcheck // Best effort cleanup on error
			return Snapshot{}, err
		}
		finalName += ".gz"
	}

	if err := r.verifyFn(archivePath); err != nil {
		os.Remove(archivePath) //nolint:errcheck // Corrupt archive must not survive
		return Snapshot{}, err
	}

	finalPath := filepath.Join(r.cfg.BackupDir, finalName)
	if err := os.Rename(archivePath, finalPath); err != nil {
		os.Remove(archivePath) //nolint:errcheck // Best effort cleanup on error
		return Snapshot{}, fmt.Errorf("finalizing archive %s: %w", finalName, err)
	}

	snap, err := r.catalog.Describe(finalPath)
	if err != nil {
		return Snapshot{}, err
	}

	logging.Info().
		Str("snapshot", snap.Name).
		Int64("size_bytes", snap.SizeBytes).
		Bool("compressed", snap.Compressed).
		Msg("snapshot finalized")
	return snap, nil
}

// replicate uploads the snapshot when a remote target is configured. Any
// failure downgrades the run to a warning; the local snapshot is already
// durable.
func (r *Runner) replicate(ctx context.Context, report *RunReport, snap Snapshot) {
	if r.target == nil {
		return
	}

	uploadCtx, cancel := context.WithTimeout(ctx, r.cfg.Remote.UploadTimeout)
	defer cancel()

	if err := r.target.Upload(uploadCtx, snap.Path); err != nil {
		r.warn(report, fmt.Sprintf("replication to %s failed: %v", r.target.Name(), err))
		return
	}
}

// Preflight runs the non-mutating checks a backup run would perform and
// reports what it found. Used by the --test flag.
func (r *Runner) Preflight(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.New(),
		Status:    notify.StatusSuccess,
		StartedAt: time.Now(),
	}

	if err := r.space.Ensure(ctx); err != nil {
		return r.fail(report, err)
	}
	if err := r.probe.Check(ctx); err != nil {
		r.warn(report, err.Error())
	}
	if st := r.services.Status(ctx); st == service.StatusUnknown {
		r.warn(report, "service state could not be determined")
	}
	if _, err := os.Stat(r.cfg.DataDir); err != nil {
		return r.fail(report, fmt.Errorf("data directory not accessible: %w", err))
	}
	if r.target != nil {
		logging.Info().Str("target", r.target.Name()).Msg("remote replication configured")
	}

	report.FinishedAt = time.Now()
	return report, nil
}

// Cleanup runs a standalone retention pass under the run lock. Used by the
// --cleanup flag.
func (r *Runner) Cleanup(ctx context.Context) (CollectResult, error) {
	lock, err := AcquireRunLock(r.cfg.BackupDir)
	if err != nil {
		return CollectResult{}, err
	}
	defer lock.Release() //nolint:errcheck // Lock dies with the process anyway

	return r.retention.Collect(ctx), nil
}

func (r *Runner) warn(report *RunReport, msg string) {
	report.Warnings = append(report.Warnings, msg)
	if report.Status == notify.StatusSuccess {
		report.Status = notify.StatusWarning
	}
	logging.Warn().Str("run_id", report.RunID.String()).Msg(msg)
}

func (r *Runner) fail(report *RunReport, err error) (*RunReport, error) {
	report.Status = notify.StatusFailure
	report.Error = err.Error()
	report.FinishedAt = time.Now()
	r.sendNotification(report, "backup")
	return report, err
}

func (r *Runner) sendNotification(report *RunReport, operation string) {
	nr := notify.Report{
		Status:     report.Status,
		Operation:  operation,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Warnings:   report.Warnings,
		Error:      report.Error,
	}
	if report.Snapshot != nil {
		nr.SnapshotName = report.Snapshot.Name
	}

	if err := r.notifier.Notify(nr); err != nil {
		logging.Warn().Err(err).Msg("notification delivery failed")
	}
}
