// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

/*
orchestrator.go - Restore Orchestration

A restore walks a fixed state machine:

	Selected -> Validated -> SafetyBackedUp -> ServicesStopped ->
	Extracted -> Merged -> ServicesRestarted -> Done

A dry run stops after Validated. A declined confirmation or any failure
ends in Aborted; the report keeps the stage the run had reached. Any
failure before ServicesStopped leaves the deployment untouched; any
failure after it attempts to restart the services before returning.

The archive is extracted into a scratch directory on the same filesystem as
the data directory, so the final swap is a rename, not a copy. The current
data directory is renamed aside before the swap and only removed once the
restore completes.
*/

//nolint:staticcheck // File documentation, not package doc
package restore

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeytinlab/zeytinvault/internal/backup"
	"github.com/zeytinlab/zeytinvault/internal/config"
	"github.com/zeytinlab/zeytinvault/internal/logging"
	"github.com/zeytinlab/zeytinvault/internal/notify"
	"github.com/zeytinlab/zeytinvault/internal/service"
)

// State is a stage of the restore state machine.
type State string

const (
	StateSelected          State = "selected"
	StateValidated         State = "validated"
	StateSafetyBackedUp    State = "safety_backed_up"
	StateServicesStopped   State = "services_stopped"
	StateExtracted         State = "extracted"
	StateMerged            State = "merged"
	StateServicesRestarted State = "services_restarted"
	StateDone              State = "done"
	StateAborted           State = "aborted"
)

// Options controls a restore run.
type Options struct {
	// Force skips the interactive confirmation gate.
	Force bool

	// DryRun validates the archive and lists its contents without touching
	// the deployment.
	DryRun bool
}

// Report summarizes a restore run.
type Report struct {
	RunID    uuid.UUID       `json:"run_id"`
	State    State           `json:"state"`
	Snapshot backup.Snapshot `json:"snapshot"`

	// FailedAt is the stage the run had reached when it failed. Empty for
	// successful, dry-run, and declined runs.
	FailedAt State `json:"failed_at,omitempty"`

	// SafetySnapshot is the pre-restore snapshot taken before anything was
	// touched. Always reported once taken, even when the restore fails.
	SafetySnapshot string `json:"safety_snapshot,omitempty"`

	// Entries lists archive contents; populated on dry runs.
	Entries []string `json:"entries,omitempty"`

	Warnings   []string  `json:"warnings,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Snapshotter creates the pre-restore safety snapshot.
type Snapshotter interface {
	CreateSnapshot(ctx context.Context, kind backup.Kind, serviceState string, warnings []string) (backup.Snapshot, error)
}

// Orchestrator drives restores from snapshot archives.
type Orchestrator struct {
	cfg         *config.Config
	catalog     *backup.Catalog
	snapshotter Snapshotter
	retention   *backup.RetentionManager
	services    service.Controller
	notifier    notify.Notifier

	// confirm asks the operator to proceed; swappable for tests and
	// replaced by an always-yes function under --force.
	confirm func(snap backup.Snapshot) bool

	// verifyFn is swappable for tests.
	verifyFn func(path string) error
}

// NewOrchestrator assembles a restore orchestrator. The runner provides the
// catalog, retention manager, and safety-snapshot creation.
func NewOrchestrator(cfg *config.Config, runner *backup.Runner, confirm func(backup.Snapshot) bool) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		catalog:     runner.Catalog(),
		snapshotter: runner,
		retention:   runner.Retention(),
		services:    service.NewComposeController(cfg.Service.ComposeFile, cfg.Service.SettleDelay, cfg.Service.CommandTimeout),
		notifier:    runner.Notifier(),
		confirm:     confirm,
		verifyFn:    backup.Verify,
	}
}

// Restore runs the state machine for the snapshot referenced by path or
// name. The returned report is always populated; err is non-nil only for
// failures, never for a declined confirmation or a dry run.
func (o *Orchestrator) Restore(ctx context.Context, ref string, opts Options) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		State:     StateSelected,
		StartedAt: time.Now(),
	}

	snap, err := o.catalog.Describe(ref)
	if err != nil {
		return o.fail(report, err)
	}
	report.Snapshot = snap
	logging.Info().
		Str("run_id", report.RunID.String()).
		Str("snapshot", snap.Name).
		Bool("dry_run", opts.DryRun).
		Msg("restore starting")

	entries, err := o.validate(snap)
	if err != nil {
		return o.fail(report, err)
	}
	report.State = StateValidated

	if opts.DryRun {
		report.Entries = entries
		report.FinishedAt = time.Now()
		logging.Info().Int("entries", len(entries)).Msg("dry run complete, deployment untouched")
		return report, nil
	}

	if !opts.Force && !o.confirm(snap) {
		report.State = StateAborted
		report.FinishedAt = time.Now()
		logging.Info().Msg("restore declined by operator")
		return report, nil
	}

	lock, err := backup.AcquireRunLock(o.cfg.BackupDir)
	if err != nil {
		return o.fail(report, err)
	}
	defer lock.Release() //nolint:errcheck // Lock dies with the process anyway

	serviceState := o.services.Status(ctx)

	safety, err := o.snapshotter.CreateSnapshot(ctx, backup.KindPreRestore, string(serviceState), nil)
	if err != nil {
		return o.fail(report, fmt.Errorf("safety snapshot failed, aborting restore: %w", err))
	}
	report.SafetySnapshot = safety.Path
	o.retention.Protect(safety.Name)
	report.State = StateSafetyBackedUp

	// Best effort: some deployments are already stopped when the restore
	// starts.
	if err := o.services.Stop(ctx); err != nil {
		o.warn(report, fmt.Sprintf("services did not stop cleanly: %v", err))
	}
	report.State = StateServicesStopped

	scratch, root, err := o.extract(ctx, snap)
	if scratch != "" {
		defer os.RemoveAll(scratch) //nolint:errcheck // Best effort cleanup
	}
	if err != nil {
		return o.failStopped(ctx, report, err)
	}
	report.State = StateExtracted

	if err := o.merge(report, root); err != nil {
		return o.failStopped(ctx, report, err)
	}
	report.State = StateMerged

	// The data restore is complete at this point; service health is an
	// external concern, so a failed restart only degrades the report.
	if err := o.services.Start(ctx); err != nil {
		o.warn(report, fmt.Sprintf("services did not verify as running after restore: %v", err))
	}
	report.State = StateServicesRestarted

	report.State = StateDone
	report.FinishedAt = time.Now()
	o.sendNotification(report)
	logging.Info().
		Str("run_id", report.RunID.String()).
		Str("snapshot", snap.Name).
		Str("safety_snapshot", report.SafetySnapshot).
		Msg("restore complete")
	return report, nil
}

// sendNotification delivers the restore summary best-effort. The safety
// snapshot path rides along as a warning line so the operator always has the
// rollback handle in the summary.
func (o *Orchestrator) sendNotification(report *Report) {
	status := notify.StatusSuccess
	if len(report.Warnings) > 0 {
		status = notify.StatusWarning
	}
	if report.Error != "" {
		status = notify.StatusFailure
	}

	warnings := report.Warnings
	if report.SafetySnapshot != "" {
		warnings = append([]string{"safety snapshot: " + report.SafetySnapshot}, warnings...)
	}

	if err := o.notifier.Notify(notify.Report{
		Status:       status,
		Operation:    "restore",
		SnapshotName: report.Snapshot.Name,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
		Warnings:     warnings,
		Error:        report.Error,
	}); err != nil {
		logging.Warn().Err(err).Msg("notification delivery failed")
	}
}

// validate runs the structural check and returns the archive's entry list.
func (o *Orchestrator) validate(snap backup.Snapshot) ([]string, error) {
	if err := o.verifyFn(snap.Path); err != nil {
		return nil, err
	}
	return listEntries(snap.Path)
}

// extract unpacks the archive into a scratch directory next to the data
// directory and returns the scratch path and the snapshot root inside it.
func (o *Orchestrator) extract(ctx context.Context, snap backup.Snapshot) (string, string, error) {
	parent := filepath.Dir(o.cfg.DataDir)
	scratch, err := os.MkdirTemp(parent, ".zv-restore-*")
	if err != nil {
		return "", "", fmt.Errorf("creating extraction directory: %w", err)
	}

	if err := extractArchive(ctx, snap.Path, scratch); err != nil {
		return scratch, "", err
	}

	root := filepath.Join(scratch, snap.Stem())
	if _, err := os.Stat(filepath.Join(root, "data")); err != nil {
		return scratch, "", fmt.Errorf("archive has no data directory under %s: %w", snap.Stem(), err)
	}
	return scratch, root, nil
}

// merge swaps the extracted data directory into place and copies config
// files back to their original locations. Config file failures are
// warnings; the data swap is the only fatal part.
func (o *Orchestrator) merge(report *Report, root string) error {
	ts := time.Now().Format("20060102_150405")
	aside := o.cfg.DataDir + ".pre-restore-" + ts

	if err := os.Rename(o.cfg.DataDir, aside); err != nil {
		return fmt.Errorf("setting current data directory aside: %w", err)
	}

	if err := os.Rename(filepath.Join(root, "data"), o.cfg.DataDir); err != nil {
		// Roll the original back so the deployment can still start.
		if rbErr := os.Rename(aside, o.cfg.DataDir); rbErr != nil {
			return fmt.Errorf("swapping data directory: %w (rollback also failed: %v)", err, rbErr)
		}
		return fmt.Errorf("swapping data directory: %w", err)
	}

	o.mergeConfigs(report, filepath.Join(root, "config"), ts)

	// The aside copy is transient; the pre-restore safety snapshot is the
	// durable rollback point once the merge has succeeded.
	if err := os.RemoveAll(aside); err != nil {
		o.warn(report, fmt.Sprintf("cannot remove old data directory %s: %v", aside, err))
	}
	return nil
}

// mergeConfigs restores each archived config file to its configured
// location, setting the existing file aside first.
func (o *Orchestrator) mergeConfigs(report *Report, configDir, ts string) {
	for _, p := range o.cfg.ConfigPaths {
		dst := o.cfg.ResolveConfigPath(p)
		src := filepath.Join(configDir, filepath.Base(dst))
		if _, err := os.Stat(src); err != nil {
			continue
		}

		if _, err := os.Stat(dst); err == nil {
			if err := os.Rename(dst, dst+".pre-restore-"+ts); err != nil {
				o.warn(report, fmt.Sprintf("cannot set %s aside: %v", dst, err))
				continue
			}
		}
		if err := copyConfigFile(src, dst); err != nil {
			o.warn(report, fmt.Sprintf("cannot restore %s: %v", dst, err))
		}
	}
}

func (o *Orchestrator) warn(report *Report, msg string) {
	report.Warnings = append(report.Warnings, msg)
	logging.Warn().Str("run_id", report.RunID.String()).Msg(msg)
}

func (o *Orchestrator) fail(report *Report, err error) (*Report, error) {
	report.FailedAt = report.State
	report.State = StateAborted
	report.Error = err.Error()
	report.FinishedAt = time.Now()
	o.sendNotification(report)
	if report.SafetySnapshot != "" {
		logging.Error().
			Err(err).
			Str("safety_snapshot", report.SafetySnapshot).
			Msg("restore failed, safety snapshot preserved")
	} else {
		logging.Error().Err(err).Msg("restore failed")
	}
	return report, err
}

// failStopped handles failures while the services are down: it tries to
// bring them back before reporting the original error.
func (o *Orchestrator) failStopped(ctx context.Context, report *Report, err error) (*Report, error) {
	if startErr := o.services.Start(ctx); startErr != nil {
		o.warn(report, fmt.Sprintf("services could not be restarted: %v", startErr))
	}
	return o.fail(report, err)
}

// listEntries returns the entry names of an archive without extracting it.
//
//nolint:gosec // G304: path was resolved through the catalog
func listEntries(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	var src io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("reading gzip stream: %w", err)
		}
		defer gz.Close() //nolint:errcheck // Best effort cleanup
		src = gz
	}

	var entries []string
	tr := tar.NewReader(src)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		entries = append(entries, header.Name)
	}
	return entries, nil
}

// extractArchive unpacks a snapshot archive into dst. Entry paths are
// confined to dst; anything escaping it fails the extraction.
//
//nolint:gosec // G304: path was resolved through the catalog
func extractArchive(ctx context.Context, path, dst string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	var src io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("reading gzip stream: %w", err)
		}
		defer gz.Close() //nolint:errcheck // Best effort cleanup
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target, err := securePath(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return fmt.Errorf("creating %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return fmt.Errorf("creating parent of %s: %w", header.Name, err)
			}
			if err := writeEntry(tr, target, header.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			logging.Warn().Str("entry", header.Name).Msg("skipping unsupported archive entry type")
		}
	}
}

// securePath joins an archive entry name onto dst and rejects any result
// that escapes it.
func securePath(dst, name string) (string, error) {
	target := filepath.Join(dst, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %s escapes extraction directory", name)
	}
	return target, nil
}

func writeEntry(r io.Reader, target string, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode) //nolint:gosec // G304: confined by securePath
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil { //nolint:gosec // G110: archive was produced by this tool
		out.Close() //nolint:errcheck // Best effort cleanup on error
		return err
	}
	return out.Close()
}

func copyConfigFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: src is inside the extraction directory
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()) //nolint:gosec // G304: dst is operator-configured
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck // Best effort cleanup on error
		return err
	}
	return out.Close()
}
