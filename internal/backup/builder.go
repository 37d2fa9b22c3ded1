// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

/*
builder.go - Snapshot Assembly

A snapshot is staged on disk before it is archived:

 1. Create a staging directory outside the data tree
 2. Copy the data directory into {stem}/data/
 3. Copy each configured file into {stem}/config/ (missing files are
    skipped with a warning, not an error)
 4. Write backup_info.txt and backup_info.json at the staging root
 5. Tar the staging tree into .partial-{stem}.tar in the backup directory

The .partial- prefix keeps half-written archives out of the catalog and out
of retention. The caller renames the file to its final name only after
verification passes.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeytinlab/zeytinvault/internal/logging"
)

// partialPrefix marks archives that are still being written or verified.
const partialPrefix = ".partial-"

// SnapshotBuilder assembles snapshot archives from the data directory and
// the deployment's configuration files.
type SnapshotBuilder struct {
	dataDir     string
	configPaths []string
	backupDir   string
	prefix      string
}

// BuildResult describes a freshly assembled, not yet verified archive.
type BuildResult struct {
	// PartialPath is the .partial- archive in the backup directory.
	PartialPath string

	// FinalName is the name the archive takes once verified.
	FinalName string

	Stem      string
	Kind      Kind
	CreatedAt time.Time

	// MissingConfigs lists configured files that did not exist and were
	// skipped.
	MissingConfigs []string
}

// NewSnapshotBuilder creates a builder over the given directories.
func NewSnapshotBuilder(dataDir string, configPaths []string, backupDir, prefix string) *SnapshotBuilder {
	return &SnapshotBuilder{
		dataDir:     dataDir,
		configPaths: configPaths,
		backupDir:   backupDir,
		prefix:      prefix,
	}
}

// Build assembles an uncompressed tar archive for the given kind. The
// observed service state and any warnings collected so far are recorded in
// the manifest. On any failure the staging tree and the partial archive are
// removed and a *BuildError is returned.
func (b *SnapshotBuilder) Build(ctx context.Context, kind Kind, serviceState string, warnings []string) (*BuildResult, error) {
	createdAt := time.Now()
	stem := SnapshotStem(b.prefix, kind, createdAt)

	staging, err := os.MkdirTemp("", "zeytinvault-staging-*")
	if err != nil {
		return nil, &BuildError{Stage: "staging", Err: err}
	}
	defer os.RemoveAll(staging) //nolint:errcheck // Best effort cleanup

	root := filepath.Join(staging, stem)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, &BuildError{Stage: "staging", Err: err}
	}

	if err := copyTree(ctx, b.dataDir, filepath.Join(root, "data")); err != nil {
		return nil, &BuildError{Stage: "data copy", Err: err}
	}

	missing, err := b.stageConfigs(root)
	if err != nil {
		return nil, &BuildError{Stage: "config copy", Err: err}
	}

	manifest := NewManifest(stem, kind, createdAt, b.dataDir)
	manifest.ConfigFiles = presentConfigs(b.configPaths, missing)
	manifest.MissingFiles = missing
	manifest.Warnings = warnings
	if serviceState != "" {
		manifest.ServiceState = serviceState
	}
	if err := writeManifest(root, manifest); err != nil {
		return nil, &BuildError{Stage: "manifest", Err: err}
	}

	partial := filepath.Join(b.backupDir, partialPrefix+stem+".tar")
	if err := tarTree(ctx, staging, partial); err != nil {
		os.Remove(partial) //nolint:errcheck // Best effort cleanup on error
		return nil, &BuildError{Stage: "archive", Err: err}
	}

	logging.Info().
		Str("snapshot", stem).
		Str("kind", string(kind)).
		Int("missing_configs", len(missing)).
		Msg("snapshot assembled")

	return &BuildResult{
		PartialPath:    partial,
		FinalName:      stem + ".tar",
		Stem:           stem,
		Kind:           kind,
		CreatedAt:      createdAt,
		MissingConfigs: missing,
	}, nil
}

// stageConfigs copies each configured file into {root}/config/, returning
// the paths that did not exist.
func (b *SnapshotBuilder) stageConfigs(root string) ([]string, error) {
	configDir := filepath.Join(root, "config")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, err
	}

	var missing []string
	for _, src := range b.configPaths {
		if _, err := os.Stat(src); err != nil {
			logging.Warn().Str("file", src).Msg("configured file missing, skipping")
			missing = append(missing, src)
			continue
		}
		dst := filepath.Join(configDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copying %s: %w", src, err)
		}
	}
	return missing, nil
}

func presentConfigs(all, missing []string) []string {
	skip := make(map[string]struct{}, len(missing))
	for _, m := range missing {
		skip[m] = struct{}{}
	}
	var present []string
	for _, p := range all {
		if _, ok := skip[p]; !ok {
			present = append(present, p)
		}
	}
	return present
}

func writeManifest(root string, m *Manifest) error {
	if err := os.WriteFile(filepath.Join(root, "backup_info.txt"), []byte(m.RenderText()), 0o640); err != nil {
		return err
	}
	data, err := m.RenderJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, "backup_info.json"), data, 0o640)
}

// copyTree recursively copies src into dst, preserving file modes. Symlinks
// are skipped; the data tree is not expected to contain any.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o750)
		case !d.Type().IsRegular():
			logging.Warn().Str("file", path).Msg("skipping non-regular file")
			return nil
		default:
			return copyFile(path, target)
		}
	})
}

//nolint:gosec // G304: paths come from internal backup configuration
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck // Best effort cleanup on error
		return err
	}
	return out.Close()
}

// tarTree writes the contents of root into a tar archive at outPath. Entry
// names are relative to root, so the archive unpacks into a single {stem}/
// directory.
//
//nolint:gosec // G304: outPath is built from internal backup configuration
func tarTree(ctx context.Context, root, outPath string) (err error) {
	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	tw := tar.NewWriter(outFile)
	defer func() {
		closeErr := tw.Close()
		fileErr := outFile.Close()
		if err == nil {
			err = closeErr
		}
		if err == nil {
			err = fileErr
		}
	}()

	return filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("creating tar header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", rel, err)
		}
		if d.IsDir() {
			return nil
		}

		file, err := os.Open(path) //nolint:gosec // G304: path is inside the staging tree
		if err != nil {
			return err
		}
		defer file.Close() //nolint:errcheck // Best effort cleanup

		if _, err := io.Copy(tw, file); err != nil {
			return fmt.Errorf("copying %s into archive: %w", rel, err)
		}
		return nil
	})
}
