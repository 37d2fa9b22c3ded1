// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestDataDir creates a small data tree with a nested directory.
func newTestDataDir(t *testing.T) string {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	if err := os.MkdirAll(filepath.Join(dataDir, "uploads"), 0o750); err != nil {
		t.Fatalf("creating data tree: %v", err)
	}
	files := map[string]string{
		"analiz.db":          "sqlite-bytes",
		"uploads/sample.jpg": "jpeg-bytes",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o640); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dataDir
}

// readTarNames returns the entry names of an uncompressed tar archive.
func readTarNames(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer file.Close()

	var names []string
	tr := tar.NewReader(file)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading archive: %v", err)
		}
		names = append(names, header.Name)
	}
	return names
}

func TestSnapshotBuilderBuild(t *testing.T) {
	t.Parallel()

	t.Run("bundles data, present configs, and manifest", func(t *testing.T) {
		t.Parallel()
		dataDir := newTestDataDir(t)
		backupDir := t.TempDir()
		cfgDir := t.TempDir()

		present1 := filepath.Join(cfgDir, "config.py")
		present2 := filepath.Join(cfgDir, "nginx.conf")
		missing := filepath.Join(cfgDir, "gunicorn.conf.py")
		os.WriteFile(present1, []byte("DEBUG = False"), 0o640)
		os.WriteFile(present2, []byte("server {}"), 0o640)

		b := NewSnapshotBuilder(dataDir, []string{present1, present2, missing}, backupDir, testPrefix)
		res, err := b.Build(context.Background(), KindManual, "running", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(res.MissingConfigs) != 1 || res.MissingConfigs[0] != missing {
			t.Errorf("missing configs = %v, want [%s]", res.MissingConfigs, missing)
		}
		if !strings.HasPrefix(filepath.Base(res.PartialPath), partialPrefix) {
			t.Errorf("archive %s does not carry the partial prefix", res.PartialPath)
		}
		if _, ok := ParseSnapshotName(testPrefix, res.FinalName); !ok {
			t.Errorf("final name %q does not follow the naming convention", res.FinalName)
		}

		names := readTarNames(t, res.PartialPath)
		want := []string{
			res.Stem + "/data/analiz.db",
			res.Stem + "/data/uploads/sample.jpg",
			res.Stem + "/config/config.py",
			res.Stem + "/config/nginx.conf",
			res.Stem + "/backup_info.txt",
			res.Stem + "/backup_info.json",
		}
		got := make(map[string]bool, len(names))
		for _, n := range names {
			got[n] = true
		}
		for _, w := range want {
			if !got[w] {
				t.Errorf("archive is missing entry %s (have %v)", w, names)
			}
		}
		for _, n := range names {
			if strings.Contains(n, "gunicorn") {
				t.Errorf("missing config file leaked into archive: %s", n)
			}
		}
	})

	t.Run("cleans up staging directory", func(t *testing.T) {
		t.Parallel()
		dataDir := newTestDataDir(t)
		backupDir := t.TempDir()

		b := NewSnapshotBuilder(dataDir, nil, backupDir, testPrefix)
		if _, err := b.Build(context.Background(), KindAuto, "", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries, err := os.ReadDir(os.TempDir())
		if err != nil {
			t.Fatalf("listing temp dir: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "zeytinvault-staging-") {
				t.Errorf("staging directory %s left behind", e.Name())
			}
		}
	})

	t.Run("missing data directory fails", func(t *testing.T) {
		t.Parallel()
		backupDir := t.TempDir()

		b := NewSnapshotBuilder(filepath.Join(t.TempDir(), "nope"), nil, backupDir, testPrefix)
		_, err := b.Build(context.Background(), KindManual, "", nil)
		if err == nil {
			t.Fatal("expected error for missing data directory")
		}

		var buildErr *BuildError
		if !errors.As(err, &buildErr) {
			t.Fatalf("error type = %T, want *BuildError", err)
		}

		entries, _ := os.ReadDir(backupDir)
		for _, e := range entries {
			t.Errorf("failed build left %s in the backup directory", e.Name())
		}
	})
}
