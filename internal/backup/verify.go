// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Verify walks the archive at path end to end: every tar header is parsed
// and every entry body is read in full. A truncated or corrupt archive
// fails here rather than at restore time. Archives ending in .gz are
// decompressed on the fly.
//
//nolint:gosec // G304: path is built from internal backup configuration
func Verify(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return &VerifyError{Path: path, Err: fmt.Errorf("opening archive: %w", err)}
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	var src io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return &VerifyError{Path: path, Err: fmt.Errorf("reading gzip stream: %w", err)}
		}
		defer gz.Close() //nolint:errcheck // Best effort cleanup
		src = gz
	}

	tr := tar.NewReader(src)
	entries := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &VerifyError{Path: path, Err: fmt.Errorf("reading tar entry %d: %w", entries, err)}
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return &VerifyError{Path: path, Err: fmt.Errorf("reading body of entry %d: %w", entries, err)}
		}
		entries++
	}

	if entries == 0 {
		return &VerifyError{Path: path, Err: fmt.Errorf("archive contains no entries")}
	}
	return nil
}
