// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/zeytinlab/zeytinvault/internal/logging"
)

// Compressor gzips finished tar archives at a configured level.
type Compressor struct {
	level int
}

// NewCompressor creates a compressor with the given gzip level (1-9).
func NewCompressor(level int) *Compressor {
	return &Compressor{level: level}
}

// Compress gzips the archive at path into path+".gz" and removes the
// original on success. On failure the partial .gz file is removed and the
// original is left intact.
//
//nolint:gosec // G304: path is built from internal backup configuration
func (c *Compressor) Compress(path string) (string, error) {
	outPath := path + ".gz"

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening archive for compression: %w", err)
	}
	defer in.Close() //nolint:errcheck // Best effort cleanup

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("creating compressed archive: %w", err)
	}

	gz, err := gzip.NewWriterLevel(out, c.level)
	if err != nil {
		out.Close()        //nolint:errcheck // Best effort cleanup on error
		os.Remove(outPath) //nolint:errcheck // Best effort cleanup on error
		return "", fmt.Errorf("creating gzip writer: %w", err)
	}

	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()         //nolint:errcheck // Best effort cleanup on error
		out.Close()        //nolint:errcheck // Best effort cleanup on error
		os.Remove(outPath) //nolint:errcheck // Best effort cleanup on error
		return "", fmt.Errorf("compressing archive: %w", err)
	}

	if err := gz.Close(); err != nil {
		out.Close()        //nolint:errcheck // Best effort cleanup on error
		os.Remove(outPath) //nolint:errcheck // Best effort cleanup on error
		return "", fmt.Errorf("finalizing gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath) //nolint:errcheck // Best effort cleanup on error
		return "", fmt.Errorf("closing compressed archive: %w", err)
	}

	if err := os.Remove(path); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("cannot remove uncompressed archive")
	}

	return outPath, nil
}
