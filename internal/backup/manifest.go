// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

package backup

import (
	"fmt"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// Version is the build version stamped into manifests; overridden at link
// time by the release build.
var Version = "dev"

// Manifest records the context a snapshot was taken in. It is written twice
// into each archive root: backup_info.txt for humans, backup_info.json for
// tooling.
type Manifest struct {
	SnapshotName  string    `json:"snapshot_name"`
	Kind          Kind      `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
	Hostname      string    `json:"hostname"`
	Version       string    `json:"version"`
	DataDir       string    `json:"data_dir"`
	ConfigFiles   []string  `json:"config_files"`
	MissingFiles  []string  `json:"missing_files,omitempty"`
	ServiceState  string    `json:"service_state"`
	Warnings      []string  `json:"warnings,omitempty"`
	DiskFreeGB    float64   `json:"disk_free_gb"`
	DiskUsedPct   float64   `json:"disk_used_pct"`
	MemUsedPct    float64   `json:"mem_used_pct"`
	MemTotalBytes uint64    `json:"mem_total_bytes"`
}

// NewManifest builds a manifest for a snapshot in progress, sampling host
// metrics best-effort. Sampling failures leave the fields zeroed rather than
// failing the build.
func NewManifest(stem string, kind Kind, createdAt time.Time, dataDir string) *Manifest {
	m := &Manifest{
		SnapshotName: stem,
		Kind:         kind,
		CreatedAt:    createdAt,
		Version:      Version,
		DataDir:      dataDir,
		ServiceState: "unknown",
	}

	if host, err := os.Hostname(); err == nil {
		m.Hostname = host
	}
	if st, err := disk.Usage(dataDir); err == nil {
		m.DiskFreeGB = float64(st.Free) / bytesPerGB
		m.DiskUsedPct = st.UsedPercent
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		m.MemUsedPct = vm.UsedPercent
		m.MemTotalBytes = vm.Total
	}

	return m
}

// RenderText formats the manifest as the human-readable backup_info.txt.
func (m *Manifest) RenderText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Snapshot:        %s\n", m.SnapshotName)
	fmt.Fprintf(&b, "Kind:            %s\n", m.Kind)
	fmt.Fprintf(&b, "Created:         %s\n", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Host:            %s\n", m.Hostname)
	fmt.Fprintf(&b, "Version:         %s\n", m.Version)
	fmt.Fprintf(&b, "Data directory:  %s\n", m.DataDir)
	fmt.Fprintf(&b, "Service state:   %s\n", m.ServiceState)
	fmt.Fprintf(&b, "Disk free:       %.2f GB (%.1f%% used)\n", m.DiskFreeGB, m.DiskUsedPct)
	fmt.Fprintf(&b, "Memory used:     %.1f%% of %d bytes\n", m.MemUsedPct, m.MemTotalBytes)

	b.WriteString("Config files:\n")
	for _, f := range m.ConfigFiles {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	for _, f := range m.MissingFiles {
		fmt.Fprintf(&b, "  %s (missing, skipped)\n", f)
	}

	if len(m.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range m.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}

	return b.String()
}

// RenderJSON formats the manifest as the machine-readable backup_info.json.
func (m *Manifest) RenderJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}
