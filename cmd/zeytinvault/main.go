// Zeytinvault - Backup and Restore for the Zeytin Analiz Deployment
// Copyright 2026 Zeytinlab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zeytinlab/zeytinvault

// Command zeytinvault backs up and restores the analysis deployment's data
// directory, database, and configuration files.
package main

import (
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
