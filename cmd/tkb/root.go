package main

import (
	"tkb/internal/version"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tkb",
	Short: "TKB - Traceability Knowledge Base",
	Long: `TKB (Traceability Knowledge Base) links specifications, tests, code, and
captured engineering knowledge through typed references, validates the
resulting graph, and answers coverage and change-impact questions about it.`,
	Version: version.Info(),
}

func init() {
	rootCmd.SetVersionTemplate(version.Full() + "\n")
}
