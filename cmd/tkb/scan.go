package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tkb/internal/errors"
	"tkb/internal/manifest"
	"tkb/internal/scan"
)

var (
	scanFormat string
)

// ScanResponse is the CLI view of a scan pass.
type ScanResponse struct {
	SpecCount      int                `json:"specCount"`
	TestCount      int                `json:"testCount"`
	CodeCount      int                `json:"codeCount"`
	KnowledgeCount int                `json:"knowledgeCount"`
	ReferenceCount int                `json:"referenceCount"`
	Warnings       []*errors.TkbError `json:"warnings,omitempty"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the workspace and rebuild the reference index",
	Long: `Walks the manifest roots, extracts typed references from specification,
test, code, and knowledge files, updates the store, and rebuilds the
reference index.

Malformed annotations become warnings; a scan only fails when the workspace
itself is unreadable.

Examples:
  tkb scan
  tkb scan --format=human`,
	Run: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "json", "Output format (json, human)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) {
	logger := newLogger(scanFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	m, err := manifest.Load(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}

	st := mustOpenStore(repoRoot)
	scanner := scan.New(repoRoot, m, mustCompileIDPattern(cfg), logger)

	res, err := scanner.Run(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}

	if err := st.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving store: %v\n", err)
		os.Exit(exitFatal)
	}

	ix := mustOpenIndex(repoRoot, logger)
	defer ix.Close()
	if err := ix.Replace(res.References, res.Warnings, res.Waivers); err != nil {
		fmt.Fprintf(os.Stderr, "Error updating reference index: %v\n", err)
		os.Exit(exitFatal)
	}

	printResponse(&ScanResponse{
		SpecCount:      res.SpecCount,
		TestCount:      res.TestCount,
		CodeCount:      res.CodeCount,
		KnowledgeCount: res.KnowledgeCount,
		ReferenceCount: len(res.References),
		Warnings:       res.Warnings,
	}, scanFormat)
}
