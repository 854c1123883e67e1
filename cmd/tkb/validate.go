package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tkb/internal/graph"
)

var (
	validateFormat string
	validateStrict bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the traceability graph",
	Long: `Builds the graph from the store and the reference index and runs the
validation passes: referential integrity, link bidirectionality, cycle
detection on parent/blocks chains, and orphan detection.

Exit code is 1 when any fatal finding exists (dangling references, cycles),
0 when only warnings or nothing was found.

Examples:
  tkb validate
  tkb validate --strict       # warnings also fail
  tkb validate --format=human`,
	Run: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateFormat, "format", "json", "Output format (json, human)")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Treat warnings as fatal")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	logger := newLogger(validateFormat)
	repoRoot := mustGetRepoRoot()

	st := mustOpenStore(repoRoot)
	ix := mustOpenIndex(repoRoot, logger)
	defer ix.Close()

	refs, err := ix.Refs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading reference index: %v\n", err)
		os.Exit(exitFatal)
	}

	g := graph.Build(st, refs)
	report := graph.Validate(g)

	// Store corruption surfaces alongside graph findings.
	for _, p := range st.Problems {
		report.Add(p)
	}

	printResponse(report, validateFormat)

	if report.Fatal() || (validateStrict && len(report.Warnings) > 0) {
		os.Exit(exitFatal)
	}
}
