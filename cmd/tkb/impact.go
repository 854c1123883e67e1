package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tkb/internal/graph"
	"tkb/internal/impact"
)

var (
	impactFormat   string
	impactFiles    []string
	impactFileList string
	impactDepth    int
)

var impactCmd = &cobra.Command{
	Use:   "impact",
	Short: "Analyze change impact",
	Long: `Computes the artifacts affected by a set of changed files: which
specifications are touched, which tests to re-run, and what knowledge
entries may no longer hold.

Changed files are given with --files or read from a list file, one
repo-relative path per line (e.g. the output of git diff --name-only).

Examples:
  tkb impact --files=src/auth.py
  tkb impact --files=src/auth.py,src/session.py --depth=3
  git diff --name-only | tkb impact --since=-`,
	Run: runImpact,
}

func init() {
	impactCmd.Flags().StringVar(&impactFormat, "format", "json", "Output format (json, human)")
	impactCmd.Flags().StringSliceVar(&impactFiles, "files", nil,
		"Changed files (comma-separated, repeatable)")
	impactCmd.Flags().StringVar(&impactFileList, "since", "",
		"File listing changed paths, one per line ('-' for stdin)")
	impactCmd.Flags().IntVar(&impactDepth, "depth", -1,
		"Maximum traversal depth (0 = unbounded, default from config)")
	rootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, args []string) {
	logger := newLogger(impactFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	changed := append([]string{}, impactFiles...)
	if impactFileList != "" {
		listed, err := readChangedList(impactFileList)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitUsage)
		}
		changed = append(changed, listed...)
	}
	if len(changed) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no changed files given; use --files or --since")
		os.Exit(exitUsage)
	}

	st := mustOpenStore(repoRoot)
	ix := mustOpenIndex(repoRoot, logger)
	defer ix.Close()

	refs, err := ix.Refs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading reference index: %v\n", err)
		os.Exit(exitFatal)
	}

	maxDepth := cfg.Impact.MaxDepth
	if impactDepth >= 0 {
		maxDepth = impactDepth
	}

	ctx, cancel := impactContext(cfg.Impact.TimeoutMs)
	defer cancel()

	g := graph.Build(st, refs)
	analyzer := impact.NewAnalyzer(maxDepth, cfg.Impact.SpecWeight, cfg.Impact.DepthWeight)
	report := analyzer.Analyze(ctx, g, changed)

	printResponse(report, impactFormat)
}

// readChangedList reads one path per line, skipping blanks.
func readChangedList(path string) ([]string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read changed-file list: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
