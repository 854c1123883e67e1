package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tkb/internal/knowledge"
)

var (
	maintainFormat string
	exportOut      string
	exportCompress bool
	exportSource   string
	importValidate bool
)

// ExportResponse reports where a knowledge bundle was written.
type ExportResponse struct {
	BundleID   string `json:"bundleId"`
	Path       string `json:"path"`
	Compressed bool   `json:"compressed,omitempty"`
}

// StatsResponse summarizes the store and the reference index.
type StatsResponse struct {
	Specs    int `json:"specs"`
	Tests    int `json:"tests"`
	Code     int `json:"code"`
	Patterns int `json:"patterns"`
	Failures int `json:"failures"`
	Links    int `json:"links"`

	// PatternsByDomain counts knowledge entries per domain;
	// AggregateSuccessRate is total successes over total attempts.
	PatternsByDomain     map[string]int `json:"patternsByDomain,omitempty"`
	AggregateSuccessRate float64        `json:"aggregateSuccessRate"`

	IndexedRefs     int    `json:"indexedRefs"`
	IndexedWarnings int    `json:"indexedWarnings"`
	LastScan        string `json:"lastScan,omitempty"`
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Knowledge base maintenance",
}

var maintainReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Flag stale, low-value, verbose, and duplicate knowledge entries",
	Long: `Scans the knowledge base for entries needing human attention: patterns
unused past the staleness window, patterns with a poor success rate,
over-verbose write-ups, and near-duplicate titles.

Review never deletes anything; it reports candidates.`,
	Run: runMaintainReview,
}

var maintainExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export knowledge entries as a shareable bundle",
	Long: `Writes all patterns and failures to a bundle file for import into
another repository.

Examples:
  tkb maintain export --out=knowledge.json
  tkb maintain export --out=knowledge.json.zst --compress`,
	Run: runMaintainExport,
}

var maintainImportCmd = &cobra.Command{
	Use:   "import <bundle>",
	Short: "Merge a knowledge bundle into the store",
	Long: `Merges an exported bundle. Per identity, the newer entry wins wholesale
for text fields and attempt counters are summed; resolved conflicts are
reported as warnings.

Examples:
  tkb maintain import knowledge.json
  tkb maintain import knowledge.json.zst --validate-only`,
	Args: cobra.ExactArgs(1),
	Run:  runMaintainImport,
}

var maintainStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index statistics",
	Run:   runMaintainStats,
}

var maintainValidateFormatCmd = &cobra.Command{
	Use:   "validate-format",
	Short: "Check knowledge entry titles",
	Long: `Checks that knowledge titles are kebab-case-able and that the same
concept title does not fragment across domains. Findings are advisory;
the exit code is 0 either way.`,
	Run: runMaintainValidateFormat,
}

func init() {
	for _, c := range []*cobra.Command{
		maintainReviewCmd, maintainExportCmd, maintainImportCmd,
		maintainStatsCmd, maintainValidateFormatCmd,
	} {
		c.Flags().StringVar(&maintainFormat, "format", "json", "Output format (json, human)")
	}

	maintainExportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (required)")
	maintainExportCmd.Flags().BoolVar(&exportCompress, "compress", false, "zstd-compress the bundle")
	maintainExportCmd.Flags().StringVar(&exportSource, "source", "", "Source repository label")
	maintainExportCmd.MarkFlagRequired("out")

	maintainImportCmd.Flags().BoolVar(&importValidate, "validate-only", false,
		"Check the bundle format without merging")

	maintainCmd.AddCommand(maintainReviewCmd)
	maintainCmd.AddCommand(maintainExportCmd)
	maintainCmd.AddCommand(maintainImportCmd)
	maintainCmd.AddCommand(maintainStatsCmd)
	maintainCmd.AddCommand(maintainValidateFormatCmd)
	rootCmd.AddCommand(maintainCmd)
}

func runMaintainValidateFormat(cmd *cobra.Command, args []string) {
	logger := newLogger(maintainFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	st := mustOpenStore(repoRoot)
	svc := knowledge.NewService(st, cfg.Knowledge)

	findings := svc.ValidateFormat()
	if maintainFormat == string(FormatHuman) {
		if len(findings) == 0 {
			fmt.Println("All knowledge titles are well formed.")
			return
		}
		for _, f := range findings {
			fmt.Printf("%s: %s\n", f.NodeID, f.Reason)
		}
		return
	}
	printResponse(findings, maintainFormat)
}

func runMaintainReview(cmd *cobra.Command, args []string) {
	logger := newLogger(maintainFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	st := mustOpenStore(repoRoot)
	svc := knowledge.NewService(st, cfg.Knowledge)

	printResponse(svc.Review(), maintainFormat)
}

func runMaintainExport(cmd *cobra.Command, args []string) {
	logger := newLogger(maintainFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	st := mustOpenStore(repoRoot)
	svc := knowledge.NewService(st, cfg.Knowledge)

	f, err := os.Create(exportOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
	defer f.Close()

	bundleID, err := svc.Export(f, exportSource, exportCompress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting bundle: %v\n", err)
		os.Exit(exitFatal)
	}

	logger.Info("Exported knowledge bundle", map[string]interface{}{
		"bundle_id": bundleID,
		"path":      exportOut,
	})
	printResponse(&ExportResponse{
		BundleID:   bundleID,
		Path:       exportOut,
		Compressed: exportCompress,
	}, maintainFormat)
}

func runMaintainImport(cmd *cobra.Command, args []string) {
	logger := newLogger(maintainFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	defer f.Close()

	bundle, err := knowledge.ReadBundle(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading bundle: %v\n", err)
		os.Exit(exitFatal)
	}

	if importValidate {
		if err := knowledge.ValidateBundle(bundle); err != nil {
			fmt.Fprintf(os.Stderr, "Bundle is invalid: %v\n", err)
			os.Exit(exitFatal)
		}
		fmt.Printf("Bundle %s is valid: %d patterns, %d failures\n",
			bundle.BundleID, len(bundle.Patterns), len(bundle.Failures))
		return
	}

	st := mustOpenStore(repoRoot)
	svc := knowledge.NewService(st, cfg.Knowledge)

	report, err := svc.Import(bundle)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing bundle: %v\n", err)
		os.Exit(exitFatal)
	}

	if err := st.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving store: %v\n", err)
		os.Exit(exitFatal)
	}

	printResponse(report, maintainFormat)
}

func runMaintainStats(cmd *cobra.Command, args []string) {
	logger := newLogger(maintainFormat)
	repoRoot := mustGetRepoRoot()

	st := mustOpenStore(repoRoot)
	ix := mustOpenIndex(repoRoot, logger)
	defer ix.Close()

	stats, err := ix.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading index stats: %v\n", err)
		os.Exit(exitFatal)
	}

	byDomain := make(map[string]int)
	var attempts, successes int
	for _, p := range st.Patterns {
		byDomain[p.Domain]++
		attempts += p.Attempts
		successes += p.Successes
	}
	for _, f := range st.Failures {
		byDomain[f.Domain]++
	}
	var rate float64
	if attempts > 0 {
		rate = float64(successes) / float64(attempts)
	}

	resp := &StatsResponse{
		Specs:                len(st.Specs),
		Tests:                len(st.Tests),
		Code:                 len(st.Code),
		Patterns:             len(st.Patterns),
		Failures:             len(st.Failures),
		Links:                len(st.Links),
		PatternsByDomain:     byDomain,
		AggregateSuccessRate: rate,
		IndexedRefs:          stats["refs"],
		IndexedWarnings:      stats["warnings"],
	}
	if last, err := ix.LastScan(); err == nil && !last.IsZero() {
		resp.LastScan = last.Format("2006-01-02T15:04:05Z07:00")
	}

	printResponse(resp, maintainFormat)
}
