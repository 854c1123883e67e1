package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tkb/internal/knowledge"
	"tkb/internal/model"
)

var (
	captureFormat         string
	captureDomain         string
	captureTitle          string
	captureDiscoveredFrom string
	captureSuccess        bool
	captureFailed         bool

	// Pattern fields
	capturePrompt  string
	captureContext string
	captureGotcha  string

	// Failure fields
	captureProblem    string
	captureTimeWasted string
	captureBetter     string
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture engineering knowledge",
}

var capturePatternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Record one use of a reusable pattern",
	Long: `Records an attempt at applying a pattern. The same (domain, title)
identity accumulates a success rate across captures; title matching is
case- and whitespace-insensitive.

--discovered-from links the entry to the specification it surfaced under,
so impact analysis can report it when that spec's files change.

Examples:
  tkb capture pattern --domain=auth --title="Token refresh with backoff" --success \
      --discovered-from=FEAT-001
  tkb capture pattern --domain=auth --title="Token refresh with backoff" --failed \
      --gotcha="clock skew breaks the expiry check"`,
	Run: runCapturePattern,
}

var captureFailureCmd = &cobra.Command{
	Use:   "failure",
	Short: "Record a dead end worth not repeating",
	Long: `Records an approach that did not work, so the next attempt starts
from the better approach instead.

Examples:
  tkb capture failure --domain=auth --title="Sessions in local storage" \
      --problem="XSS exposure" --better="httpOnly cookies"`,
	Run: runCaptureFailure,
}

func init() {
	for _, c := range []*cobra.Command{capturePatternCmd, captureFailureCmd} {
		c.Flags().StringVar(&captureFormat, "format", "json", "Output format (json, human)")
		c.Flags().StringVar(&captureDomain, "domain", "", "Knowledge domain (required)")
		c.Flags().StringVar(&captureTitle, "title", "", "Entry title (required)")
		c.Flags().StringVar(&captureDiscoveredFrom, "discovered-from", "",
			"Specification this entry was discovered while working on")
		c.MarkFlagRequired("domain")
		c.MarkFlagRequired("title")
	}

	capturePatternCmd.Flags().BoolVar(&captureSuccess, "success", false, "This attempt succeeded")
	capturePatternCmd.Flags().BoolVar(&captureFailed, "failed", false, "This attempt failed")
	capturePatternCmd.Flags().StringVar(&capturePrompt, "prompt", "", "How to apply the pattern")
	capturePatternCmd.Flags().StringVar(&captureContext, "context", "", "When the pattern applies")
	capturePatternCmd.Flags().StringVar(&captureGotcha, "gotcha", "", "Known pitfall")

	captureFailureCmd.Flags().StringVar(&captureProblem, "problem", "", "What went wrong")
	captureFailureCmd.Flags().StringVar(&captureTimeWasted, "time-wasted", "", "Rough cost, e.g. '2d'")
	captureFailureCmd.Flags().StringVar(&captureBetter, "better", "", "The approach to use instead")

	captureCmd.AddCommand(capturePatternCmd)
	captureCmd.AddCommand(captureFailureCmd)
	rootCmd.AddCommand(captureCmd)
}

func runCapturePattern(cmd *cobra.Command, args []string) {
	if captureSuccess == captureFailed {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --success or --failed is required")
		os.Exit(exitUsage)
	}

	logger := newLogger(captureFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	st := mustOpenStore(repoRoot)
	svc := knowledge.NewService(st, cfg.Knowledge)

	p, err := svc.CapturePattern(&model.Pattern{
		Domain:  captureDomain,
		Title:   captureTitle,
		Prompt:  capturePrompt,
		Context: captureContext,
		Gotcha:  captureGotcha,
	}, captureSuccess)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	linkDiscovery(svc, model.PatternNodeID(p.Domain, p.Title))

	if err := st.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving store: %v\n", err)
		os.Exit(exitFatal)
	}

	printResponse(p, captureFormat)
}

// linkDiscovery attaches a freshly captured entry to its originating spec
// when --discovered-from is given.
func linkDiscovery(svc *knowledge.Service, nodeID string) {
	if captureDiscoveredFrom == "" {
		return
	}
	if _, err := svc.LinkDiscovery(nodeID, captureDiscoveredFrom); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
}

func runCaptureFailure(cmd *cobra.Command, args []string) {
	logger := newLogger(captureFormat)
	repoRoot := mustGetRepoRoot()
	cfg := loadConfig(repoRoot, logger)

	st := mustOpenStore(repoRoot)
	svc := knowledge.NewService(st, cfg.Knowledge)

	f, err := svc.CaptureFailure(&model.Failure{
		Domain:         captureDomain,
		Title:          captureTitle,
		Problem:        captureProblem,
		TimeWasted:     captureTimeWasted,
		BetterApproach: captureBetter,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	linkDiscovery(svc, model.FailureNodeID(f.Domain, f.Title))

	if err := st.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving store: %v\n", err)
		os.Exit(exitFatal)
	}

	printResponse(f, captureFormat)
}
