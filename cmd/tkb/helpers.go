package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"tkb/internal/config"
	"tkb/internal/index"
	"tkb/internal/logging"
	"tkb/internal/store"
)

// getRepoRoot returns the repository root directory.
func getRepoRoot() (string, error) {
	return os.Getwd()
}

// mustGetRepoRoot returns the repository root or exits on error.
func mustGetRepoRoot() string {
	repoRoot, err := getRepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
	return repoRoot
}

// newLogger builds a logger from the output format choice: human-readable
// command output pairs with human-readable logs.
func newLogger(format string) *logging.Logger {
	logFormat := logging.HumanFormat
	if format == string(FormatJSON) {
		logFormat = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: logFormat,
		Level:  logging.ParseLevel(os.Getenv("TKB_LOG_LEVEL")),
	})
}

// loadConfig loads .tkb/config.json, falling back to defaults so read-only
// commands work in an uninitialized repository.
func loadConfig(repoRoot string, logger *logging.Logger) *config.Config {
	cfg, err := config.LoadConfig(repoRoot)
	if err != nil {
		logger.Warn("Failed to load config, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		cfg = config.DefaultConfig()
	}
	return cfg
}

// openStore loads the canonical store at .tkb/store.
func openStore(repoRoot string) (*store.Store, error) {
	return store.Load(filepath.Join(repoRoot, ".tkb", "store"))
}

// mustOpenStore opens the store or exits.
func mustOpenStore(repoRoot string) *store.Store {
	st, err := openStore(repoRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(exitFatal)
	}
	return st
}

// mustOpenIndex opens the reference index or exits.
func mustOpenIndex(repoRoot string, logger *logging.Logger) *index.Index {
	ix, err := index.Open(repoRoot, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening reference index: %v\n", err)
		os.Exit(exitFatal)
	}
	return ix
}

// mustCompileIDPattern compiles the configured spec-id pattern or exits.
func mustCompileIDPattern(cfg *config.Config) *regexp.Regexp {
	re, err := regexp.Compile(cfg.Identity.IdPattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid identity.idPattern %q: %v\n",
			cfg.Identity.IdPattern, err)
		os.Exit(exitUsage)
	}
	return re
}

// newContext returns the context for one command execution.
func newContext() context.Context {
	return context.Background()
}

// impactContext derives a deadline-bound context from the impact timeout.
func impactContext(timeoutMs int) (context.Context, context.CancelFunc) {
	if timeoutMs <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
}

// printResponse formats and prints a command response.
func printResponse(resp interface{}, format string) {
	out, err := FormatResponse(resp, OutputFormat(format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(exitFatal)
	}
	fmt.Println(out)
}
